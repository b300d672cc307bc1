package echoweb

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/apiclient"
	"github.com/trezcool/quizboard/core"
	"github.com/trezcool/quizboard/querycache"
)

type views struct {
	validator *core.Validator
	logger    core.Logger
}

func registerViews(app *echo.Echo, v *views) {
	app.GET("/", v.home)
	app.POST("/logout", v.logout)

	app.GET("/login", v.loginPage, guestOnly)
	app.POST("/login", v.login, guestOnly)
	app.GET("/register", v.registerPage, guestOnly)
	app.POST("/register", v.register, guestOnly)

	app.GET("/profile", v.profile, requireAuth)
	app.POST("/profile", v.updateProfile, requireAuth)
	app.POST("/profile/avatar", v.uploadAvatar, requireAuth)
	app.POST("/profile/avatar/delete", v.deleteAvatar, requireAuth)

	app.GET("/teacher", v.teacher, requireAuth)
	app.POST("/teacher/groups", v.createGroup, requireAuth)
	app.POST("/teacher/groups/:groupId/delete", v.deleteGroup, requireAuth)

	app.GET("/student", v.student, requireAuth)
	app.POST("/student/join", v.joinGroup, requireAuth)

	app.GET("/group/:groupId", v.group, requireAuth)
	app.POST("/group/:groupId/tasks", v.createTask, requireAuth)
	app.POST("/group/:groupId/tasks/:taskId/delete", v.deleteTask, requireAuth)

	app.GET("/task/:taskId", v.task, requireAuth)
	app.POST("/task/:taskId/submit", v.submitTask, requireAuth)
	app.POST("/task/:taskId/submissions/:submissionId/score", v.gradeSubmission, requireAuth)
}

// Helpers

func paramID(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

// queryID reads an optional id from the query string; 0 when absent or invalid.
func queryID(ctx echo.Context, name string) int {
	id, err := strconv.Atoi(ctx.QueryParam(name))
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// redirect ends a successful mutation (post/redirect/get).
func redirect(ctx echo.Context, to string) error {
	return ctx.Redirect(http.StatusSeeOther, to)
}

// invalidate marks keys stale after a mutation succeeded; a failure only costs freshness.
func (v *views) invalidate(ctx echo.Context, keys ...querycache.Key) {
	st := getState(ctx)
	if err := st.scope.Invalidate(ctx.Request().Context(), keys...); err != nil {
		v.logger.Warn("cache invalidation failed", logArgs(ctx, err)...)
	}
}

// inline re-renders `view` with the display message of err.
func (v *views) inline(ctx echo.Context, view string, p *page, err error) error {
	p.Error = apiclient.ErrorMessage(err)

	var apiErr *apiclient.APIError
	var tErr *apiclient.TransportError
	var vErr *core.ValidationError
	if !errors.As(err, &apiErr) && !errors.As(err, &tErr) && !errors.As(err, &vErr) {
		v.logger.Error("mutation failed", logArgs(ctx, err)...)
	}
	return ctx.Render(http.StatusUnprocessableEntity, view, p)
}

// failure is inline for authenticated views: a 401 leaves the page for the login form.
func (v *views) failure(ctx echo.Context, view string, p *page, err error) error {
	if apiclient.IsUnauthorized(err) {
		return err
	}
	return v.inline(ctx, view, p, err)
}
