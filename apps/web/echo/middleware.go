package echoweb

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/apiclient"
	"github.com/trezcool/quizboard/core"
	"github.com/trezcool/quizboard/core/classroom"
	"github.com/trezcool/quizboard/querycache"
	logsvc "github.com/trezcool/quizboard/services/logger"
	"github.com/trezcool/quizboard/session"
)

const (
	contextStateKey = "quizboard.state"

	loginPath   = "/login"
	studentPath = "/student"
)

// requestState is what every view works with: the browser's session, its cache scope
// and a backend client bound to both.
type requestState struct {
	sess  *session.Session
	scope *querycache.Scope
	api   *apiclient.Client
}

func getState(ctx echo.Context) *requestState {
	st, _ := ctx.Get(contextStateKey).(*requestState)
	return st
}

// contextUser returns the signed-in user, if any.
func contextUser(ctx echo.Context) (classroom.User, bool) {
	if st := getState(ctx); st != nil {
		return st.sess.User()
	}
	return classroom.User{}, false
}

// logArgs attaches the request, its session and the signed-in user to a log entry about err.
func logArgs(ctx echo.Context, err error) []interface{} {
	req := logsvc.Request{Method: ctx.Request().Method, Path: ctx.Request().URL.Path}
	st := getState(ctx)
	if st == nil {
		return []interface{}{err, req}
	}
	req.SessionID = st.sess.ID()
	args := []interface{}{err, req}
	if usr, ok := st.sess.User(); ok {
		args = append(args, usr)
	}
	return args
}

// unauthorizedPolicy forgets the session's token, user and cached data.
func unauthorizedPolicy(sess *session.Session, scope *querycache.Scope, logger core.Logger) apiclient.UnauthorizedFunc {
	return func(ctx context.Context) {
		if err := sess.Logout(ctx); err != nil {
			logger.Warn("failed to clear session after 401", err)
		}
		if err := scope.Clear(ctx); err != nil {
			logger.Warn("failed to clear cache after 401", err)
		}
	}
}

// clientFactory builds the backend client of one session.
type clientFactory struct {
	baseURL string
	http    *http.Client
	logger  core.Logger
}

func (f clientFactory) client(sess *session.Session, scope *querycache.Scope) *apiclient.Client {
	return apiclient.New(apiclient.Options{
		BaseURL:        f.baseURL,
		HTTPClient:     f.http,
		Tokens:         sess,
		OnUnauthorized: unauthorizedPolicy(sess, scope, f.logger),
		Logger:         f.logger,
	})
}

// NewProfileLoader returns the loader used by the session manager to fetch the profile
// of a token restored without its user.
func NewProfileLoader(conf *core.Config, httpClient *http.Client, cache *querycache.Cache, logger core.Logger) session.ProfileLoader {
	f := clientFactory{baseURL: conf.Backend.BaseURL, http: httpClient, logger: logger}
	return func(ctx context.Context, sess *session.Session) (classroom.User, error) {
		usr, err := f.client(sess, cache.Scope(sess.ID())).GetProfile(ctx)
		return usr, errors.Wrap(err, "fetching profile")
	}
}

// sessionMiddleware opens the browser's session and binds the request state to ctx.
func (s *Server) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		sid, err := s.cookies.sessionID(ctx, s.opts.Sessions.NewID)
		if err != nil {
			return errors.Wrap(err, "issuing session cookie")
		}
		sess, err := s.opts.Sessions.Open(ctx.Request().Context(), sid)
		if err != nil {
			return errors.Wrap(err, "opening session")
		}
		scope := s.opts.Cache.Scope(sid)
		ctx.Set(contextStateKey, &requestState{
			sess:  sess,
			scope: scope,
			api:   s.clients.client(sess, scope),
		})
		return next(ctx)
	}
}

// requireAuth sends anonymous visitors to the login page.
func requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if st := getState(ctx); st == nil || !st.sess.IsAuthenticated() {
			return ctx.Redirect(http.StatusFound, loginPath)
		}
		return next(ctx)
	}
}

// guestOnly sends signed-in users to their dashboard.
func guestOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if st := getState(ctx); st != nil && st.sess.IsAuthenticated() {
			return ctx.Redirect(http.StatusFound, studentPath)
		}
		return next(ctx)
	}
}
