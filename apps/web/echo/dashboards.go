package echoweb

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/core/classroom"
	"github.com/trezcool/quizboard/querycache"
)

const teacherPath = "/teacher"

type teacherView struct {
	Groups     []classroom.Group
	Search     string
	Form       classroom.NewGroupForm
	ShowCreate bool
}

// filterGroups keeps the groups whose title or description contains `search` (case-insensitive).
func filterGroups(grps []classroom.Group, search string) []classroom.Group {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return grps
	}
	out := make([]classroom.Group, 0, len(grps))
	for _, grp := range grps {
		if strings.Contains(strings.ToLower(grp.Title), search) ||
			strings.Contains(strings.ToLower(grp.Description.String), search) {
			out = append(out, grp)
		}
	}
	return out
}

func (v *views) teacherView(ctx echo.Context, search string) (*teacherView, error) {
	grps, err := getState(ctx).myGroups(ctx.Request().Context())
	if err != nil {
		return nil, err
	}
	return &teacherView{Groups: filterGroups(grps, search), Search: search}, nil
}

func (v *views) teacher(ctx echo.Context) error {
	tv, err := v.teacherView(ctx, ctx.QueryParam("search"))
	if err != nil {
		return err
	}
	tv.ShowCreate = ctx.QueryParam("create") != ""
	return ctx.Render(http.StatusOK, "teacher", newPage(ctx, "Teacher dashboard", tv))
}

func (v *views) teacherFailure(ctx echo.Context, form *classroom.NewGroupForm, err error) error {
	tv, fErr := v.teacherView(ctx, "")
	if fErr != nil {
		return fErr
	}
	if form != nil {
		tv.Form = *form
		tv.ShowCreate = true
	}
	return v.failure(ctx, "teacher", newPage(ctx, "Teacher dashboard", tv), err)
}

func (v *views) createGroup(ctx echo.Context) error {
	var form classroom.NewGroupForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to NewGroupForm")
	}
	if err := form.Validate(v.validator); err != nil {
		return v.teacherFailure(ctx, &form, err)
	}
	if _, err := getState(ctx).api.CreateGroup(ctx.Request().Context(), form.Build()); err != nil {
		return v.teacherFailure(ctx, &form, err)
	}
	v.invalidate(ctx, querycache.MyGroups())
	return redirect(ctx, teacherPath)
}

func (v *views) deleteGroup(ctx echo.Context) error {
	id, err := paramID(ctx, "groupId")
	if err != nil {
		return err
	}
	if _, err := getState(ctx).api.DeleteGroup(ctx.Request().Context(), id); err != nil {
		return v.teacherFailure(ctx, nil, err)
	}
	v.invalidate(ctx, querycache.MyGroups(), querycache.Group(id))
	return redirect(ctx, teacherPath)
}

// studentView is the student dashboard: groups, then the tasks of the selected
// group, then the selected task with the user's submission or the answer form.
type studentView struct {
	Groups        []classroom.Group
	JoinForm      classroom.JoinGroupForm
	GroupID       int
	Tasks         []classroom.Task
	Task          *classroom.Task
	MySubmission  *classroom.Submission
	Answers       classroom.SubmissionForm
	SubmittedTask int
}

// studentURL addresses the dashboard; zero ids are left out.
func studentURL(groupID, taskID, submitted int) string {
	q := make(url.Values)
	for name, id := range map[string]int{"group": groupID, "task": taskID, "submitted": submitted} {
		if id > 0 {
			q.Set(name, strconv.Itoa(id))
		}
	}
	if len(q) == 0 {
		return studentPath
	}
	return studentPath + "?" + q.Encode()
}

func (v *views) studentView(ctx echo.Context, groupID, taskID int) (*studentView, error) {
	st := getState(ctx)
	reqCtx := ctx.Request().Context()

	grps, err := st.myGroups(reqCtx)
	if err != nil {
		return nil, err
	}
	sv := &studentView{Groups: grps, GroupID: groupID}
	if groupID > 0 {
		if sv.Tasks, err = st.tasks(reqCtx, groupID); err != nil {
			return nil, err
		}
	}
	if taskID > 0 {
		task, err := st.task(reqCtx, taskID)
		if err != nil {
			return nil, err
		}
		sv.Task = &task
		sv.Answers = classroom.SubmissionForm{Task: task}
		if sv.MySubmission, err = st.mySubmission(reqCtx, taskID); err != nil {
			return nil, err
		}
	}
	return sv, nil
}

func (v *views) student(ctx echo.Context) error {
	sv, err := v.studentView(ctx, queryID(ctx, "group"), queryID(ctx, "task"))
	if err != nil {
		return err
	}
	sv.SubmittedTask = queryID(ctx, "submitted")
	return ctx.Render(http.StatusOK, "student", newPage(ctx, "Student dashboard", sv))
}

func (v *views) joinGroup(ctx echo.Context) error {
	var form classroom.JoinGroupForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to JoinGroupForm")
	}
	err := form.Validate(v.validator)
	if err == nil {
		_, err = getState(ctx).api.JoinGroup(ctx.Request().Context(), form.Build())
	}
	if err != nil {
		sv, fErr := v.studentView(ctx, 0, 0)
		if fErr != nil {
			return fErr
		}
		sv.JoinForm = form
		return v.failure(ctx, "student", newPage(ctx, "Student dashboard", sv), err)
	}
	v.invalidate(ctx, querycache.MyGroups())
	return redirect(ctx, studentPath)
}
