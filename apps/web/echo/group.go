package echoweb

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/quizboard/core/classroom"
	"github.com/trezcool/quizboard/querycache"
)

type groupView struct {
	Group      classroom.Group
	Members    []classroom.GroupMember
	Tasks      []classroom.Task
	Form       classroom.NewTaskForm
	ShowCreate bool
}

func (gv groupView) IsOwner() bool { return gv.Group.IsOwner() }

func groupURL(id int) string {
	return "/group/" + strconv.Itoa(id)
}

// groupView fetches the group, its members and its tasks concurrently.
func (v *views) groupView(ctx echo.Context, id int) (*groupView, error) {
	st := getState(ctx)
	gv := &groupView{Form: classroom.NewTaskFormFor(id)}

	g, gctx := errgroup.WithContext(ctx.Request().Context())
	g.Go(func() (err error) {
		gv.Group, err = st.group(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		gv.Members, err = st.groupMembers(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		gv.Tasks, err = st.tasks(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return gv, nil
}

func (v *views) group(ctx echo.Context) error {
	id, err := paramID(ctx, "groupId")
	if err != nil {
		return err
	}
	gv, err := v.groupView(ctx, id)
	if err != nil {
		return err
	}
	gv.ShowCreate = gv.IsOwner() && ctx.QueryParam("create") != ""
	return ctx.Render(http.StatusOK, "group", newPage(ctx, gv.Group.Title, gv))
}

// renderTaskEditor shows the group with the create-task editor open on `form`.
func (v *views) renderTaskEditor(ctx echo.Context, form classroom.NewTaskForm, err error) error {
	gv, fErr := v.groupView(ctx, form.GroupID)
	if fErr != nil {
		return fErr
	}
	gv.Form = form
	gv.ShowCreate = true
	p := newPage(ctx, gv.Group.Title, gv)
	if err != nil {
		return v.failure(ctx, "group", p, err)
	}
	return ctx.Render(http.StatusOK, "group", p)
}

// createTask handles every button of the create-task editor: switching to a quiz
// or adding or removing a question re-renders the editor, anything else creates the task.
func (v *views) createTask(ctx echo.Context) error {
	id, err := paramID(ctx, "groupId")
	if err != nil {
		return err
	}
	params, err := ctx.FormParams()
	if err != nil {
		return errors.Wrap(err, "parsing task form")
	}
	form := classroom.ParseNewTaskForm(id, params)

	switch {
	case params.Has("write_quiz"):
		form.TaskType = classroom.TaskQuiz
		if len(form.Questions) == 0 {
			form.AddQuestion()
		}
		return v.renderTaskEditor(ctx, form, nil)
	case params.Has("add_question"):
		form.AddQuestion()
		return v.renderTaskEditor(ctx, form, nil)
	case params.Has("remove_question"):
		i, err := strconv.Atoi(params.Get("remove_question"))
		if err == nil {
			form.RemoveQuestion(i)
		}
		return v.renderTaskEditor(ctx, form, nil)
	}

	if err := form.Validate(v.validator); err != nil {
		return v.renderTaskEditor(ctx, form, err)
	}
	if _, err := getState(ctx).api.CreateTask(ctx.Request().Context(), form.Build()); err != nil {
		return v.renderTaskEditor(ctx, form, err)
	}
	v.invalidate(ctx, querycache.Tasks(id))
	return redirect(ctx, groupURL(id))
}

func (v *views) deleteTask(ctx echo.Context) error {
	groupID, err := paramID(ctx, "groupId")
	if err != nil {
		return err
	}
	taskID, err := paramID(ctx, "taskId")
	if err != nil {
		return err
	}

	if _, err := getState(ctx).api.DeleteTask(ctx.Request().Context(), taskID); err != nil {
		gv, fErr := v.groupView(ctx, groupID)
		if fErr != nil {
			return fErr
		}
		return v.failure(ctx, "group", newPage(ctx, gv.Group.Title, gv), err)
	}
	v.invalidate(ctx, querycache.Tasks(groupID), querycache.Task(taskID))
	return redirect(ctx, groupURL(groupID))
}
