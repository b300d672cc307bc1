package echoweb

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/core/classroom"
	"github.com/trezcool/quizboard/querycache"
)

// origin of a submission posted from the student dashboard
const fromStudent = "student"

type taskView struct {
	Task         classroom.Task
	Group        classroom.Group
	MySubmission *classroom.Submission
	Submissions  []classroom.Submission
	Answers      classroom.SubmissionForm
	Submitted    bool

	// failed grading attempt
	GradeFor int
	Score    string
}

// IsOwner reports whether the viewer owns the task's group: owners grade, others submit.
func (tv taskView) IsOwner() bool { return tv.Group.IsOwner() }

// CanGrade reports whether `sub` still waits for a manual grade.
func (tv taskView) CanGrade(sub classroom.Submission) bool {
	return !tv.Task.IsQuiz() && !sub.Graded()
}

func taskURL(id int) string {
	return "/task/" + strconv.Itoa(id)
}

func (v *views) taskView(ctx echo.Context, id int) (*taskView, error) {
	st := getState(ctx)
	reqCtx := ctx.Request().Context()

	task, err := st.task(reqCtx, id)
	if err != nil {
		return nil, err
	}
	tv := &taskView{Task: task, Answers: classroom.SubmissionForm{Task: task}}
	if task.GroupID > 0 {
		if tv.Group, err = st.group(reqCtx, task.GroupID); err != nil {
			return nil, err
		}
	}
	if tv.IsOwner() {
		tv.Submissions, err = st.submissions(reqCtx, id)
	} else {
		tv.MySubmission, err = st.mySubmission(reqCtx, id)
	}
	if err != nil {
		return nil, err
	}
	return tv, nil
}

func (v *views) task(ctx echo.Context) error {
	id, err := paramID(ctx, "taskId")
	if err != nil {
		return err
	}
	tv, err := v.taskView(ctx, id)
	if err != nil {
		return err
	}
	tv.Submitted = ctx.QueryParam("submitted") != ""
	return ctx.Render(http.StatusOK, "task", newPage(ctx, tv.Task.Title, tv))
}

// submitTask posts the user's answers; from the student dashboard it returns there.
func (v *views) submitTask(ctx echo.Context) error {
	st := getState(ctx)
	reqCtx := ctx.Request().Context()
	id, err := paramID(ctx, "taskId")
	if err != nil {
		return err
	}
	task, err := st.task(reqCtx, id)
	if err != nil {
		return err
	}
	params, err := ctx.FormParams()
	if err != nil {
		return errors.Wrap(err, "parsing submission form")
	}
	form := classroom.ParseSubmissionForm(task, params)
	fromDashboard := params.Get("from") == fromStudent

	err = form.Validate()
	if err == nil {
		_, err = st.api.SubmitTask(reqCtx, id, form.Build())
	}
	if err != nil {
		if fromDashboard {
			sv, fErr := v.studentView(ctx, task.GroupID, id)
			if fErr != nil {
				return fErr
			}
			sv.Answers = form
			return v.failure(ctx, "student", newPage(ctx, "Student dashboard", sv), err)
		}
		tv, fErr := v.taskView(ctx, id)
		if fErr != nil {
			return fErr
		}
		tv.Answers = form
		return v.failure(ctx, "task", newPage(ctx, task.Title, tv), err)
	}

	v.invalidate(ctx, querycache.MySubmission(id))
	if fromDashboard {
		return redirect(ctx, studentURL(task.GroupID, 0, id))
	}
	return redirect(ctx, taskURL(id)+"?submitted=1")
}

func (v *views) gradeSubmission(ctx echo.Context) error {
	taskID, err := paramID(ctx, "taskId")
	if err != nil {
		return err
	}
	subID, err := paramID(ctx, "submissionId")
	if err != nil {
		return err
	}

	raw := ctx.FormValue("score")
	score, err := classroom.ParseScore(raw)
	if err == nil {
		_, err = getState(ctx).api.UpdateSubmissionScore(ctx.Request().Context(), subID, score)
	}
	if err != nil {
		tv, fErr := v.taskView(ctx, taskID)
		if fErr != nil {
			return fErr
		}
		tv.GradeFor, tv.Score = subID, raw
		return v.failure(ctx, "task", newPage(ctx, tv.Task.Title, tv), err)
	}

	v.invalidate(ctx, querycache.Submissions(taskID))
	return redirect(ctx, taskURL(taskID))
}
