package classroom

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/quizboard/core"
)

// StructValidator is satisfied by *core.Validator.
type StructValidator interface {
	Struct(s interface{}) error
}

var errInvalidScore = errors.New("Please enter a valid score")

type LoginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

func (f *LoginForm) Validate(v StructValidator) error {
	f.Email = core.CleanString(f.Email, true /* lower */)
	return v.Struct(f)
}

func (f LoginForm) Build() UserLogin {
	return UserLogin{Email: f.Email, Password: f.Password}
}

type RegisterForm struct {
	Username string `form:"username" validate:"required"`
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

func (f *RegisterForm) Validate(v StructValidator) error {
	f.Username = core.CleanString(f.Username)
	f.Email = core.CleanString(f.Email, true /* lower */)
	return v.Struct(f)
}

func (f RegisterForm) Build() UserRegister {
	return UserRegister{Username: f.Username, Email: f.Email, Password: f.Password}
}

type ProfileForm struct {
	Username string `form:"username"`
	Email    string `form:"email" validate:"omitempty,email"`
}

func (f *ProfileForm) Validate(v StructValidator) error {
	f.Username = core.CleanString(f.Username)
	f.Email = core.CleanString(f.Email, true /* lower */)
	return v.Struct(f)
}

func (f ProfileForm) Build() ProfileUpdate {
	return ProfileUpdate{
		Username: null.NewString(f.Username, f.Username != ""),
		Email:    null.NewString(f.Email, f.Email != ""),
	}
}

type NewGroupForm struct {
	Title       string `form:"title" validate:"required"`
	Description string `form:"description"`
}

func (f *NewGroupForm) Validate(v StructValidator) error {
	f.Title = core.CleanString(f.Title)
	f.Description = core.CleanString(f.Description)
	return v.Struct(f)
}

func (f NewGroupForm) Build() GroupCreate {
	return GroupCreate{Title: f.Title, Description: null.NewString(f.Description, f.Description != "")}
}

type JoinGroupForm struct {
	GroupCode string `form:"group_code" validate:"required"`
}

func (f *JoinGroupForm) Validate(v StructValidator) error {
	f.GroupCode = core.CleanString(f.GroupCode)
	return v.Struct(f)
}

func (f JoinGroupForm) Build() GroupJoin {
	return GroupJoin{GroupCode: f.GroupCode}
}

// NewTaskForm is the state of the create-task editor.
type NewTaskForm struct {
	GroupID     int            `form:"-"`
	Title       string         `form:"title" validate:"required"`
	Description string         `form:"description"`
	TaskType    string         `form:"task_type" validate:"tasktype"`
	IsRequired  bool           `form:"is_required"`
	Questions   []QuestionForm `form:"-" validate:"dive"`
}

// QuestionForm is one entry of the quiz editor. Options holds the raw newline-delimited list.
type QuestionForm struct {
	Question   string `form:"question" validate:"required"`
	Type       string `form:"type" validate:"questiontype"`
	Options    string `form:"options"`
	Answer     string `form:"answer" validate:"required"`
	IsRequired bool   `form:"is_required"`
}

// NewTaskFormFor returns the blank editor state for a group.
func NewTaskFormFor(groupID int) NewTaskForm {
	return NewTaskForm{GroupID: groupID, TaskType: TaskText, IsRequired: true}
}

// ParseNewTaskForm reads the editor state posted by the create-task form.
// Questions are posted as `questions` (count) and `q<i>_<field>` values.
func ParseNewTaskForm(groupID int, values url.Values) NewTaskForm {
	f := NewTaskForm{
		GroupID:     groupID,
		Title:       values.Get("title"),
		Description: values.Get("description"),
		TaskType:    values.Get("task_type"),
		IsRequired:  values.Get("is_required") != "",
	}
	n, _ := strconv.Atoi(values.Get("questions"))
	for i := 0; i < n; i++ {
		prefix := "q" + strconv.Itoa(i) + "_"
		qType := values.Get(prefix + "type")
		if qType == "" {
			qType = string(KindText)
		}
		f.Questions = append(f.Questions, QuestionForm{
			Question:   values.Get(prefix + "question"),
			Type:       qType,
			Options:    values.Get(prefix + "options"),
			Answer:     values.Get(prefix + "answer"),
			IsRequired: values.Get(prefix+"is_required") != "",
		})
	}
	return f
}

// AddQuestion appends a blank free-text question, required by default.
func (f *NewTaskForm) AddQuestion() {
	f.Questions = append(f.Questions, QuestionForm{Type: string(KindText), IsRequired: true})
}

// RemoveQuestion drops the question at index i, if any.
func (f *NewTaskForm) RemoveQuestion(i int) {
	if i < 0 || i >= len(f.Questions) {
		return
	}
	f.Questions = append(f.Questions[:i], f.Questions[i+1:]...)
}

func (f NewTaskForm) IsQuiz() bool { return f.TaskType == TaskQuiz }

func (f *NewTaskForm) Validate(v StructValidator) error {
	f.Title = core.CleanString(f.Title)
	f.Description = core.CleanString(f.Description)
	if f.TaskType == "" {
		f.TaskType = TaskText
	}
	for i := range f.Questions {
		f.Questions[i].Question = core.CleanString(f.Questions[i].Question)
		f.Questions[i].Answer = core.CleanString(f.Questions[i].Answer)
	}

	// the quiz editor only matters for quizzes
	if !f.IsQuiz() {
		qs := f.Questions
		f.Questions = nil
		defer func() { f.Questions = qs }()
	}
	if err := v.Struct(f); err != nil {
		return err
	}
	return f.validateAnswers()
}

// validateAnswers rejects true/false answers the backend could not read.
func (f *NewTaskForm) validateAnswers() error {
	var flds []core.FieldError
	for i := range f.Questions {
		q := &f.Questions[i]
		if QuestionKind(q.Type) != KindTrueFalse {
			continue
		}
		switch ans := strings.ToLower(q.Answer); ans {
		case "true", "false":
			q.Answer = ans
		default:
			flds = append(flds, core.FieldError{
				Field: "q" + strconv.Itoa(i) + "_answer",
				Error: "answer must be true or false",
			})
		}
	}
	if flds != nil {
		return core.NewValidationError(errors.New("invalid true/false answer"), flds...)
	}
	return nil
}

// Build converts the editor state into the backend payload (token excluded).
func (f NewTaskForm) Build() TaskCreate {
	tc := TaskCreate{
		GroupID:     f.GroupID,
		Title:       f.Title,
		Description: null.NewString(f.Description, f.Description != ""),
		TaskType:    f.TaskType,
		IsRequired:  f.IsRequired,
	}
	if f.IsQuiz() {
		tc.Questions = make(Questions, 0, len(f.Questions))
		for _, qf := range f.Questions {
			tc.Questions = append(tc.Questions, qf.Build())
		}
	}
	return tc
}

// Build returns the tagged question for this editor entry.
func (qf QuestionForm) Build() Question {
	switch QuestionKind(qf.Type) {
	case KindMultipleChoice:
		return MultipleChoiceQuestion{
			Prompt:   qf.Question,
			Options:  ParseOptions(qf.Options),
			Answer:   qf.Answer,
			Required: qf.IsRequired,
		}
	case KindTrueFalse:
		return TrueFalseQuestion{Prompt: qf.Question, Answer: strings.EqualFold(qf.Answer, "true"), Required: qf.IsRequired}
	default:
		return TextQuestion{Prompt: qf.Question, Answer: qf.Answer, Required: qf.IsRequired}
	}
}

// ParseOptions converts a newline-delimited list into ordered options.
// Carriage returns (as posted by browsers) and blank lines are dropped.
func ParseOptions(raw string) []string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	opts := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			opts = append(opts, line)
		}
	}
	return opts
}

// SubmissionForm collects a student's answers to a task.
type SubmissionForm struct {
	Task       Task
	AnswerText string
	Answers    map[int]string // by question index
}

// ParseSubmissionForm reads `answer_text` for text tasks and `answer_<i>` for each quiz question.
func ParseSubmissionForm(task Task, values url.Values) SubmissionForm {
	f := SubmissionForm{Task: task, Answers: make(map[int]string)}
	if !task.IsQuiz() {
		f.AnswerText = values.Get("answer_text")
		return f
	}
	for i := range task.Questions {
		if ans := values.Get("answer_" + strconv.Itoa(i)); ans != "" {
			f.Answers[i] = ans
		}
	}
	return f
}

// Required reports whether the rendered control for question i is marked `required`.
func (f SubmissionForm) Required(i int) bool {
	if i < 0 || i >= len(f.Task.Questions) {
		return false
	}
	return f.Task.Questions[i].IsRequired()
}

// Validate applies the checks the rendered form declares: the text answer is always
// required, quiz answers only for questions marked required.
func (f *SubmissionForm) Validate() error {
	var flds []core.FieldError
	if !f.Task.IsQuiz() {
		f.AnswerText = strings.TrimSpace(f.AnswerText)
		if f.AnswerText == "" {
			flds = append(flds, core.FieldError{Field: "answer_text", Error: "answer is required"})
		}
	} else {
		for i := range f.Task.Questions {
			if f.Required(i) && strings.TrimSpace(f.Answers[i]) == "" {
				flds = append(flds, core.FieldError{
					Field: "answer_" + strconv.Itoa(i),
					Error: "question " + strconv.Itoa(i+1) + " is required",
				})
			}
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// Build returns the payload (token excluded); quiz answers are ordered by question index.
func (f SubmissionForm) Build() SubmissionCreate {
	var sc SubmissionCreate
	if f.AnswerText != "" {
		sc.AnswerText = null.StringFrom(f.AnswerText)
	}
	if len(f.Answers) > 0 {
		idxs := make([]int, 0, len(f.Answers))
		for i := range f.Answers {
			idxs = append(idxs, i)
		}
		sort.Ints(idxs)
		for _, i := range idxs {
			sc.QuizAnswers = append(sc.QuizAnswers, QuizAnswer{QuestionIndex: i, Answer: f.Answers[i]})
		}
	}
	return sc
}

// ParseScore accepts any number. No range is enforced here; the backend decides.
func ParseScore(raw string) (float64, error) {
	score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, core.NewValidationError(errInvalidScore)
	}
	return score, nil
}
