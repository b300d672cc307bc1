package classroom

import (
	"github.com/volatiletech/null/v8"
)

// Task types
const (
	TaskText = "text"
	TaskQuiz = "quiz"
)

// Group roles, as seen by the viewer.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// User is the authenticated account; profile endpoints also fill Avatar.
type User struct {
	ID        int         `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Avatar    null.String `json:"avatar"`
	CreatedAt Timestamp   `json:"created_at"`
}

type Group struct {
	ID          int         `json:"id"`
	Title       string      `json:"title"`
	Description null.String `json:"description"`
	OwnerID     int         `json:"owner_id"`
	GroupCode   string      `json:"group_code"`
	CreatedAt   Timestamp   `json:"created_at"`
	Role        string      `json:"role"`
}

func (g Group) IsOwner() bool { return g.Role == RoleOwner }

type GroupMember struct {
	ID       int       `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	JoinedAt Timestamp `json:"joined_at"`
}

type Task struct {
	ID          int         `json:"id"`
	GroupID     int         `json:"group_id"`
	Title       string      `json:"title"`
	Description null.String `json:"description"`
	TaskType    string      `json:"task_type"`
	Questions   Questions   `json:"quiz_questions"`
	IsRequired  bool        `json:"is_required"`
	CreatedAt   Timestamp   `json:"created_at"`
}

func (t Task) IsQuiz() bool { return t.TaskType == TaskQuiz }

type QuizAnswer struct {
	QuestionIndex int    `json:"question_index"`
	Answer        string `json:"answer"`
}

type Submission struct {
	ID          int          `json:"id"`
	TaskID      int          `json:"task_id"`
	UserID      int          `json:"user_id"`
	GroupID     int          `json:"group_id"`
	AnswerText  null.String  `json:"answer_text"`
	QuizAnswers []QuizAnswer `json:"quiz_answers"`
	Score       null.Float64 `json:"score"`
	SubmittedAt Timestamp    `json:"submitted_at"`
	Username    string       `json:"username"`
	TaskTitle   string       `json:"task_title"`
}

// Graded reports whether a score has been set, manually or by the backend's quiz grading.
func (s Submission) Graded() bool { return s.Score.Valid }

// AnswerFor returns the submitted answer for the question at index i.
func (s Submission) AnswerFor(i int) (string, bool) {
	for _, a := range s.QuizAnswers {
		if a.QuestionIndex == i {
			return a.Answer, true
		}
	}
	return "", false
}

// Requests & responses

type (
	UserLogin struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	UserRegister struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	AuthResponse struct {
		Message string `json:"message"`
		User    User   `json:"user"`
		Token   string `json:"token"`
	}

	RegisterResponse struct {
		Message string `json:"message"`
		User    User   `json:"user"`
	}

	MessageResponse struct {
		Message string `json:"message"`
	}

	TokenRequest struct {
		Token string `json:"token"`
	}

	ProfileUpdate struct {
		Token    string      `json:"token"`
		Username null.String `json:"username"`
		Email    null.String `json:"email"`
	}

	GroupCreate struct {
		Token       string      `json:"token"`
		Title       string      `json:"title"`
		Description null.String `json:"description"`
	}

	GroupJoin struct {
		Token     string `json:"token"`
		GroupCode string `json:"group_code"`
	}

	TaskCreate struct {
		Token       string      `json:"token"`
		GroupID     int         `json:"group_id"`
		Title       string      `json:"title"`
		Description null.String `json:"description"`
		TaskType    string      `json:"task_type"`
		Questions   Questions   `json:"quiz_questions"`
		IsRequired  bool        `json:"is_required"`
	}

	SubmissionCreate struct {
		Token       string       `json:"token"`
		AnswerText  null.String  `json:"answer_text"`
		QuizAnswers []QuizAnswer `json:"quiz_answers"`
	}

	ScoreUpdate struct {
		Token string  `json:"token"`
		Score float64 `json:"score"`
	}
)
