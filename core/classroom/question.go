package classroom

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

type QuestionKind string

// Question kinds
const (
	KindText           QuestionKind = "text"
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindTrueFalse      QuestionKind = "true_false"
)

var ErrUnknownQuestionKind = errors.New("unknown question type")

// Question is one of TextQuestion, MultipleChoiceQuestion or TrueFalseQuestion.
type Question interface {
	Kind() QuestionKind
	Text() string
	// CorrectAnswer is the expected answer as sent over the wire; grading happens on the backend.
	CorrectAnswer() string
	IsRequired() bool

	sealed()
}

type TextQuestion struct {
	Prompt   string
	Answer   string
	Required bool
}

type MultipleChoiceQuestion struct {
	Prompt   string
	Options  []string
	Answer   string
	Required bool
}

type TrueFalseQuestion struct {
	Prompt   string
	Answer   bool
	Required bool
}

func (q TextQuestion) Kind() QuestionKind    { return KindText }
func (q TextQuestion) Text() string          { return q.Prompt }
func (q TextQuestion) CorrectAnswer() string { return q.Answer }
func (q TextQuestion) IsRequired() bool      { return q.Required }
func (TextQuestion) sealed()                 {}

func (q MultipleChoiceQuestion) Kind() QuestionKind    { return KindMultipleChoice }
func (q MultipleChoiceQuestion) Text() string          { return q.Prompt }
func (q MultipleChoiceQuestion) CorrectAnswer() string { return q.Answer }
func (q MultipleChoiceQuestion) IsRequired() bool      { return q.Required }
func (MultipleChoiceQuestion) sealed()                 {}

func (q TrueFalseQuestion) Kind() QuestionKind    { return KindTrueFalse }
func (q TrueFalseQuestion) Text() string          { return q.Prompt }
func (q TrueFalseQuestion) CorrectAnswer() string { return strconv.FormatBool(q.Answer) }
func (q TrueFalseQuestion) IsRequired() bool      { return q.Required }
func (TrueFalseQuestion) sealed()                 {}

// Choices lists the values a single-select control offers for `q`; nil means free text.
func Choices(q Question) []string {
	switch q := q.(type) {
	case MultipleChoiceQuestion:
		return q.Options
	case TrueFalseQuestion:
		return []string{"true", "false"}
	default:
		return nil
	}
}

// Questions is the ordered quiz of a task. It is encoded as the backend's loose JSON list.
type Questions []Question

type wireQuestion struct {
	Question   string   `json:"question"`
	Type       string   `json:"type"`
	Options    []string `json:"options,omitempty"`
	Answer     string   `json:"answer"`
	IsRequired *bool    `json:"is_required,omitempty"`
}

func toWire(q Question) wireQuestion {
	required := q.IsRequired()
	wq := wireQuestion{
		Question:   q.Text(),
		Type:       string(q.Kind()),
		Answer:     q.CorrectAnswer(),
		IsRequired: &required,
	}
	if mc, ok := q.(MultipleChoiceQuestion); ok {
		wq.Options = mc.Options
		if wq.Options == nil {
			wq.Options = []string{}
		}
	}
	return wq
}

func fromWire(wq wireQuestion) (Question, error) {
	required := wq.IsRequired == nil || *wq.IsRequired
	switch QuestionKind(wq.Type) {
	case KindText, "": // untyped questions are free text
		return TextQuestion{Prompt: wq.Question, Answer: wq.Answer, Required: required}, nil
	case KindMultipleChoice:
		return MultipleChoiceQuestion{Prompt: wq.Question, Options: wq.Options, Answer: wq.Answer, Required: required}, nil
	case KindTrueFalse:
		// the answer is only meaningful to the backend; keep unknown spellings as false
		answer, _ := strconv.ParseBool(wq.Answer)
		return TrueFalseQuestion{Prompt: wq.Question, Answer: answer, Required: required}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownQuestionKind, "%q", wq.Type)
	}
}

func (qs Questions) MarshalJSON() ([]byte, error) {
	if qs == nil {
		return []byte("null"), nil
	}
	wqs := make([]wireQuestion, 0, len(qs))
	for _, q := range qs {
		wqs = append(wqs, toWire(q))
	}
	return json.Marshal(wqs)
}

func (qs *Questions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*qs = nil
		return nil
	}
	var wqs []wireQuestion
	if err := json.Unmarshal(data, &wqs); err != nil {
		return errors.Wrap(err, "decoding quiz questions")
	}
	out := make(Questions, 0, len(wqs))
	for i, wq := range wqs {
		q, err := fromWire(wq)
		if err != nil {
			return errors.Wrapf(err, "decoding quiz question %d", i)
		}
		out = append(out, q)
	}
	*qs = out
	return nil
}
