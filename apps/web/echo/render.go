package echoweb

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/quizboard/core/classroom"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// page is the data every template receives.
type page struct {
	Title  string
	Path   string
	User   *classroom.User // nil for anonymous visitors
	Error  string
	Notice string
	Data   interface{}
}

func newPage(ctx echo.Context, title string, data interface{}) *page {
	p := &page{Title: title, Path: ctx.Path(), Data: data}
	if usr, ok := contextUser(ctx); ok {
		p.User = &usr
	}
	return p
}

// renderer holds one template set per view, each made of the shared layout and the view.
type renderer struct {
	views map[string]*template.Template
}

var _ echo.Renderer = (*renderer)(nil)

func newRenderer(backendURL string) (*renderer, error) {
	funcs := template.FuncMap{
		"add1":    func(i int) int { return i + 1 },
		"choices": classroom.Choices,
		"answer":  submissionAnswer,
		"score":   formatScore,
		"asset": func(p string) string {
			if p == "" || strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
				return p
			}
			return backendURL + "/" + strings.TrimLeft(p, "/")
		},
	}

	layout, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/_*.gohtml")
	if err != nil {
		return nil, errors.Wrap(err, "parsing layout templates")
	}
	files, err := fs.Glob(templateFS, "templates/[^_]*.gohtml")
	if err != nil {
		return nil, errors.Wrap(err, "listing view templates")
	}

	r := &renderer{views: make(map[string]*template.Template, len(files))}
	for _, file := range files {
		t, err := layout.Clone()
		if err != nil {
			return nil, errors.Wrap(err, "cloning layout")
		}
		if t, err = t.ParseFS(templateFS, file); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", file)
		}
		r.views[strings.TrimSuffix(path.Base(file), ".gohtml")] = t
	}
	return r, nil
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.views[name]
	if !ok {
		return errors.Errorf("unknown view %q", name)
	}
	return errors.Wrapf(t.ExecuteTemplate(w, "base", data), "rendering %s", name)
}

func formatScore(score null.Float64) string {
	if !score.Valid {
		return "Not graded"
	}
	return strconv.FormatFloat(score.Float64, 'f', -1, 64)
}

func submissionAnswer(sub classroom.Submission, i int) string {
	ans, _ := sub.AnswerFor(i)
	return ans
}
