package logsvc

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/quizboard/core"
	"github.com/trezcool/quizboard/core/classroom"
)

// Request identifies the browser request an entry was logged for.
// Only a prefix of SessionID is ever written: the full id is a credential.
type Request struct {
	Method    string
	Path      string
	SessionID string
}

func (r Request) fields() map[string]interface{} {
	flds := make(map[string]interface{}, 3)
	if r.Method != "" {
		flds["method"] = r.Method
	}
	if r.Path != "" {
		flds["path"] = r.Path
	}
	if sid := r.SessionID; sid != "" {
		if len(sid) > 8 {
			sid = sid[:8]
		}
		flds["session"] = sid
	}
	return flds
}

// RollbarLogger reports to Rollbar (when enabled) and mirrors every entry to a std logger.
type RollbarLogger struct {
	std     *log.Logger
	backend string
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std, backend: conf.Backend.BaseURL}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// entry is one log call split into what Rollbar and the std logger each need.
type entry struct {
	user    *classroom.User
	fields  map[string]interface{}
	details []interface{}
}

// parse sorts args: a classroom.User is the person, a Request or a
// map[string]interface{} adds fields, anything else (errors mostly) is a detail.
func parse(args []interface{}) entry {
	e := entry{fields: make(map[string]interface{})}
	for _, arg := range args {
		switch a := arg.(type) {
		case classroom.User:
			if e.user == nil {
				usr := a
				e.user = &usr
			}
		case Request:
			for k, v := range a.fields() {
				e.fields[k] = v
			}
		case map[string]interface{}:
			for k, v := range a {
				e.fields[k] = v
			}
		default:
			e.details = append(e.details, arg)
		}
	}
	return e
}

// line renders the std logger entry: level, message, sorted fields then one detail per line.
func (e entry) line(level, msg string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	if e.user != nil {
		fmt.Fprintf(&b, " user=%s(%d)", e.user.Username, e.user.ID)
	}
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.fields[k])
	}
	for _, d := range e.details {
		fmt.Fprintf(&b, "\n%+v", d)
	}
	return b.String()
}

// report returns the Rollbar arguments; fields travel as extras next to the backend URL.
func (l RollbarLogger) report(msg string, e entry) []interface{} {
	if e.user != nil {
		rollbar.SetPerson(strconv.Itoa(e.user.ID), e.user.Username, e.user.Email)
	} else {
		rollbar.ClearPerson()
	}
	extras := map[string]interface{}{"backend": l.backend}
	for k, v := range e.fields {
		extras[k] = v
	}
	args := make([]interface{}, 0, len(e.details)+2)
	args = append(args, msg, extras)
	return append(args, e.details...)
}

func (l RollbarLogger) emit(level string, send func(...interface{}), msg string, args []interface{}) {
	e := parse(args)
	send(l.report(msg, e)...)
	l.std.Print(e.line(level, msg))
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.emit("DEBUG", rollbar.Debug, msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.emit("INFO", rollbar.Info, msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.emit("WARN", rollbar.Warning, msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.emit("ERROR", rollbar.Error, msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.emit("FATAL", rollbar.Critical, msg, args)
	l.std.Fatal(msg)
}
