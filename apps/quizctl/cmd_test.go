package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/quizboard/apiclient"
	"github.com/trezcool/quizboard/core"
	"github.com/trezcool/quizboard/core/classroom"
	"github.com/trezcool/quizboard/session"
	"github.com/trezcool/quizboard/storage/inmem"
	"github.com/trezcool/quizboard/tests"
)

type fixture struct {
	backend *testutil.Backend
	conf    *core.Config
	store   *inmem.Store
}

func newFixture(t *testing.T) *fixture {
	backend := testutil.NewBackend(t)
	return &fixture{
		backend: backend,
		conf:    &core.Config{Env: "TEST", TestMode: true, Backend: core.BackendConfig{BaseURL: backend.URL()}},
		store:   inmem.NewStore(),
	}
}

// cli opens the stored session, as every quizctl invocation does.
func (f *fixture) cli(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	cli, err := newCommandLine(context.Background(), f.conf, f.store, testutil.NewLogger())
	require.NoError(t, err)
	out := new(bytes.Buffer)
	cli.out = out
	return cli, out
}

func mockPassword(pwd string) {
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
	extra      interface{}
}

func Test_commandLine_usage(t *testing.T) {
	f := newFixture(t)
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "tasks without group", args: []string{"tasks"}, wantErr: errHelp},
		{name: "submissions without task", args: []string{"submissions", "-task", "0"}, wantErr: errHelp},
		{name: "grade without score", args: []string{"grade", "-submission", "1"}, wantErr: errHelp},
		{name: "bad flag", args: []string{"tasks", "-group", "abc"}, wantErr: errHelp},
		{name: "migrate without command", args: []string{"migrate"}, wantErr: errHelp},
		{name: "groups signed out", args: []string{"groups"}, wantErr: errNotSignedIn},
		{name: "whoami signed out", args: []string{"whoami"}, wantErr: errNotSignedIn},
	}
	for _, tt := range tests {
		args := append([]string{"quizctl"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			cli, _ := f.cli(t)
			assert.Equal(t, tt.wantErr, cli.run(args))
		})
	}
}

func Test_commandLine_login(t *testing.T) {
	f := newFixture(t)
	f.backend.CreateUser(t, "ada", "ada@test.cd", "secret")

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no email", args: []string{"login"}, wantErr: errHelp},
		{name: "no password", args: []string{"login", "-email", "ada@test.cd"}, wantErr: errHelp},
		{name: "invalid email", args: []string{"login", "-email", "ada"}, extra: extra{pwd: "secret"}, wantErrStr: "email must be a valid email address"},
		{name: "wrong password", args: []string{"login", "-email", "ada@test.cd"}, extra: extra{pwd: "lol"}, wantErrStr: "Invalid email or password"},
		{name: "signed in", args: []string{"login", "-email", "  ADA@test.cd "}, extra: extra{pwd: "secret"}, wantOut: "Signed in as ada"},
	}
	for _, tt := range tests {
		args := append([]string{"quizctl"}, tt.args...)

		readPasswordFunc = func(int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			cli, out := f.cli(t)
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, errorMessage(err))
			default:
				require.NoError(t, err)
				assert.Contains(t, out.String(), tt.wantOut)
				assert.True(t, cli.sess.IsAuthenticated())
			}
		})
	}

	// the next invocation restores the session
	cli, _ := f.cli(t)
	assert.True(t, cli.sess.IsAuthenticated())
	usr, ok := cli.sess.User()
	require.True(t, ok)
	assert.Equal(t, "ada", usr.Username)
}

func Test_commandLine_classroom(t *testing.T) {
	f := newFixture(t)
	_, ownerTok := f.backend.CreateUser(t, "teach", "teach@test.cd", "secret")
	_, adaTok := f.backend.CreateUser(t, "ada", "ada@test.cd", "secret")
	grp := f.backend.CreateGroup(t, ownerTok, "Maths")
	other := f.backend.CreateGroup(t, ownerTok, "Physics")
	f.backend.Join(t, adaTok, grp.ID)
	task := f.backend.CreateTask(t, grp.ID, "Essay", classroom.TaskText, nil)

	student := apiclient.New(apiclient.Options{BaseURL: f.backend.URL(), Tokens: apiclient.StaticToken(adaTok)})
	_, err := student.SubmitTask(context.Background(), task.ID, classroom.SubmissionCreate{})
	require.NoError(t, err)
	subs := f.backend.Submissions(task.ID)
	require.Len(t, subs, 1)
	subID := strconv.Itoa(subs[0].ID)

	mockPassword("secret")
	cli, _ := f.cli(t)
	require.NoError(t, cli.run([]string{"quizctl", "login", "-email", "teach@test.cd"}))

	tests := []cliTest{
		{name: "whoami", args: []string{"whoami"}, wantOut: "teach@test.cd"},
		{name: "groups", args: []string{"groups"}, wantOut: "Physics"},
		{name: "join unknown", args: []string{"join", "-code", "NOPE"}, wantErrStr: "Group not found"},
		{name: "join empty", args: []string{"join"}, wantErrStr: "group_code is required"},
		{name: "join own group", args: []string{"join", "-code", other.GroupCode}, wantErrStr: "Already a member of this group"},
		{name: "tasks", args: []string{"tasks", "-group", strconv.Itoa(grp.ID)}, wantOut: "Essay"},
		{name: "no tasks", args: []string{"tasks", "-group", strconv.Itoa(other.ID)}, wantOut: "No tasks yet."},
		{name: "submissions", args: []string{"submissions", "-task", strconv.Itoa(task.ID)}, wantOut: "Not graded"},
		{name: "grade invalid", args: []string{"grade", "-submission", subID, "-score", "abc"}, wantErrStr: "Please enter a valid score"},
		{name: "grade", args: []string{"grade", "-submission", subID, "-score", "75"}, wantOut: "Score updated"},
		{name: "graded", args: []string{"submissions", "-task", strconv.Itoa(task.ID)}, wantOut: "75"},
	}
	for _, tt := range tests {
		args := append([]string{"quizctl"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out := new(bytes.Buffer)
			cli.out = out
			err := cli.run(args)
			if tt.wantErrStr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, errorMessage(err))
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.wantOut)
		})
	}
}

func Test_commandLine_logout(t *testing.T) {
	f := newFixture(t)
	f.backend.CreateUser(t, "ada", "ada@test.cd", "secret")
	mockPassword("secret")

	cli, _ := f.cli(t)
	require.NoError(t, cli.run([]string{"quizctl", "login", "-email", "ada@test.cd"}))
	f.backend.ResetCalls()

	cli, out := f.cli(t)
	require.NoError(t, cli.run([]string{"quizctl", "logout"}))
	assert.Contains(t, out.String(), "Signed out")
	assert.Equal(t, 1, f.backend.Calls("DELETE /auth/logout"))
	assert.Zero(t, f.store.Len())

	cli, _ = f.cli(t)
	assert.False(t, cli.sess.IsAuthenticated())
	assert.Equal(t, errNotSignedIn, cli.run([]string{"quizctl", "whoami"}))
}

func Test_commandLine_expiredToken(t *testing.T) {
	f := newFixture(t)
	f.backend.CreateUser(t, "ada", "ada@test.cd", "secret")
	mockPassword("secret")

	cli, _ := f.cli(t)
	require.NoError(t, cli.run([]string{"quizctl", "login", "-email", "ada@test.cd"}))
	tok, _, err := f.store.Get(context.Background(), cliSessionID, session.KeyToken)
	require.NoError(t, err)
	f.backend.Revoke(tok)

	err = cli.run([]string{"quizctl", "groups"})
	require.Error(t, err)
	assert.True(t, apiclient.IsUnauthorized(err))
	assert.False(t, cli.sess.IsAuthenticated())
	assert.Zero(t, f.store.Len(), "the stored session is cleared")
}

func Test_commandLine_migrate(t *testing.T) {
	f := newFixture(t)
	cli, _ := f.cli(t)

	cli.migrator = func(command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "sessions_expiry", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"quizctl"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErrStr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
				return
			}
			assert.NoError(t, err)
		})
	}
}

func Test_commandLine_printUsage(t *testing.T) {
	cli := &commandLine{}
	out := new(bytes.Buffer)
	cli.out = out
	assert.Equal(t, errHelp, cli.run([]string{"quizctl"}))
	for _, cmd := range []string{"login", "logout", "whoami", "groups", "join", "tasks", "submissions", "grade", "migrate"} {
		assert.True(t, strings.Contains(out.String(), "  "+cmd+" "), cmd)
	}
}
