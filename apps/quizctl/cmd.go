package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/trezcool/quizboard/apiclient"
	"github.com/trezcool/quizboard/core"
	"github.com/trezcool/quizboard/session"
)

const (
	requestTimeout = 30 * time.Second
	migrateTimeout = time.Minute
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp        = errors.New("help provided")
	errNotSignedIn = errors.New("not signed in: run `quizctl login` first")
)

type migrateFunc func(command string, args ...string) error

type commandLine struct {
	out       io.Writer
	sess      *session.Session
	api       *apiclient.Client
	validator *core.Validator
	migrator  migrateFunc
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -email EMAIL                         - sign in (the password is prompted)")
	fmt.Fprintln(cli.out, "  logout                                     - sign out")
	fmt.Fprintln(cli.out, "  whoami                                     - show the signed-in profile")
	fmt.Fprintln(cli.out, "  groups                                     - list my groups")
	fmt.Fprintln(cli.out, "  join -code CODE                            - join a group")
	fmt.Fprintln(cli.out, "  tasks -group ID                            - list the tasks of a group")
	fmt.Fprintln(cli.out, "  submissions -task ID                       - list the submissions of a task")
	fmt.Fprintln(cli.out, "  grade -submission ID -score SCORE          - grade a submission")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                     - run session store migrations")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	loginCmd := flag.NewFlagSet("login", flag.ContinueOnError)
	loginEmail := loginCmd.String("email", "", "The account's email. The password will be prompted next.")

	joinCmd := flag.NewFlagSet("join", flag.ContinueOnError)
	joinCode := joinCmd.String("code", "", "The code shared by the group owner.")

	tasksCmd := flag.NewFlagSet("tasks", flag.ContinueOnError)
	tasksGroup := tasksCmd.Int("group", 0, "The group's id.")

	subsCmd := flag.NewFlagSet("submissions", flag.ContinueOnError)
	subsTask := subsCmd.Int("task", 0, "The task's id.")

	gradeCmd := flag.NewFlagSet("grade", flag.ContinueOnError)
	gradeSub := gradeCmd.Int("submission", 0, "The submission's id.")
	gradeScore := gradeCmd.String("score", "", "The score to give.")

	for _, fs := range []*flag.FlagSet{loginCmd, joinCmd, tasksCmd, subsCmd, gradeCmd} {
		fs.SetOutput(cli.out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch args[1] {
	case "login":
		if err := loginCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *loginEmail == "" {
			loginCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			loginCmd.Usage()
			return errHelp
		}
		return cli.login(ctx, *loginEmail, string(pwd))

	case "logout":
		return cli.logout(ctx)

	case "whoami":
		return cli.whoami(ctx)

	case "groups":
		return cli.groups(ctx)

	case "join":
		if err := joinCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.join(ctx, *joinCode)

	case "tasks":
		if err := tasksCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *tasksGroup <= 0 {
			tasksCmd.Usage()
			return errHelp
		}
		return cli.tasks(ctx, *tasksGroup)

	case "submissions":
		if err := subsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *subsTask <= 0 {
			subsCmd.Usage()
			return errHelp
		}
		return cli.submissions(ctx, *subsTask)

	case "grade":
		if err := gradeCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *gradeSub <= 0 || *gradeScore == "" {
			gradeCmd.Usage()
			return errHelp
		}
		return cli.grade(ctx, *gradeSub, *gradeScore)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	default:
		cli.printUsage()
		return errHelp
	}
}

// requireAuth fails early instead of letting the backend answer 401.
func (cli *commandLine) requireAuth() error {
	if !cli.sess.IsAuthenticated() {
		return errNotSignedIn
	}
	return nil
}

// errorMessage is what the user reads when a command fails.
func errorMessage(err error) string {
	var apiErr *apiclient.APIError
	var tErr *apiclient.TransportError
	var vErr *core.ValidationError
	if errors.As(err, &apiErr) || errors.As(err, &tErr) || errors.As(err, &vErr) {
		return apiclient.ErrorMessage(err)
	}
	return err.Error()
}
