package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/quizboard/apiclient"
	"github.com/trezcool/quizboard/core"
	"github.com/trezcool/quizboard/core/classroom"
	logsvc "github.com/trezcool/quizboard/services/logger"
	"github.com/trezcool/quizboard/session"
	"github.com/trezcool/quizboard/storage/boltdb"
	"github.com/trezcool/quizboard/storage/postgres"
)

// the CLI keeps a single session in its bolt file
const cliSessionID = "quizctl"

func main() {
	conf := core.NewConfig()

	stdLogger := log.New(os.Stderr, "QUIZCTL : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)

	store, err := boltdb.Open(conf.CLI.SessionFile)
	errAndDie(logger, err)

	cli, err := newCommandLine(context.Background(), conf, store, logger)
	if err != nil {
		_ = store.Close()
		errAndDie(logger, err)
	}
	cli.migrator = postgresMigrator(conf)

	err = cli.run(os.Args)
	_ = store.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", errorMessage(err))
		}
		os.Exit(1)
	}
}

// newCommandLine restores the stored session and binds a backend client to it.
func newCommandLine(ctx context.Context, conf *core.Config, store session.Storage, logger core.Logger) (*commandLine, error) {
	loader := func(ctx context.Context, sess *session.Session) (classroom.User, error) {
		return newAPIClient(conf, sess, logger).GetProfile(ctx)
	}
	sess, err := session.NewManager(store, loader, logger).Open(ctx, cliSessionID)
	if err != nil {
		return nil, err
	}
	return &commandLine{
		out:       os.Stdout,
		sess:      sess,
		api:       newAPIClient(conf, sess, logger),
		validator: core.NewValidator(),
	}, nil
}

// newAPIClient forgets the stored session as soon as the backend rejects its token.
func newAPIClient(conf *core.Config, sess *session.Session, logger core.Logger) *apiclient.Client {
	return apiclient.New(apiclient.Options{
		BaseURL: conf.Backend.BaseURL,
		Tokens:  sess,
		OnUnauthorized: apiclient.UnauthorizedFunc(func(ctx context.Context) {
			if err := sess.Logout(ctx); err != nil {
				logger.Warn("failed to clear expired session", err)
			}
		}),
		Logger: logger,
	})
}

// postgresMigrator runs goose commands against the postgres session store.
func postgresMigrator(conf *core.Config) migrateFunc {
	return func(command string, args ...string) error {
		ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
		defer cancel()

		db, err := postgres.Open(ctx, conf.Database)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return postgres.RunMigrations(db.DB, command, args...)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
