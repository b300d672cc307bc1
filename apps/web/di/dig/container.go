package dig_container

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoweb "github.com/trezcool/quizboard/apps/web/echo"
	"github.com/trezcool/quizboard/core"
	"github.com/trezcool/quizboard/querycache"
	logsvc "github.com/trezcool/quizboard/services/logger"
	"github.com/trezcool/quizboard/session"
	"github.com/trezcool/quizboard/storage/boltdb"
	"github.com/trezcool/quizboard/storage/inmem"
	"github.com/trezcool/quizboard/storage/postgres"
)

const setupTimeout = 30 * time.Second

type StoreLoggerParam struct {
	dig.In
	Logger core.Logger `name:"storeLogger"`
}

// Cleanup releases the connections opened while building the container, in reverse order.
type Cleanup struct {
	closers []func() error
}

func (c *Cleanup) add(fn func() error) {
	c.closers = append(c.closers, fn)
}

func (c *Cleanup) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "WEB : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStoreLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "STORE : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newCleanup() *Cleanup {
	return new(Cleanup)
}

func newHTTPClient() *http.Client {
	return &http.Client{Transport: http.DefaultTransport}
}

func newSessionStorage(conf *core.Config, cleanup *Cleanup, loggerParam StoreLoggerParam) session.Storage {
	logger := loggerParam.Logger

	switch strings.ToLower(conf.Session.Backend) {
	case "memory":
		return inmem.NewStore()

	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
		defer cancel()

		db, err := postgres.Open(ctx, conf.Database)
		if err == nil {
			if err = postgres.Migrate(db); err != nil {
				_ = db.Close()
			}
		}
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up session database: %v", err), err)
		}
		cleanup.add(db.Close)
		return postgres.NewStore(db)

	default:
		store, err := boltdb.Open(conf.Session.BoltPath)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening session file: %v", err), err)
		}
		cleanup.add(store.Close)
		return store
	}
}

func newQueryCache(conf *core.Config, logger core.Logger, cleanup *Cleanup, loggerParam StoreLoggerParam) *querycache.Cache {
	// entries live as long as the sessions owning them
	var store querycache.Store = querycache.NewMemoryStore(conf.Session.MaxAge)

	if strings.ToLower(conf.Cache.Backend) == "redis" {
		ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
		defer cancel()

		rdb, err := querycache.Connect(ctx, conf.Cache.RedisAddr)
		if err != nil {
			loggerParam.Logger.Fatal(fmt.Sprintf("setting up query cache: %v", err), err)
		}
		cleanup.add(rdb.Close)
		store = querycache.NewRedisStore(rdb, strings.ToLower(conf.AppName), conf.Session.MaxAge)
	}
	return querycache.New(store, conf.Cache.TTL, logger)
}

func newServerOptions(
	conf *core.Config,
	logger core.Logger,
	sessions *session.Manager,
	cache *querycache.Cache,
	validator *core.Validator,
	httpClient *http.Client,
) *echoweb.Options {
	return &echoweb.Options{
		Conf:       conf,
		Logger:     logger,
		Sessions:   sessions,
		Cache:      cache,
		Validator:  validator,
		HTTPClient: httpClient,
	}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newStoreLogger, dig.Name("storeLogger")))
	must(c.Provide(newCleanup))
	must(c.Provide(newHTTPClient))
	must(c.Provide(core.NewValidator))
	must(c.Provide(newQueryCache))
	must(c.Provide(newSessionStorage))
	must(c.Provide(echoweb.NewProfileLoader))
	must(c.Provide(session.NewManager))
	must(c.Provide(newServerOptions))
	must(c.Provide(echoweb.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
