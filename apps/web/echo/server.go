// Package echoweb serves the quiz client as server-rendered pages.
package echoweb

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/core"
	"github.com/trezcool/quizboard/querycache"
	"github.com/trezcool/quizboard/session"
)

type (
	Options struct {
		Conf       *core.Config
		Logger     core.Logger
		Sessions   *session.Manager
		Cache      *querycache.Cache
		Validator  *core.Validator
		HTTPClient *http.Client
	}

	Server struct {
		opts     *Options
		app      *echo.Echo
		cookies  cookieCodec
		clients  clientFactory
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(opts *Options) (*Server, error) {
	tmpl, err := newRenderer(opts.Conf.Backend.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "loading templates")
	}
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		cookies:  newCookieCodec(opts.Conf),
		clients:  clientFactory{baseURL: opts.Conf.Backend.BaseURL, http: opts.HTTPClient, logger: opts.Logger},
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup(tmpl)
	return s, nil
}

func (s *Server) setup(tmpl *renderer) {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if conf.Debug {
		s.app.Logger.SetLevel(log.DEBUG)
	} else {
		s.app.Logger.SetLevel(log.INFO)
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.signalShutdown)
	s.app.Renderer = tmpl
	s.app.Debug = conf.Debug

	s.app.Use(s.sessionMiddleware)
	registerViews(s.app, &views{validator: s.opts.Validator, logger: s.opts.Logger})
}

// Start listens until the server is shut down; failures are reported on Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}
