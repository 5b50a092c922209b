package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
)

type (
	Options struct {
		Addr           string
		DisableReqLogs bool

		SessionSvc    *session.Service
		AttendanceSvc *attendance.Service
		Logger        core.Logger
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		shutdown chan struct{}
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		shutdown: make(chan struct{}),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.signalShutdown)
	s.app.Debug = core.Conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)

	registerSessionAPI(v1, jwt, s.opts.SessionSvc, core.Validate)
	registerAttendanceAPI(v1, jwt, s.opts.AttendanceSvc, core.Validate)
}

// Start serves the API until a server error occurs or shutdown is signaled.
func (s *server) Start() error {
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- s.app.Start(s.opts.Addr)
	}()

	select {
	case err := <-serverErrors:
		return errors.Wrap(err, "server error")
	case <-s.shutdown:
		ctx, cancel := context.WithTimeout(context.Background(), core.Conf.Server.ShutdownTimeout)
		defer cancel()
		return s.Stop(ctx)
	}
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

// signalShutdown triggers a graceful shutdown; used when an integrity
// issue is identified.
func (s *server) signalShutdown() {
	close(s.shutdown)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Live Attendance API!")
}
