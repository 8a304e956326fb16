package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/call"
	"github.com/trezcool/tutorias/core/registration"
	"github.com/trezcool/tutorias/core/student"
	"github.com/trezcool/tutorias/core/tutor"
	"github.com/trezcool/tutorias/core/user"
	"github.com/trezcool/tutorias/services/realtime"
)

type (
	ServerDeps struct {
		Conf            *core.Config
		Logger          core.Logger
		UserSvc         user.ServiceInterface
		RegistrationSvc registration.ServiceInterface
		StudentSvc      student.ServiceInterface
		TutorSvc        tutor.ServiceInterface
		Tracker         PresenceTracker
		Relay           call.RelayInterface
		Hub             *realtime.Hub
		Validate        *validator.Validate
		Translator      ut.Translator
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(ctx context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORS())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(conf, s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	jwt := newJWTMiddleware(conf)
	api := s.app.Group("/api")

	registerUserAPI(s.app, api, jwt, s.deps)
	registerRegistrationAPI(s.app, s.deps)
	registerStudentAPI(api, jwt, s.deps)
	registerTutorAPI(api, jwt, s.deps)
	registerCallAPI(api, jwt, s.deps)
	registerSocketAPI(s.app, s.deps)
}

// Start listens until the server is shut down; listener failures are sent to Errors.
func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Shutdown closes the live sessions and waits for in-flight requests until ctx is done.
func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	if s.deps.Hub != nil {
		s.deps.Hub.Shutdown()
	}
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Tutorias API!")
}
