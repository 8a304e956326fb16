package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // Register the pprof handlers
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/pflag"

	echoapi "github.com/trezcool/tutorias/apps/api/echo"
	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/call"
	"github.com/trezcool/tutorias/core/presence"
	"github.com/trezcool/tutorias/core/registration"
	"github.com/trezcool/tutorias/core/student"
	"github.com/trezcool/tutorias/core/tutor"
	"github.com/trezcool/tutorias/core/user"
	appfs "github.com/trezcool/tutorias/fs"
	emailsvc "github.com/trezcool/tutorias/services/email"
	logsvc "github.com/trezcool/tutorias/services/logger"
	"github.com/trezcool/tutorias/services/realtime"
	"github.com/trezcool/tutorias/storage/database"
	inmemdb "github.com/trezcool/tutorias/storage/database/inmem"
	sqlxrepos "github.com/trezcool/tutorias/storage/database/sqlx"
)

// repositories are the storage backends of the services.
type repositories struct {
	user         user.Repository
	presence     presence.Directory
	registration registration.Repository
	call         call.Repository
	student      student.Repository
	tutor        tutor.Repository
	close        func() error
}

func main() {
	inMemory := pflag.Bool("inmem", false, "keep all data in memory (nothing is persisted)")
	pflag.Parse()

	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	var repos repositories
	var err error
	if *inMemory {
		repos, err = setUpInMemory()
	} else {
		repos, err = setUpDB(conf)
	}
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = repos.close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, logger)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	hub := realtime.NewHub(logger, realtime.Options{})
	tracker := presence.NewTracker(repos.presence, hub, logger, conf.Signaling.PresenceTTL)
	usrSvc := user.NewService(repos.user, logger, validate)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.Publish("sessions", expvar.Func(func() interface{} { return hub.Len() }))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:            conf,
			Logger:          logger,
			UserSvc:         usrSvc,
			RegistrationSvc: registration.NewService(repos.registration, repos.user, mailSvc, logger, validate, conf),
			StudentSvc:      student.NewService(repos.student, logger, validate),
			TutorSvc:        tutor.NewService(repos.tutor, logger, validate),
			Tracker:         tracker,
			Relay:           call.NewRelay(repos.call, tracker, hub, logger),
			Hub:             hub,
			Validate:        validate,
			Translator:      translator,
		},
	)

	go func() {
		server.Start()
	}()

	expiryCtx, stopExpiry := context.WithCancel(context.Background())
	defer stopExpiry()
	go expirePresence(expiryCtx, conf.Signaling.PresenceTTL, tracker, hub, logger)

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		stopExpiry()

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// expirePresence periodically clears the presence of sessions that went silent and drops them.
func expirePresence(ctx context.Context, ttl time.Duration, tracker *presence.Tracker, hub *realtime.Hub, logger core.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions, err := tracker.ExpireStale(ctx)
			if err != nil {
				logger.Error("expiring presence", err)
				continue
			}
			for _, s := range sessions {
				hub.Disconnect(s)
			}
		}
	}
}

func setUpDB(conf *core.Config) (repositories, error) {
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return repositories{}, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return repositories{}, err
	}
	if err = database.Migrate(ctx, db, "up"); err != nil {
		_ = db.Close()
		return repositories{}, err
	}
	return sqlRepositories(db), nil
}

func sqlRepositories(db *sqlx.DB) repositories {
	return repositories{
		user:         sqlxrepos.NewUserRepository(db),
		presence:     sqlxrepos.NewPresenceDirectory(db),
		registration: sqlxrepos.NewRegistrationRepository(db),
		call:         sqlxrepos.NewCallRepository(db),
		student:      sqlxrepos.NewStudentRepository(db),
		tutor:        sqlxrepos.NewTutorRepository(db),
		close:        db.Close,
	}
}

func setUpInMemory() (repositories, error) {
	db, err := inmemdb.Open()
	if err != nil {
		return repositories{}, err
	}
	return repositories{
		user:         inmemdb.NewUserRepository(db),
		presence:     inmemdb.NewPresenceDirectory(db),
		registration: inmemdb.NewRegistrationRepository(db),
		call:         inmemdb.NewCallRepository(db),
		student:      inmemdb.NewStudentRepository(db),
		tutor:        inmemdb.NewTutorRepository(db),
		close:        func() error { return nil },
	}, nil
}
