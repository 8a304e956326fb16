package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/presence"
	"github.com/trezcool/tutorias/core/user"
	logsvc "github.com/trezcool/tutorias/services/logger"
	"github.com/trezcool/tutorias/storage/database"
	sqlxrepos "github.com/trezcool/tutorias/storage/database/sqlx"
)

var errNoSession = errors.New("no live sessions in the admin process")

// detachedNotifier is the notifier of a process that holds no sessions.
type detachedNotifier struct{}

func (detachedNotifier) Emit(string, string, interface{}) error { return errNoSession }

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		conf:    conf,
		db:      sqlMigrator{db: db},
		usrSvc:  user.NewService(sqlxrepos.NewUserRepository(db), logger, validate),
		tracker: presence.NewTracker(sqlxrepos.NewPresenceDirectory(db), detachedNotifier{}, logger, conf.Signaling.PresenceTTL),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}
