package main

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/tutorias/storage/database"
)

type migrator interface {
	Migrate(ctx context.Context, command string, args ...string) error
}

// sqlMigrator runs the embedded migrations against a Postgres database.
type sqlMigrator struct {
	db *sqlx.DB
}

func (m sqlMigrator) Migrate(ctx context.Context, command string, args ...string) error {
	return database.Migrate(ctx, m.db, command, args...)
}

func (cli *commandLine) migrate(args []string) error {
	return cli.db.Migrate(context.Background(), args[0], args[1:]...)
}
