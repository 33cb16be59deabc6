package datalayer

import (
	"context"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	pgxMigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresPool constructs a pgx pool from an explicit DSN.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, dsn)
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigratePostgres applies the embedded schema migrations.
func MigratePostgres(pool *pgxpool.Pool) (err error) {
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	driver, derr := pgxMigrate.WithInstance(db, &pgxMigrate.Config{})
	if derr != nil {
		return derr
	}

	src, serr := iofs.New(migrationsFS, "migrations")
	if serr != nil {
		return serr
	}

	m, merr := migrate.NewWithInstance(
		"iofs",
		src,
		"pgx5",
		driver,
	)
	if merr != nil {
		return merr
	}

	defer func() {
		srcErr, dbErr := m.Close()
		err = errors.Join(err, srcErr, dbErr)
	}()

	if upErr := m.Up(); upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return upErr
	}
	return nil
}
