package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/JonMunkholm/shopload/internal/ingest"
)

// maintenanceDB is the database every PostgreSQL server has, used to create
// the target database.
const maintenanceDB = "postgres"

const pgDuplicateDatabase = "42P04"

// EnsureDatabase creates the database named in a postgres DSN when it does
// not exist yet. It reports whether the database was created.
func EnsureDatabase(ctx context.Context, dsn string) (bool, error) {
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return false, fmt.Errorf("parse postgres dsn: %w", err)
	}
	name := connConfig.Database
	if name == "" || name == maintenanceDB {
		return false, nil
	}

	connConfig.Database = maintenanceDB
	db := stdlib.OpenDB(*connConfig)
	defer db.Close()

	return createDatabase(ctx, db, name)
}

func createDatabase(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	if err != nil {
		if isConnectivity(err) {
			return false, &ingest.ConnectivityError{Op: "connect", Err: err}
		}
		return false, fmt.Errorf("check database %s: %w", name, err)
	}
	if exists {
		return false, nil
	}

	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateDatabase {
			return false, nil
		}
		return false, fmt.Errorf("create database %s: %w", name, err)
	}
	return true, nil
}
