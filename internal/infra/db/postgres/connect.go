package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pneumax_users (
  id            TEXT        PRIMARY KEY,
  email         TEXT        NOT NULL UNIQUE,
  password_hash TEXT        NOT NULL,
  first_name    TEXT        NOT NULL,
  last_name     TEXT        NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL,
  is_active     BOOLEAN     NOT NULL DEFAULT TRUE
)`,
	`CREATE TABLE IF NOT EXISTS pneumax_scans (
  seq         BIGSERIAL        PRIMARY KEY,
  id          TEXT             NOT NULL UNIQUE,
  user_email  TEXT             NOT NULL,
  prediction  TEXT             NOT NULL,
  confidence  DOUBLE PRECISION NOT NULL,
  disease     TEXT             NOT NULL,
  status      TEXT             NOT NULL,
  precaution  TEXT             NOT NULL,
  image_url   TEXT             NOT NULL,
  saved_at    TIMESTAMPTZ      NOT NULL,
  detail_json JSONB            NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_scans_user_date ON pneumax_scans (user_email, saved_at DESC)`,
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
