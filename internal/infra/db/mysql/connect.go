package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
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
  id            VARCHAR(36)  NOT NULL PRIMARY KEY,
  email         VARCHAR(320) NOT NULL,
  password_hash VARCHAR(100) NOT NULL,
  first_name    VARCHAR(200) NOT NULL,
  last_name     VARCHAR(200) NOT NULL,
  created_at    DATETIME(6)  NOT NULL,
  is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
  UNIQUE KEY uq_users_email (email)
)`,
	`CREATE TABLE IF NOT EXISTS pneumax_scans (
  seq         BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
  id          VARCHAR(36)  NOT NULL,
  user_email  VARCHAR(320) NOT NULL,
  prediction  VARCHAR(64)  NOT NULL,
  confidence  DOUBLE       NOT NULL,
  disease     VARCHAR(64)  NOT NULL,
  status      VARCHAR(64)  NOT NULL,
  precaution  TEXT         NOT NULL,
  image_url   TEXT         NOT NULL,
  saved_at    DATETIME(6)  NOT NULL,
  detail_json JSON         NOT NULL,
  UNIQUE KEY uq_scans_id (id),
  KEY idx_scans_user_date (user_email, saved_at)
)`,
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
