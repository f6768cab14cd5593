package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cabapp/salary-ledger/internal/domain/driver"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
// It also pings the database to ensure connectivity.
func NewPostgresConnection(ctx context.Context, dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS drivers (
	id                UUID PRIMARY KEY,
	name              TEXT NOT NULL,
	telegram_id       BIGINT UNIQUE,
	registration_date TIMESTAMPTZ NOT NULL,
	version           BIGINT NOT NULL DEFAULT 0,
	cycle_number      INTEGER NOT NULL,
	cycle_start       TIMESTAMPTZ NOT NULL,
	base_salary       {{money}} NOT NULL DEFAULT 0,
	current_advances  {{money}} NOT NULL DEFAULT 0,
	total_paid        {{money}} NOT NULL DEFAULT 0,
	last_updated      TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS salary_cycles (
	driver_id      UUID NOT NULL REFERENCES drivers(id),
	cycle_number   INTEGER NOT NULL,
	start_date     TIMESTAMPTZ NOT NULL,
	end_date       TIMESTAMPTZ NOT NULL,
	base_salary    {{money}} NOT NULL,
	total_advances {{money}} NOT NULL,
	total_paid     {{money}} NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	last_updated   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (driver_id, cycle_number)
);

CREATE TABLE IF NOT EXISTS ledger_transactions (
	id           UUID PRIMARY KEY,
	driver_id    UUID NOT NULL REFERENCES drivers(id),
	cycle_number INTEGER NOT NULL,
	seq          INTEGER NOT NULL,
	type         TEXT NOT NULL,
	amount       {{money}} NOT NULL,
	date         TIMESTAMPTZ NOT NULL,
	note         TEXT NOT NULL DEFAULT '',
	reference    TEXT NOT NULL DEFAULT '',
	UNIQUE (driver_id, cycle_number, seq)
);

CREATE TABLE IF NOT EXISTS advances (
	driver_id   UUID NOT NULL REFERENCES drivers(id),
	seq         INTEGER NOT NULL,
	amount      {{money}} NOT NULL,
	date        TIMESTAMPTZ NOT NULL,
	notes       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	approved_by BIGINT NOT NULL DEFAULT 0,
	approved_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (driver_id, seq)
);
`

// money columns hold exactly driver.MoneyScale decimal places
var schema = strings.ReplaceAll(schemaTemplate, "{{money}}", fmt.Sprintf("NUMERIC(20,%d)", driver.MoneyScale))

// EnsureSchema creates the ledger tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply ledger schema: %w", err)
	}
	return nil
}
