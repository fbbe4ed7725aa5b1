// Package db opens the bridge's SQLite database and keeps its schema current.
package db

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens path in WAL mode. SQLite allows a single writer, so the pool is
// capped at one connection.
func Open(path string) (*sql.DB, error) {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")

	conn, err := sql.Open("sqlite3", path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Migrate applies the schema steps newer than the database's user_version,
// each in its own transaction.
func Migrate(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := version; i < len(schema); i++ {
		tx, err := conn.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range schema[i] {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("schema step %d: %w", i+1, err)
			}
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("schema step %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("schema step %d: %w", i+1, err)
		}
	}
	return nil
}

// schema holds one entry per version. Append new steps; never edit old ones.
var schema = [][]string{
	{
		`CREATE TABLE history (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			source     TEXT NOT NULL DEFAULT '',
			player     TEXT NOT NULL DEFAULT '',
			text       TEXT NOT NULL DEFAULT '',
			result     TEXT NOT NULL DEFAULT '',
			error      TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX idx_history_kind_time ON history(kind, created_at)`,

		`CREATE TABLE players (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			online      INTEGER NOT NULL,
			max_players INTEGER NOT NULL,
			names       TEXT NOT NULL DEFAULT '[]',
			recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX idx_players_time ON players(recorded_at)`,

		`CREATE TABLE backups (
			id         TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			reason     TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE schedules (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			cron_expr  TEXT NOT NULL,
			action     TEXT NOT NULL,
			enabled    INTEGER NOT NULL DEFAULT 1,
			last_run   DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	},
}
