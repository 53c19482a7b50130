// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

// Package database provides the DuckDB-backed store for media metadata,
// watch history, embeddings, recommendation runs and the validation cache.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"

	"github.com/dgruhin-hrizn/aperture/internal/config"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn   *sql.DB
	cfg    *config.DatabaseConfig
	logger zerolog.Logger
}

// New opens the database file and initializes the schema.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(cfg *config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for file-backed databases.
	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dbDir, err)
			}
		}
	}

	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	// Disable extension auto-install to prevent hangs in restricted
	// network environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// DuckDB is an embedded engine; a small pool avoids write contention.
	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(0)

	db := &DB{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With().Str("component", "database").Logger(),
	}

	if err := db.createTables(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	db.logger.Info().Str("path", cfg.Path).Int("threads", numThreads).Msg("database opened")
	return db, nil
}

// Conn returns the underlying SQL connection for packages that need direct
// access.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping checks that the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Checkpoint flushes the WAL to the main database file.
func (db *DB) Checkpoint(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, "CHECKPOINT")
	return err
}

// Close checkpoints and closes the database. The checkpoint is best
// effort; a failure is logged, not returned.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Checkpoint(ctx); err != nil {
		db.logger.Warn().Err(err).Msg("checkpoint before close failed")
	}

	return db.conn.Close()
}

// createTables creates the schema if absent. DuckDB DDL is idempotent
// with IF NOT EXISTS, so startup on an existing file is a no-op.
func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS media_items (
			id VARCHAR PRIMARY KEY,
			title VARCHAR NOT NULL,
			year INTEGER DEFAULT 0,
			media_type VARCHAR NOT NULL,
			genres VARCHAR DEFAULT '[]',
			directors VARCHAR DEFAULT '[]',
			actors VARCHAR DEFAULT '[]',
			studios VARCHAR DEFAULT '[]',
			keywords VARCHAR DEFAULT '[]',
			collection_name VARCHAR DEFAULT '',
			network VARCHAR DEFAULT '',
			community_rating DOUBLE DEFAULT 0,
			content_rating VARCHAR DEFAULT '',
			provider_ids VARCHAR DEFAULT '{}',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS watch_history (
			user_id VARCHAR NOT NULL,
			item_id VARCHAR NOT NULL,
			play_count INTEGER DEFAULT 0,
			last_played_at TIMESTAMP,
			is_favorite BOOLEAN DEFAULT FALSE,
			user_rating DOUBLE,
			PRIMARY KEY (user_id, item_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_preferences (
			user_id VARCHAR PRIMARY KEY,
			similarity_weight DOUBLE,
			novelty_weight DOUBLE,
			rating_weight DOUBLE,
			diversity_weight DOUBLE,
			max_content_rating VARCHAR DEFAULT '',
			include_watched BOOLEAN DEFAULT FALSE,
			disliked_item_ids VARCHAR DEFAULT '[]',
			full_franchise_mode BOOLEAN DEFAULT FALSE,
			hide_watched BOOLEAN DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS item_vectors (
			item_id VARCHAR PRIMARY KEY,
			embedding VARCHAR NOT NULL,
			content_rating VARCHAR DEFAULT '',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS recommendation_runs (
			id VARCHAR PRIMARY KEY,
			user_id VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			candidate_count INTEGER DEFAULT 0,
			selected_count INTEGER DEFAULT 0,
			error VARCHAR DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS recommendation_candidates (
			run_id VARCHAR NOT NULL,
			item_id VARCHAR NOT NULL,
			pool_rank INTEGER NOT NULL,
			selected BOOLEAN DEFAULT FALSE,
			similarity DOUBLE DEFAULT 0,
			novelty DOUBLE DEFAULT 0,
			rating_score DOUBLE DEFAULT 0,
			diversity DOUBLE DEFAULT 0,
			final_score DOUBLE DEFAULT 0,
			adjusted_score DOUBLE DEFAULT 0,
			explanation VARCHAR DEFAULT '',
			PRIMARY KEY (run_id, item_id)
		)`,
		`CREATE TABLE IF NOT EXISTS recommendation_evidence (
			run_id VARCHAR NOT NULL,
			item_id VARCHAR NOT NULL,
			evidence_item_id VARCHAR NOT NULL,
			similarity DOUBLE DEFAULT 0,
			evidence_rank INTEGER NOT NULL,
			PRIMARY KEY (run_id, item_id, evidence_item_id)
		)`,
		`CREATE TABLE IF NOT EXISTS validation_cache (
			pair_key VARCHAR PRIMARY KEY,
			item_a VARCHAR NOT NULL,
			item_b VARCHAR NOT NULL,
			related BOOLEAN NOT NULL,
			reason VARCHAR DEFAULT '',
			source VARCHAR NOT NULL,
			checked_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_user ON recommendation_runs (user_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_history_user ON watch_history (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_collection ON media_items (collection_name)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

func closeQuietly(c interface{ Close() error }) {
	_ = c.Close()
}
