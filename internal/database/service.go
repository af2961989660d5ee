/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tabcoin-ledger-go/internal/models"
	"tabcoin-ledger-go/internal/store"

	"github.com/bwmarrin/snowflake"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

type Service struct {
	db      *sql.DB
	dialect dialect
	node    *snowflake.Node
	now     func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithClock replaces the wall clock used to timestamp appended events.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(ctx context.Context, cfg models.DatabaseConfig, opts ...Option) (*Service, error) {
	// Validate configuration
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if d.name == "sqlite3" && cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if d.name == "postgres" && cfg.URL == "" {
		return nil, fmt.Errorf("database url cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	var dsn string
	switch d.name {
	case "sqlite3":
		zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=%d",
			cfg.Path, cfg.BusyTimeout.Milliseconds())
	case "postgres":
		zap.L().Info("Opening Postgres database")
		dsn = cfg.URL
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service, err := newService(db, d, cfg.NodeId, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := service.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully",
		zap.String("driver", d.name),
		zap.Int64("node_id", cfg.NodeId))
	return service, nil
}

func newService(db *sql.DB, d dialect, nodeId int64, opts ...Option) (*Service, error) {
	node, err := snowflake.NewNode(nodeId)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger node id %d: %w", nodeId, err)
	}

	s := &Service{
		db:      db,
		dialect: d,
		node:    node,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) initSchema(ctx context.Context) error {
	statements := append(append([]string{}, schemaStatements...), s.dialect.guards...)
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// q rebinds a query for the active dialect.
func (s *Service) q(query string) string {
	return s.dialect.rebind(query)
}
