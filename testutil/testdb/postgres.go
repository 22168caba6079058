//go:build testutil
// +build testutil

package testdb

import (
	"context"
	"errors"
	"time"

	"challengetracker/config"
	"challengetracker/database"
	"challengetracker/logging"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"
)

type Handle struct {
	DB     *gorm.DB
	cancel func()
	stop   func(context.Context) error
}

func (h *Handle) Close() {
	if h.DB != nil {
		if sqlDB, err := h.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if h.stop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.stop(ctx)
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// StartPostgres runs a throwaway Postgres container and migrates the schema
// into it through the postgres dialect adapter.
func StartPostgres(ctx context.Context) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)

	pg, err := postgres.RunContainer(ctx,
		tc.WithImage("postgres:17-alpine"),
		postgres.WithDatabase("challenges"),
		postgres.WithUsername("challenges"),
		postgres.WithPassword("challenges"),
	)
	if err != nil {
		cancel()
		return nil, err
	}

	uri, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pg.Terminate(ctx)
		cancel()
		return nil, err
	}

	cfg := &config.Config{DBDialect: "postgres", DatabaseURL: uri}
	db, err := waitReady(ctx, cfg)
	if err != nil {
		_ = pg.Terminate(ctx)
		cancel()
		return nil, err
	}

	if err := database.Migrate(db); err != nil {
		_ = pg.Terminate(ctx)
		cancel()
		return nil, err
	}

	return &Handle{DB: db, cancel: cancel, stop: pg.Terminate}, nil
}

func waitReady(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	dead := time.Now().Add(20 * time.Second)
	for time.Now().Before(dead) {
		db, err := database.Open(cfg, logging.Nop())
		if err == nil && database.Ping(ctx, db) == nil {
			return db, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return nil, errors.New("db not ready")
}
