package main

import (
	"context"
	"io"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"fleet_tracker/internal/config"
	"fleet_tracker/internal/repository"
	"fleet_tracker/internal/stream"
)

// app opens connections on first use so each subcommand only dials what it needs.
type app struct {
	out io.Writer

	cfg     *config.Config
	rdb     redis.UniversalClient
	streams *stream.Client
	db      *gorm.DB
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) streamClient(ctx context.Context) (*stream.Client, error) {
	if a.streams != nil {
		return a.streams, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	rdb, err := config.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	a.streams = stream.NewClient(rdb, stream.WithMaxLen(cfg.StreamMaxLen))
	return a.streams, nil
}

func (a *app) repository() (*repository.Repository, error) {
	if a.db == nil {
		cfg, err := a.config()
		if err != nil {
			return nil, err
		}
		db, err := config.OpenDB(cfg)
		if err != nil {
			return nil, err
		}
		a.db = db
	}
	return repository.New(a.db), nil
}

func (a *app) gpsPartitions() int {
	if a.cfg == nil {
		return 1
	}
	return a.cfg.GPSPartitions
}

func (a *app) scanWindow() int64 {
	if a.cfg == nil {
		return stream.DefaultScanWindow
	}
	return a.cfg.StreamScanWindow
}

func (a *app) close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
