package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bluescreen10/authguard"
	"github.com/bluescreen10/authguard/gormstore"
	"github.com/bluescreen10/authguard/internal/config"
	"github.com/bluescreen10/authguard/memstore"
	"github.com/bluescreen10/authguard/mysqlstore"
	"github.com/bluescreen10/authguard/pgstore"
	"github.com/bluescreen10/authguard/redisstore"
)

// cleaner is implemented by the stores that need expired records swept.
type cleaner interface {
	PeriodicCleanUp(interval time.Duration, stop <-chan struct{})
}

// openStore connects the session backend named by cfg.Driver. The returned
// close func stops the cleanup goroutine and releases the connection.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (authguard.Store, func(), error) {
	errb := oops.Code("store_open").With("driver", cfg.Driver)

	var (
		store   authguard.Store
		release = func() {}
	)

	switch cfg.Driver {
	case "memory":
		store = memstore.New()

	case "redis":
		opts, err := redis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, nil, errb.Wrap(err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, errb.Wrap(err)
		}
		store = redisstore.New(rdb)
		release = func() { rdb.Close() }

	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{})
		if err != nil {
			return nil, nil, errb.Wrap(err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, errb.Wrap(err)
		}
		s, err := gormstore.New(db)
		if err != nil {
			sqlDB.Close()
			return nil, nil, errb.Wrap(err)
		}
		store = s
		release = func() { sqlDB.Close() }

	case "mysql":
		db, err := sql.Open("mysql", cfg.DSN)
		if err != nil {
			return nil, nil, errb.Wrap(err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, errb.Wrap(err)
		}
		s, err := mysqlstore.New(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, errb.Wrap(err)
		}
		store = s
		release = func() { db.Close() }

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, errb.Wrap(err)
		}
		s, err := pgstore.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, errb.Wrap(err)
		}
		store = s
		release = pool.Close

	default:
		return nil, nil, errb.Errorf("unknown store driver %q", cfg.Driver)
	}

	stop := make(chan struct{})
	if c, ok := store.(cleaner); ok && cfg.CleanupInterval > 0 {
		go c.PeriodicCleanUp(cfg.CleanupInterval, stop)
	}

	logger.Info("session store ready", "driver", cfg.Driver)
	return store, func() {
		close(stop)
		release()
	}, nil
}
