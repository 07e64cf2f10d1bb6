package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/cafestock/internal/lock"
	"github.com/MarkoPoloResearchLab/cafestock/internal/mailer"
	"github.com/MarkoPoloResearchLab/cafestock/internal/metrics"
	"github.com/MarkoPoloResearchLab/cafestock/internal/oplog"
	"github.com/MarkoPoloResearchLab/cafestock/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/cafestock/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/cafestock/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/cafestock/internal/store/retry"
	"github.com/MarkoPoloResearchLab/cafestock/internal/store/sheetsstore"
	"github.com/MarkoPoloResearchLab/cafestock/internal/store/xlsxstore"
	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

type cleanupFunc func() error

// storeOpener opens the configured tabular store.
type storeOpener func(ctx context.Context, cfg appConfig, logger *zap.Logger) (inventory.TabularStore, cleanupFunc, error)

type runtime struct {
	service *inventory.Service
	logger  *zap.Logger
	cleanup []cleanupFunc
}

func (rt *runtime) Close() error {
	var errs []error
	for index := len(rt.cleanup) - 1; index >= 0; index-- {
		if err := rt.cleanup[index](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildRuntime(ctx context.Context, cfg appConfig, logger *zap.Logger, open storeOpener, now nowFunc) (*runtime, error) {
	rt := &runtime{logger: logger}
	calendar, err := inventory.NewBusinessCalendar(cfg.BusinessTimezone)
	if err != nil {
		return nil, err
	}
	baseStore, closeStore, err := open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	rt.cleanup = append(rt.cleanup, closeStore)

	store := retry.New(baseStore, cfg.Retry,
		retry.WithLogger(logger),
		retry.WithRetryObserver(func(call string, _ error) {
			metrics.StoreRetries.WithLabelValues(call).Inc()
		}),
	)

	locker, closeLocker, err := openLocker(cfg)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.cleanup = append(rt.cleanup, closeLocker)

	notifier, err := openNotifier(cfg, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	service, err := inventory.NewService(store, now,
		inventory.WithOperationLogger(oplog.New(logger)),
		inventory.WithTables(cfg.Tables),
		inventory.WithCalendar(calendar),
		inventory.WithLocker(locker),
		inventory.WithNotifier(notifier),
		inventory.WithVirtualItems(cfg.VirtualItems),
	)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("inventory service init: %w", err)
	}
	rt.service = service
	return rt, nil
}

func openLocker(cfg appConfig) (inventory.Locker, cleanupFunc, error) {
	if cfg.RedisURL == "" {
		return lock.NewLocalLocker(), func() error { return nil }, nil
	}
	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	locker, err := lock.NewRedisLocker(client, cfg.LockTTL)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return locker, client.Close, nil
}

func openNotifier(cfg appConfig, logger *zap.Logger) (inventory.Notifier, error) {
	if cfg.SMTP.Host == "" {
		return mailer.NewLogNotifier(logger), nil
	}
	notifier, err := mailer.NewSMTPNotifier(cfg.SMTP)
	if err != nil {
		return nil, err
	}
	return notifier, nil
}

func openStore(ctx context.Context, cfg appConfig, logger *zap.Logger) (inventory.TabularStore, cleanupFunc, error) {
	noop := func() error { return nil }
	switch cfg.StoreDriver {
	case driverMemory:
		logger.Warn("memory store selected: data is discarded on exit")
		return memstore.New(), noop, nil
	case driverXLSX:
		store, err := xlsxstore.New(cfg.StoreURL)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case driverSheets:
		store, err := sheetsstore.New(ctx, sheetsstore.Config{
			SpreadsheetID:   cfg.StoreURL,
			CredentialsFile: cfg.SheetsCredentialsFile,
			RequireTabs:     cfg.SheetsRequireTabs,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case driverPgx:
		pool, err := pgxpool.New(ctx, cfg.StoreURL)
		if err != nil {
			return nil, nil, fmt.Errorf("pgx pool: %w", err)
		}
		store := pgstore.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func() error { pool.Close(); return nil }, nil
	case driverGorm:
		gormDB, cleanup, _, err := openDatabase(ctx, cfg.StoreURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database open: %w", err)
		}
		store := gormstore.New(gormDB)
		if err := store.Migrate(ctx); err != nil {
			_ = cleanup()
			return nil, nil, err
		}
		return store, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, cleanupFunc, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	if driver == "sqlite" {
		// a single writer avoids SQLITE_BUSY between overlapping transactions
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "cafestock.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
