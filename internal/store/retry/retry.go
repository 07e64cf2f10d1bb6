package retry

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
	"go.uber.org/zap"
)

const (
	// DefaultRateLimitBackoff is the wait after a rate-limited call.
	DefaultRateLimitBackoff = 2 * time.Second
	// DefaultServerErrorBackoff is the wait after any other transient failure.
	DefaultServerErrorBackoff = 500 * time.Millisecond

	callReadAll   = "read_all"
	callAppend    = "append"
	callOverwrite = "overwrite"
)

// Config sets the fixed backoffs. Zero values fall back to the defaults.
type Config struct {
	RateLimitBackoff   time.Duration
	ServerErrorBackoff time.Duration
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger logs every retried call.
func WithLogger(logger *zap.Logger) Option {
	return func(store *Store) {
		if logger != nil {
			store.logger = logger
		}
	}
}

// WithSleep replaces the context-aware wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, wait time.Duration) error) Option {
	return func(store *Store) {
		if sleep != nil {
			store.sleep = sleep
		}
	}
}

// WithRetryObserver is told about every retry, e.g. to count it.
func WithRetryObserver(observe func(call string, err error)) Option {
	return func(store *Store) {
		store.observe = observe
	}
}

// Store decorates a TabularStore with a single bounded retry on transient errors.
// Fatal errors pass through untouched.
type Store struct {
	next    inventory.TabularStore
	config  Config
	logger  *zap.Logger
	sleep   func(ctx context.Context, wait time.Duration) error
	observe func(call string, err error)
}

// New wraps next.
func New(next inventory.TabularStore, config Config, options ...Option) *Store {
	if config.RateLimitBackoff <= 0 {
		config.RateLimitBackoff = DefaultRateLimitBackoff
	}
	if config.ServerErrorBackoff <= 0 {
		config.ServerErrorBackoff = DefaultServerErrorBackoff
	}
	store := &Store{next: next, config: config, logger: zap.NewNop(), sleep: sleepContext}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

func (store *Store) ReadAll(ctx context.Context, table inventory.Table) (inventory.Records, error) {
	var records inventory.Records
	err := store.do(ctx, callReadAll, table.Name, func(ctx context.Context) error {
		var err error
		records, err = store.next.ReadAll(ctx, table)
		return err
	})
	return records, err
}

func (store *Store) Append(ctx context.Context, table inventory.Table, rows []inventory.Row) error {
	return store.do(ctx, callAppend, table.Name, func(ctx context.Context) error {
		return store.next.Append(ctx, table, rows)
	})
}

func (store *Store) Overwrite(ctx context.Context, table inventory.Table, rows []inventory.Row) error {
	return store.do(ctx, callOverwrite, table.Name, func(ctx context.Context) error {
		return store.next.Overwrite(ctx, table, rows)
	})
}

func (store *Store) do(ctx context.Context, call string, table string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || !inventory.IsTransient(err) {
		return err
	}
	wait := store.backoff(err)
	store.logger.Warn("retrying store call",
		zap.String("call", call),
		zap.String("table", table),
		zap.Duration("backoff", wait),
		zap.Error(err),
	)
	if store.observe != nil {
		store.observe(call, err)
	}
	if sleepErr := store.sleep(ctx, wait); sleepErr != nil {
		return errors.Join(err, sleepErr)
	}
	return fn(ctx)
}

// backoff picks the wait for a transient error; rate limiting waits longer.
func (store *Store) backoff(err error) time.Duration {
	if errors.Is(err, inventory.ErrRateLimited) {
		return store.config.RateLimitBackoff
	}
	return store.config.ServerErrorBackoff
}

func sleepContext(ctx context.Context, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ inventory.TabularStore = (*Store)(nil)
