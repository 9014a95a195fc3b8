package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Result is the outcome of one limiter check.
type Result struct {
	Limit     int
	Remaining int
	Reset     time.Time
	Reached   bool
}

// Limiter counts events per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Fixed is a fixed-window limiter backed by a ulule/limiter store.
type Fixed struct {
	lim *limiter.Limiter
}

// NewFixed builds a limiter from a formatted rate such as "10-M". The store is Redis
// when client is non-nil and in-process otherwise.
func NewFixed(rate string, client *redis.Client, prefix string) (*Fixed, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", rate, err)
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	opts := limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute}
	var store limiter.Store
	if client != nil {
		store, err = limiterredis.NewStoreWithOptions(client, opts)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: redis store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}
	return &Fixed{lim: limiter.New(store, r)}, nil
}

// Allow counts one event for key.
func (f *Fixed) Allow(ctx context.Context, key string) (Result, error) {
	c, err := f.lim.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Limit:     int(c.Limit),
		Remaining: int(c.Remaining),
		Reset:     time.Unix(c.Reset, 0),
		Reached:   c.Reached,
	}, nil
}
