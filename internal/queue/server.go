package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// ServerConfig configures the worker process.
type ServerConfig struct {
	RedisURL    string
	Concurrency int
	Queue       string
	Logger      zerolog.Logger
}

// NewServer builds an asynq server consuming Queue (default "default").
func NewServer(cfg ServerConfig) (*asynq.Server, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "default"
	}
	log := cfg.Logger
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      zerologAdapter{log: log},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, t *asynq.Task, err error) {
			log.Error().Err(err).Str("task", t.Type()).Msg("task failed")
		}),
	}), nil
}

// NewClient builds an asynq client for publishers.
func NewClient(redisURL string) (*asynq.Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	return asynq.NewClient(opt), nil
}

// NewMux routes task types to their handlers.
func NewMux(ledger *LedgerWriter) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(Instrument)
	mux.HandleFunc(TypeInvoiceFinalized, ledger.HandleInvoiceFinalized)
	return mux
}

type zerologAdapter struct {
	log zerolog.Logger
}

func (z zerologAdapter) Debug(args ...any) { z.log.Debug().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Info(args ...any)  { z.log.Info().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Warn(args ...any)  { z.log.Warn().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Error(args ...any) { z.log.Error().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Fatal(args ...any) { z.log.Fatal().Msg(fmt.Sprint(args...)) }
