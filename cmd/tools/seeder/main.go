// Command seeder loads the starter medicine catalog and the OPERATORS accounts into Postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/noah-isme/backend-apotek/internal/app"
	"github.com/noah-isme/backend-apotek/internal/auth"
	"github.com/noah-isme/backend-apotek/internal/catalog"
	"github.com/noah-isme/backend-apotek/internal/config"
	"github.com/noah-isme/backend-apotek/internal/db"
	"github.com/noah-isme/backend-apotek/internal/obs"
)

func main() {
	hashPassword := flag.String("hash-password", "", "print the argon2id hash of a password for OPERATORS and exit")
	flag.Parse()
	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			panic(err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "seeder").Logger()
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	var cache *catalog.Cache
	if cfg.RedisURL != "" {
		rdb, err := app.NewRedis(ctx, cfg.RedisURL, false, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect redis")
		}
		defer rdb.Close()
		cache = catalog.NewCache(rdb, cfg.CatalogCacheTTL)
	}
	medicines, err := catalog.NewService(catalog.ServiceConfig{Store: catalog.NewPostgresStore(pool), Cache: cache, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("catalog service")
	}
	for _, m := range app.DefaultMedicines() {
		if _, err := medicines.Upsert(ctx, m); err != nil {
			logger.Fatal().Err(err).Str("medicine_id", m.ID).Msg("seed medicine")
		}
	}
	logger.Info().Int("count", len(app.DefaultMedicines())).Msg("medicines seeded")

	ops, err := auth.ParseOperators(cfg.Operators)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse OPERATORS")
	}
	operators := auth.NewPostgresOperators(pool)
	for _, op := range ops {
		if err := operators.Upsert(ctx, op); err != nil {
			logger.Fatal().Err(err).Str("operator_id", op.ID).Msg("seed operator")
		}
	}
	logger.Info().Int("count", len(ops)).Msg("operators seeded")
}
