package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/ClaimBox/config"
	"github.com/BearBump/ClaimBox/internal/broker/kafka"
	"github.com/BearBump/ClaimBox/internal/cache/rediscache"
	"github.com/BearBump/ClaimBox/internal/services/sweeper"
	"github.com/BearBump/ClaimBox/internal/storage/pgclaims"
)

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo sweeper.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) sweeper.Producer
	newRateLimiter func(cfg *config.Config) sweeper.RateLimiter
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (sweeper.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgclaims.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) sweeper.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) sweeper.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
	}
}

func newSweeperFromConfig(cfg *config.Config, repo sweeper.Repository, producer sweeper.Producer, rl sweeper.RateLimiter) *sweeper.Sweeper {
	topic := cfg.Kafka.ReturnStaleTopicName
	if topic == "" {
		topic = "claim.return.stale"
	}

	pollInterval := time.Duration(cfg.ClaimBox.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	batchSize := cfg.ClaimBox.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	staleAfter := time.Duration(cfg.ClaimBox.WorkerStaleAfterHours) * time.Hour
	if staleAfter <= 0 {
		staleAfter = 48 * time.Hour
	}
	remindEvery := time.Duration(cfg.ClaimBox.WorkerRemindEveryHours) * time.Hour
	if remindEvery <= 0 {
		remindEvery = 24 * time.Hour
	}
	rlPerMin := int64(cfg.ClaimBox.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 600
	}

	return sweeper.New(repo, producer, rl, topic).
		WithSettings(pollInterval, batchSize, staleAfter, remindEvery, rlPerMin)
}

func RunClaimWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)

	sw := newSweeperFromConfig(cfg, repo, producer, rl)

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: cfg.ClaimBox.WorkerHTTPAddr,
			sweeper:  sw,
			cfg:      cfg,
		})
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- sw.Run(ctx) }()

	select {
	case err := <-runErr:
		return err
	case err := <-httpErr:
		return err
	}
}
