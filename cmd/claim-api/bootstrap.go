package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ClaimBox/config"
	claimsapi "github.com/BearBump/ClaimBox/internal/api/claims_api"
	"github.com/BearBump/ClaimBox/internal/broker/kafka"
	"github.com/BearBump/ClaimBox/internal/cache/rediscache"
	"github.com/BearBump/ClaimBox/internal/services/claims"
	"github.com/BearBump/ClaimBox/internal/storage/pgclaims"
)

type claimAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     claimAPIOpts
	api      *claimsapi.ClaimsAPI
	svc      *claims.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapClaimAPI() *claimAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ClaimBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ClaimBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "claim-api"
	}
	statusTopic := cfg.Kafka.ClaimStatusChangedTopicName
	if statusTopic == "" {
		statusTopic = "claim.status.changed"
	}
	shippingTopic := cfg.Kafka.ReturnShippingUpdatedTopicName
	if shippingTopic == "" {
		shippingTopic = "claim.return.shipping.updated"
	}

	cacheTTL := time.Duration(cfg.ClaimBox.CurrentStatusTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	svc := claims.New(st, rc, cacheTTL)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, shippingTopic, consumerGroup)

	api := claimsapi.New(svc, producer, statusTopic)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &claimAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: claimAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			consumeTopic:  shippingTopic,
			consumerGroup: consumerGroup,
		},
		api:      api,
		svc:      svc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgclaims.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgclaims.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *claimAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *claimAPIApp) Run() error {
	return runClaimAPI(a.ctx, a.opts, a.api, a.svc, a.consumer)
}
