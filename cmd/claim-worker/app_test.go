package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/ClaimBox/config"
	"github.com/BearBump/ClaimBox/internal/models"
	"github.com/BearBump/ClaimBox/internal/services/sweeper"
)

type fakeRepo struct{}

func (r *fakeRepo) SweepStaleReturns(ctx context.Context, now time.Time, staleAfter, remindEvery time.Duration, limit int) ([]*models.Claim, error) {
	return []*models.Claim{}, nil
}

type noopProducer struct{}

func (p noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

func TestDefaultWorkerFactories_ProducerAndRateLimiter_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	require.NotNil(t, f.newProducer(cfg))
	require.NotNil(t, f.newRateLimiter(cfg))
}

func TestRunClaimWorker_ContextCanceled(t *testing.T) {
	calledClose := false

	f := workerFactories{
		newStorage: func(cfg *config.Config) (sweeper.Repository, func(), error) {
			return &fakeRepo{}, func() { calledClose = true }, nil
		},
		newProducer: func(cfg *config.Config) sweeper.Producer {
			return noopProducer{}
		},
		newRateLimiter: func(cfg *config.Config) sweeper.RateLimiter {
			return nil
		},
	}

	cfg := &config.Config{
		Kafka:    config.KafkaConfig{ReturnStaleTopicName: "t"},
		ClaimBox: config.ClaimBoxConfig{WorkerPollIntervalSeconds: 1, WorkerHTTPAddr: "127.0.0.1:0"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunClaimWorker(ctx, cfg, f)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, calledClose)
}

func TestRunWorkerHTTPServer_StatsAndTrigger(t *testing.T) {
	sw := sweeper.New(&fakeRepo{}, noopProducer{}, nil, "t")
	cfg := &config.Config{
		ClaimBox: config.ClaimBoxConfig{WorkerBatchSize: 50, WorkerStaleAfterHours: 48},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: "127.0.0.1:0",
			onListen: func(addr string) { addrCh <- addr },
			sweeper:  sw,
			cfg:      cfg,
		})
	}()

	addr := <-addrCh

	resp, err := http.Get("http://" + addr + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	var st sweeper.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	require.False(t, st.StartedAt.IsZero())

	resp2, err := http.Post("http://"+addr+"/trigger", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, 200, resp2.StatusCode)

	resp3, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, 200, resp3.StatusCode)

	cancel()
	<-errCh
}
