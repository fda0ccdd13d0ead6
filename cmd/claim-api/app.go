package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	claimsapi "github.com/BearBump/ClaimBox/internal/api/claims_api"
	"github.com/BearBump/ClaimBox/internal/broker/messages"
	"github.com/BearBump/ClaimBox/internal/models"
	"github.com/BearBump/ClaimBox/internal/services/claims"
)

type claimAPIOpts struct {
	httpAddr    string
	swaggerPath string

	consumeTopic  string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runClaimAPI(ctx context.Context, opts claimAPIOpts, api *claimsapi.ClaimsAPI, svc *claims.Service, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	api.Routes(r)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.consumeTopic, "group", opts.consumerGroup)
			_ = consumer.Consume(ctx, func(_key, value []byte) error {
				return applyReturnShippingUpdate(ctx, svc, value)
			})
		}()
	}

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

// applyReturnShippingUpdate применяет нормализованный апдейт перевозчика.
// Доменные отказы (регресс статуса, терминальная претензия) коммитим:
// ретрай такого сообщения бессмысленен. Конфликт версий ретраим на месте,
// каждый заход перечитывает свежий снапшот.
func applyReturnShippingUpdate(ctx context.Context, svc *claims.Service, value []byte) error {
	var m messages.ReturnShippingUpdated
	if err := json.Unmarshal(value, &m); err != nil {
		slog.Error("unmarshal return shipping update", "error", err.Error())
		return nil
	}

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		_, err = svc.UpdateReturnShippingStatus(ctx, m.ClaimID, models.ReturnShippingStatus(m.Status), m.TrackingNumber)
		if !errors.Is(err, models.ErrVersionConflict) {
			break
		}
	}
	if err == nil {
		return nil
	}

	var ve *models.ValidationError
	var sc *models.StateConflictError
	if errors.As(err, &ve) || errors.As(err, &sc) || errors.Is(err, models.ErrNotFound) {
		slog.Warn("return shipping update skipped",
			"claim_id", m.ClaimID, "status", m.Status, "reason", err.Error())
		return nil
	}
	return err
}
