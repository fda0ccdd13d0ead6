package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/ClaimBox/internal/broker/messages"
	"github.com/BearBump/ClaimBox/internal/metrics"
	"github.com/BearBump/ClaimBox/internal/models"
)

type Repository interface {
	SweepStaleReturns(ctx context.Context, now time.Time, staleAfter, remindEvery time.Duration, limit int) ([]*models.Claim, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Sweeper периодически выбирает "зависшие" обратные отправления
// (возврат одобрен, трек давно не обновлялся) и шлёт напоминания в Kafka.
// Состояние претензии он не меняет, только last_reminded_at через репозиторий.
type Sweeper struct {
	repo     Repository
	producer Producer
	rl       RateLimiter

	topic string

	pollInterval       time.Duration
	batchSize          int
	staleAfter         time.Duration
	remindEvery        time.Duration
	rateLimitPerMinute int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalSwept          atomic.Int64
	totalPublished      atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, producer Producer, rl RateLimiter, topic string) *Sweeper {
	return &Sweeper{
		repo: repo, producer: producer, rl: rl, topic: topic,
		pollInterval:       time.Minute,
		batchSize:          100,
		staleAfter:         48 * time.Hour,
		remindEvery:        24 * time.Hour,
		rateLimitPerMinute: 600,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (s *Sweeper) WithSettings(pollInterval time.Duration, batchSize int, staleAfter, remindEvery time.Duration, rlPerMin int64) *Sweeper {
	if pollInterval > 0 {
		s.pollInterval = pollInterval
	}
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if staleAfter > 0 {
		s.staleAfter = staleAfter
	}
	if remindEvery > 0 {
		s.remindEvery = remindEvery
	}
	if rlPerMin > 0 {
		s.rateLimitPerMinute = rlPerMin
	}
	return s
}

// Trigger forces an immediate sweep cycle (best-effort, non-blocking).
func (s *Sweeper) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalSwept     int64      `json:"totalSwept"`
	TotalPublished int64      `json:"totalPublished"`
	TotalErrors    int64      `json:"totalErrors"`
	LastError      string     `json:"lastError,omitempty"`
}

func (s *Sweeper) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalSwept:     s.totalSwept.Load(),
		TotalPublished: s.totalPublished.Load(),
		TotalErrors:    s.totalErrors.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	s.lastCycleUnixNano.Store(now.UnixNano())

	items, err := s.repo.SweepStaleReturns(ctx, now, s.staleAfter, s.remindEvery, s.batchSize)
	if err != nil {
		s.fail(errors.Wrap(err, "sweep stale returns"))
		return
	}
	s.totalSwept.Add(int64(len(items)))

	for _, c := range items {
		if err := s.remindOne(ctx, c, now); err != nil {
			s.fail(err)
			continue
		}
		s.totalPublished.Add(1)
		metrics.StaleRemindersTotal.Inc()
	}
}

func (s *Sweeper) remindOne(ctx context.Context, c *models.Claim, now time.Time) error {
	if s.rl != nil && s.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:stale-reminder:%s", now.Format("200601021504"))
		allowed, n, err := s.rl.Allow(ctx, minuteKey, s.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			// Не душим сервис нотификаций: лишнее напоминание догонит следующий цикл.
			slog.Warn("stale reminder rate limit exceeded", "count", n)
			return nil
		}
	}

	msg := messages.ReturnStaleReminder{
		ClaimID:     c.ID,
		ClaimNumber: c.ClaimNumber,
		OrderID:     c.OrderID,
		StaleSince:  c.UpdatedAt,
		DetectedAt:  now,
	}
	if c.ReturnShippingStatus != nil {
		msg.ReturnShippingStatus = string(*c.ReturnShippingStatus)
	}
	msg.ReturnCarrier = c.ReturnCarrier

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	key := []byte(fmt.Sprintf("%d", c.ID))
	if err := s.producer.Publish(ctx, s.topic, key, b); err != nil {
		return errors.Wrap(err, "publish stale reminder")
	}
	return nil
}

func (s *Sweeper) fail(err error) {
	s.totalErrors.Add(1)
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
	slog.Error("sweeper", "error", err.Error())
}
