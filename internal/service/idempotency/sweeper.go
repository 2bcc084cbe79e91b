package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepBatch    = 500
	defaultStaleAfter    = 5 * time.Minute
)

// Метки метрик чистки.
const (
	sweptStale   = "stale"
	sweptExpired = "expired"
)

// SweeperConfig задаёт параметры чистки попыток оформления.
type SweeperConfig struct {
	// Interval между проходами.
	Interval time.Duration
	// Batch ограничивает число строк за один запрос к хранилищу.
	Batch int
	// StaleAfter: попытка в processing без движения дольше этого срока считается брошенной
	// (процесс упал посреди оформления), и её ключ освобождается.
	StaleAfter time.Duration
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = defaultSweepInterval
	}
	if c.Batch <= 0 {
		c.Batch = defaultSweepBatch
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	return c
}

// SweepResult: итог одного прохода.
type SweepResult struct {
	Released int
	Expired  int
}

// Sweeper освобождает зависшие попытки оформления и удаляет попытки с истёкшим TTL.
type Sweeper struct {
	repo    domain.CheckoutAttemptRepository
	cfg     SweeperConfig
	logger  *log.Entry
	metrics *metrics.MarketplaceMetrics
	now     func() time.Time
}

// NewSweeper создаёт Sweeper. metrics может быть nil.
func NewSweeper(repo domain.CheckoutAttemptRepository, cfg SweeperConfig, logger *log.Entry, mx *metrics.MarketplaceMetrics) *Sweeper {
	if logger == nil {
		logger = log.WithField("component", "checkout-attempt-sweeper")
	}
	return &Sweeper{
		repo:    repo,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: mx,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run выполняет проход сразу и затем по таймеру до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("checkout attempt sweeper выключен: нет репозитория")
		return
	}

	s.runOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	result, err := s.Sweep(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		s.recordSweep("error")
		s.logger.WithError(err).WithFields(log.Fields{
			"released": result.Released,
			"expired":  result.Expired,
		}).Warn("checkout attempt sweep failed")
		return
	}

	s.recordSweep("ok")
	if result.Released > 0 || result.Expired > 0 {
		s.logger.WithFields(log.Fields{
			"released": result.Released,
			"expired":  result.Expired,
		}).Info("checkout attempts swept")
	}
}

// Sweep освобождает попытки, зависшие в processing дольше StaleAfter, затем удаляет
// попытки с истёкшим TTL. Оба шага идут порциями по Batch до исчерпания.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	var result SweepResult

	released, err := s.drain(ctx, sweptStale, func(ctx context.Context) (int, error) {
		return s.repo.ReleaseStale(ctx, now.Add(-s.cfg.StaleAfter), s.cfg.Batch)
	})
	result.Released = released
	if err != nil {
		return result, fmt.Errorf("release stale checkout attempts: %w", err)
	}

	expired, err := s.drain(ctx, sweptExpired, func(ctx context.Context) (int, error) {
		return s.repo.DeleteExpired(ctx, now, s.cfg.Batch)
	})
	result.Expired = expired
	if err != nil {
		return result, fmt.Errorf("delete expired checkout attempts: %w", err)
	}
	return result, nil
}

func (s *Sweeper) drain(ctx context.Context, kind string, step func(context.Context) (int, error)) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := step(ctx)
		if err != nil {
			return total, err
		}
		total += n
		if s.metrics != nil {
			s.metrics.RecordAttemptsSwept(kind, n)
		}
		if n < s.cfg.Batch {
			return total, nil
		}
	}
}

func (s *Sweeper) recordSweep(result string) {
	if s.metrics != nil {
		s.metrics.RecordAttemptSweep(result)
	}
}
