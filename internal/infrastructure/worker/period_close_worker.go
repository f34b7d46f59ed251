package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// MonthCloser closes every OPEN period of one month
type MonthCloser interface {
	CloseMonth(ctx context.Context, year, month int) (int, error)
}

// PeriodCloseConfig configures the scheduled period close
type PeriodCloseConfig struct {
	// Spec is a five-field cron expression, e.g. "0 2 1 * *" for 02:00 on
	// the first of every month
	Spec     string
	Location *time.Location
	Timeout  time.Duration
}

// PeriodCloseWorker closes the previous month's OPEN periods on a cron
// schedule. Periods already closed or locked by someone else are skipped by
// the closer.
type PeriodCloseWorker struct {
	closer MonthCloser
	cfg    PeriodCloseConfig
	logger *zap.Logger

	mu    sync.Mutex
	cron  *cron.Cron
	ctx   context.Context
	now   func() time.Time
	runMu sync.Mutex
}

// NewPeriodCloseWorker validates the cron spec and creates the worker
func NewPeriodCloseWorker(closer MonthCloser, cfg PeriodCloseConfig, logger *zap.Logger) (*PeriodCloseWorker, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("invalid period close schedule %q: %w", cfg.Spec, err)
	}

	return &PeriodCloseWorker{
		closer: closer,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Name implements Worker
func (w *PeriodCloseWorker) Name() string {
	return "period-close"
}

// Start implements Worker
func (w *PeriodCloseWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron != nil {
		return fmt.Errorf("period close worker already started")
	}

	c := cron.New(
		cron.WithLocation(w.cfg.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(w.cfg.Spec, func() { w.RunOnce() }); err != nil {
		return fmt.Errorf("failed to schedule period close: %w", err)
	}

	w.ctx = ctx
	w.cron = c
	c.Start()

	w.logger.Info("Period close scheduled",
		zap.String("spec", w.cfg.Spec),
		zap.String("location", w.cfg.Location.String()))
	return nil
}

// Stop implements Worker. It waits for a running close to finish.
func (w *PeriodCloseWorker) Stop() error {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()

	if c == nil {
		return nil
	}
	<-c.Stop().Done()
	return nil
}

// RunOnce closes the month before the current one and returns how many
// periods it closed
func (w *PeriodCloseWorker) RunOnce() int {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	w.mu.Lock()
	parent := w.ctx
	w.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithTimeout(parent, w.cfg.Timeout)
	defer cancel()

	year, month := previousMonth(w.now().In(w.cfg.Location))
	closed, err := w.closer.CloseMonth(ctx, year, month)
	if err != nil {
		w.logger.Error("Period close failed",
			zap.Int("year", year),
			zap.Int("month", month),
			zap.Int("closed", closed),
			zap.Error(err))
		return closed
	}

	w.logger.Info("Period close completed",
		zap.Int("year", year),
		zap.Int("month", month),
		zap.Int("closed", closed))
	return closed
}

func previousMonth(now time.Time) (int, int) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prev := first.AddDate(0, -1, 0)
	return prev.Year(), int(prev.Month())
}
