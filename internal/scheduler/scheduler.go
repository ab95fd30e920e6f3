package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medialib/activity-notifier/internal/engine"
	"github.com/medialib/activity-notifier/internal/models"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// Config holds the periodic trigger configuration
type Config struct {
	Enabled       bool          `json:"enabled"`
	CheckInterval time.Duration `json:"check_interval"`
}

// Scheduler triggers digest runs per frequency bucket. It only decides
// WHEN to fire; windowing, locking and delivery live in the engine.
type Scheduler struct {
	config  *Config
	engine  *engine.Engine
	logger  *logrus.Entry
	lastRun map[models.Frequency]time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates a digest scheduler
func NewScheduler(config *Config, eng *engine.Engine) *Scheduler {
	return &Scheduler{
		config:  config,
		engine:  eng,
		logger:  utils.GetLogger().WithField("component", "scheduler"),
		lastRun: make(map[models.Frequency]time.Time),
	}
}

// Start begins the periodic trigger loop
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Digest scheduler disabled")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	interval := s.config.CheckInterval
	if interval <= 0 {
		interval = time.Minute
	}

	go s.loop(runCtx, interval)

	s.logger.WithField("check_interval", interval).Info("Digest scheduler started")
	return nil
}

// Stop stops the trigger loop and waits for it to exit
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Digest scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// tick fires every due frequency bucket. The engine itself skips buckets
// that do not match the configured delivery frequency.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	for _, frequency := range models.DigestFrequencies() {
		last, ran := s.lastRun[frequency]
		if ran && now.Sub(last) < frequency.DefaultWindow() {
			continue
		}

		s.lastRun[frequency] = now
		if err := s.engine.RunDigest(ctx, frequency); err != nil {
			s.logger.WithFields(logrus.Fields{
				"frequency": frequency,
				"error":     err.Error(),
			}).Error("Digest run failed")
		}
	}
}
