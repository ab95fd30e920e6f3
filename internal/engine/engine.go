package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medialib/activity-notifier/internal/metrics"
	"github.com/medialib/activity-notifier/internal/models"
	"github.com/medialib/activity-notifier/internal/notification"
	"github.com/medialib/activity-notifier/internal/storage"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// Config holds notification engine configuration
type Config struct {
	Enabled          bool          `json:"enabled"`
	DigestEventCap   int           `json:"digest_event_cap"`
	MaxWindow        time.Duration `json:"max_window"`
	HistoryRetention int           `json:"history_retention"`
	DispatchTimeout  time.Duration `json:"dispatch_timeout"`
	AdminURL         string        `json:"admin_url"`
}

// DefaultConfig returns engine defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		DigestEventCap:   500,
		MaxWindow:        30 * 24 * time.Hour,
		HistoryRetention: 1000,
		DispatchTimeout:  30 * time.Second,
	}
}

// Engine is the activity notification engine: it evaluates activity
// events against the configured rules and delivers immediate or digest
// notifications to administrators.
type Engine struct {
	store          storage.Storage
	sender         notification.Sender
	metricsManager *metrics.Manager
	logger         *logrus.Entry
	config         *Config

	// digestLocks serialize digest runs per frequency bucket so an
	// overlapping trigger cannot double-count a window
	digestLocks map[models.Frequency]*sync.Mutex

	wg sync.WaitGroup
}

// NewEngine creates a notification engine
func NewEngine(store storage.Storage, sender notification.Sender, metricsManager *metrics.Manager, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	locks := make(map[models.Frequency]*sync.Mutex)
	for _, f := range models.DigestFrequencies() {
		locks[f] = &sync.Mutex{}
	}

	return &Engine{
		store:          store,
		sender:         sender,
		metricsManager: metricsManager,
		logger:         utils.GetLogger().WithField("component", "engine"),
		config:         config,
		digestLocks:    locks,
	}
}

// RecordAndNotify persists the activity event and schedules immediate
// dispatch. The dispatch runs detached from the caller: its outcome is
// logged, never returned, so notification delivery can never fail the
// operation that triggered it.
func (e *Engine) RecordAndNotify(ctx context.Context, event *models.ActivityEvent) error {
	if event.ID == "" {
		event.ID = utils.GenerateID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := event.Validate(); err != nil {
		return utils.NewAppError(utils.ErrCodeValidation, "Invalid activity event", err.Error())
	}

	if err := e.store.SaveEvent(ctx, event); err != nil {
		return err
	}

	if e.metricsManager != nil {
		e.metricsManager.GetPrometheusMetrics().RecordEventRecorded(
			string(event.ActionType), string(event.ResourceType))
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		dispatchCtx, cancel := context.WithTimeout(context.Background(), e.config.DispatchTimeout)
		defer cancel()

		if err := e.OnActivity(dispatchCtx, event); err != nil {
			e.logger.WithFields(logrus.Fields{
				"event_id": event.ID,
				"error":    err.Error(),
			}).Error("Immediate dispatch failed")
		}
	}()

	return nil
}

// Wait blocks until all in-flight dispatches have finished. Used during
// shutdown and in tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) recordEvaluation(outcome string) {
	if e.metricsManager != nil {
		e.metricsManager.GetPrometheusMetrics().RecordEvaluation(outcome)
	}
}

func (e *Engine) recordThrottled() {
	if e.metricsManager != nil {
		e.metricsManager.GetPrometheusMetrics().RecordNotificationThrottled()
	}
}
