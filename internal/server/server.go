package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/medialib/activity-notifier/internal/engine"
	"github.com/medialib/activity-notifier/internal/metrics"
	"github.com/medialib/activity-notifier/internal/models"
	"github.com/medialib/activity-notifier/internal/notification"
	"github.com/medialib/activity-notifier/internal/storage"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableHealth  bool          `json:"enable_health"`
}

// HTTPServer exposes the administrative API for the notification engine
type HTTPServer struct {
	config         *ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	engine         *engine.Engine
	delivery       *notification.Manager
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	config *ServerConfig,
	store storage.Storage,
	eng *engine.Engine,
	delivery *notification.Manager,
	metricsManager *metrics.Manager,
) *HTTPServer {
	server := &HTTPServer{
		config:         config,
		storage:        store,
		engine:         eng,
		delivery:       delivery,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
	}

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Activity event endpoints
	api.HandleFunc("/events", s.listEventsHandler).Methods("GET")
	api.HandleFunc("/events", s.recordEventHandler).Methods("POST")
	api.HandleFunc("/events/{id}", s.getEventHandler).Methods("GET")

	// Settings endpoints
	api.HandleFunc("/settings", s.getSettingsHandler).Methods("GET")
	api.HandleFunc("/settings", s.updateSettingsHandler).Methods("PUT")

	// Rule endpoints
	api.HandleFunc("/rules", s.listRulesHandler).Methods("GET")
	api.HandleFunc("/rules", s.addRuleHandler).Methods("POST")
	api.HandleFunc("/rules/{id}", s.getRuleHandler).Methods("GET")
	api.HandleFunc("/rules/{id}", s.updateRuleHandler).Methods("PUT")
	api.HandleFunc("/rules/{id}", s.deleteRuleHandler).Methods("DELETE")

	// Notification operations
	api.HandleFunc("/history", s.historyHandler).Methods("GET")
	api.HandleFunc("/digest/{frequency}", s.runDigestHandler).Methods("POST")
	api.HandleFunc("/test-notification", s.testNotificationHandler).Methods("POST")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", s.storage.Ping() == nil)
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("delivery", s.delivery.HasChannels())
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithField("error", err.Error()).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Surface immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop gracefully shuts down the HTTP server
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// Health and stats handlers

func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.storage.Ping(); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"storage":  storageStats,
		"delivery": s.delivery.GetStats(),
	})
}

// Activity event handlers

func (s *HTTPServer) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	filter := models.EventFilter{Limit: 100}

	query := r.URL.Query()
	if v := query.Get("action_type"); v != "" {
		filter.ActionType = &v
	}
	if v := query.Get("resource_type"); v != "" {
		filter.ResourceType = &v
	}
	if v := query.Get("actor_id"); v != "" {
		filter.ActorID = &v
	}
	if v := query.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.FromTime = &t
		}
	}
	if v := query.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.ToTime = &t
		}
	}
	if v := query.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if v := query.Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset > 0 {
			filter.Offset = offset
		}
	}

	events, err := s.storage.GetEvents(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve events", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (s *HTTPServer) recordEventHandler(w http.ResponseWriter, r *http.Request) {
	var event models.ActivityEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := s.engine.RecordAndNotify(r.Context(), &event); err != nil {
		var appErr *utils.AppError
		if errors.As(err, &appErr) && appErr.Code == utils.ErrCodeValidation {
			s.writeError(w, http.StatusBadRequest, "Invalid activity event", err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to record event", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, event)
}

func (s *HTTPServer) getEventHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	event, err := s.storage.GetEvent(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve event", err)
		return
	}
	if event == nil {
		s.writeError(w, http.StatusNotFound, "Event not found", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, event)
}

// Settings handlers

func (s *HTTPServer) getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := s.engine.GetSettings(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve settings", err)
		return
	}

	s.writeJSON(w, http.StatusOK, settings)
}

func (s *HTTPServer) updateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var update engine.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	settings, err := s.engine.UpdateSettings(r.Context(), &update)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, settings)
}

// Rule handlers

func (s *HTTPServer) listRulesHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := s.engine.GetSettings(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve rules", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": settings.Rules,
		"count": len(settings.Rules),
	})
}

func (s *HTTPServer) addRuleHandler(w http.ResponseWriter, r *http.Request) {
	var rule models.NotificationRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created, err := s.engine.AddRule(r.Context(), &rule)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) getRuleHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	settings, err := s.engine.GetSettings(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve rule", err)
		return
	}

	rule := settings.FindRule(id)
	if rule == nil {
		s.writeError(w, http.StatusNotFound, "Rule not found", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, rule)
}

func (s *HTTPServer) updateRuleHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var rule models.NotificationRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := s.engine.UpdateRule(r.Context(), id, &rule)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) deleteRuleHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.engine.DeleteRule(r.Context(), id); err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Rule deleted",
		"id":      id,
	})
}

// Notification operation handlers

func (s *HTTPServer) historyHandler(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	history, err := s.engine.GetHistory(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve history", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
}

func (s *HTTPServer) runDigestHandler(w http.ResponseWriter, r *http.Request) {
	frequency := mux.Vars(r)["frequency"]

	if !models.IsValidFrequency(frequency) || frequency == string(models.FrequencyImmediate) {
		s.writeError(w, http.StatusBadRequest, "Invalid digest frequency", nil)
		return
	}

	if err := s.engine.RunDigest(r.Context(), models.Frequency(frequency)); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Digest run failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Digest run completed",
		"frequency": frequency,
	})
}

func (s *HTTPServer) testNotificationHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SendTestNotification(r.Context()); err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Test notification sent",
	})
}

// Response helpers

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to encode JSON response")
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.writeJSON(w, status, response)
}

// writeEngineError maps engine error codes to HTTP statuses
func (s *HTTPServer) writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrVersionConflict) {
		s.writeError(w, http.StatusConflict, "Settings were modified concurrently, retry", err)
		return
	}

	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case utils.ErrCodeValidation:
			s.writeError(w, http.StatusBadRequest, appErr.Message, err)
			return
		case utils.ErrCodeNotFound:
			s.writeError(w, http.StatusNotFound, appErr.Message, err)
			return
		case utils.ErrCodeConflict:
			s.writeError(w, http.StatusConflict, appErr.Message, err)
			return
		}
	}

	s.writeError(w, http.StatusInternalServerError, "Internal error", err)
}
