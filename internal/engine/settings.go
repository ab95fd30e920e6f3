package engine

import (
	"context"

	"github.com/medialib/activity-notifier/internal/models"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// SettingsUpdate carries a partial update of the global settings; nil
// fields are left unchanged
type SettingsUpdate struct {
	Enabled       *bool                  `json:"enabled,omitempty"`
	Recipients    *[]string              `json:"recipients,omitempty"`
	Frequency     *string                `json:"frequency,omitempty"`
	ScheduledTime *string                `json:"scheduled_time,omitempty"`
	Throttling    *models.ThrottleConfig `json:"throttling,omitempty"`
}

// GetSettings returns the global settings aggregate
func (e *Engine) GetSettings(ctx context.Context) (*models.NotificationSettings, error) {
	return e.store.GetSettings(ctx)
}

// UpdateSettings applies a partial update to the global settings. Invalid
// values are rejected before anything is persisted; a concurrent edit
// surfaces as a version conflict for the caller to retry.
func (e *Engine) UpdateSettings(ctx context.Context, update *SettingsUpdate) (*models.NotificationSettings, error) {
	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	if update.Enabled != nil {
		settings.Enabled = *update.Enabled
	}
	if update.Recipients != nil {
		settings.Recipients = utils.DedupeRecipients(*update.Recipients)
	}
	if update.Frequency != nil {
		settings.Frequency = models.Frequency(*update.Frequency)
	}
	if update.ScheduledTime != nil {
		settings.ScheduledTime = *update.ScheduledTime
	}
	if update.Throttling != nil {
		settings.Throttling = *update.Throttling
	}

	if err := settings.Validate(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid settings", err.Error())
	}

	if err := e.store.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}

	e.updateRulesGauge(settings)
	return settings, nil
}

// AddRule appends a new rule to the settings
func (e *Engine) AddRule(ctx context.Context, rule *models.NotificationRule) (*models.NotificationRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid rule", err.Error())
	}

	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	rule.ID = utils.GenerateID()
	settings.Rules = append(settings.Rules, *rule)

	if err := e.store.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}

	e.updateRulesGauge(settings)
	return rule, nil
}

// UpdateRule replaces an existing rule, preserving its position
func (e *Engine) UpdateRule(ctx context.Context, id string, rule *models.NotificationRule) (*models.NotificationRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid rule", err.Error())
	}

	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	existing := settings.FindRule(id)
	if existing == nil {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Rule not found", id)
	}

	rule.ID = id
	*existing = *rule

	if err := e.store.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}

	return rule, nil
}

// DeleteRule removes a rule by id
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		return err
	}

	index := -1
	for i := range settings.Rules {
		if settings.Rules[i].ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Rule not found", id)
	}

	settings.Rules = append(settings.Rules[:index], settings.Rules[index+1:]...)

	if err := e.store.SaveSettings(ctx, settings); err != nil {
		return err
	}

	e.updateRulesGauge(settings)
	return nil
}

// GetHistory returns the most recent history entries, newest first
func (e *Engine) GetHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	history := settings.History
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	// Newest first
	reversed := make([]models.HistoryEntry, len(history))
	for i, entry := range history {
		reversed[len(history)-1-i] = entry
	}

	return reversed, nil
}

func (e *Engine) updateRulesGauge(settings *models.NotificationSettings) {
	if e.metricsManager != nil {
		e.metricsManager.GetPrometheusMetrics().UpdateRulesConfigured(len(settings.Rules))
	}
}
