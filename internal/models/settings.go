package models

import (
	"regexp"
	"time"
)

// Frequency defines the delivery cadence for notifications
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyHourly    Frequency = "hourly"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
)

// IsValidFrequency reports whether s names a known frequency
func IsValidFrequency(s string) bool {
	switch Frequency(s) {
	case FrequencyImmediate, FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

// DigestFrequencies lists the periodic frequency buckets
func DigestFrequencies() []Frequency {
	return []Frequency{FrequencyHourly, FrequencyDaily, FrequencyWeekly}
}

// DefaultWindow returns the fallback digest window width for a frequency,
// used when no previous send exists
func (f Frequency) DefaultWindow() time.Duration {
	switch f {
	case FrequencyHourly:
		return time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// RulePriority is informational; it does not gate delivery
type RulePriority string

const (
	PriorityLow    RulePriority = "low"
	PriorityNormal RulePriority = "normal"
	PriorityHigh   RulePriority = "high"
)

// NotificationRule is a configurable filter controlling which activity
// events produce notifications
type NotificationRule struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Enabled         bool         `json:"enabled"`
	ActionTypes     []string     `json:"action_types"`
	ResourceTypes   []string     `json:"resource_types"`
	TriggerRoles    []string     `json:"trigger_roles"`
	TriggerUserIDs  []string     `json:"trigger_user_ids,omitempty"`
	Priority        RulePriority `json:"priority"`
	IncludeDetails  bool         `json:"include_details"`
	SubjectTemplate string       `json:"subject_template,omitempty"`
}

// Validate rejects rules referencing unknown action or resource types.
// The ALL sentinel is accepted in any constraint set.
func (r *NotificationRule) Validate() error {
	if r.Name == "" {
		return &ValidationError{Field: "name", Value: ""}
	}
	for _, a := range r.ActionTypes {
		if a != MatchAll && !IsValidActionType(a) {
			return &ValidationError{Field: "action_types", Value: a}
		}
	}
	for _, rt := range r.ResourceTypes {
		if rt != MatchAll && !IsValidResourceType(rt) {
			return &ValidationError{Field: "resource_types", Value: rt}
		}
	}
	switch r.Priority {
	case "", PriorityLow, PriorityNormal, PriorityHigh:
	default:
		return &ValidationError{Field: "priority", Value: string(r.Priority)}
	}
	return nil
}

// ThrottleConfig caps per-recipient notification volume
type ThrottleConfig struct {
	Enabled          bool `json:"enabled"`
	MaxEmailsPerHour int  `json:"max_emails_per_hour"`
}

// HistoryEntry records one notification send attempt
type HistoryEntry struct {
	ID             string    `json:"id"`
	SentAt         time.Time `json:"sent_at"`
	RecipientCount int       `json:"recipient_count"`
	ActivityCount  int       `json:"activity_count"`
	RecipientIDs   []string  `json:"recipient_ids"`
}

var scheduledTimeRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// IsValidScheduledTime reports whether s is a valid HH:MM 24-hour time
func IsValidScheduledTime(s string) bool {
	return scheduledTimeRe.MatchString(s)
}

// NotificationSettings is the single global configuration aggregate for
// the notification engine. Version supports optimistic-concurrency saves.
type NotificationSettings struct {
	ID            string             `json:"id"`
	Enabled       bool               `json:"enabled"`
	Recipients    []string           `json:"recipients"`
	Frequency     Frequency          `json:"frequency"`
	ScheduledTime string             `json:"scheduled_time,omitempty"`
	Rules         []NotificationRule `json:"rules"`
	LastSentAt    *time.Time         `json:"last_sent_at,omitempty"`
	History       []HistoryEntry     `json:"history"`
	Throttling    ThrottleConfig     `json:"throttling"`
	Version       int64              `json:"version"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Validate rejects malformed settings at configuration-write time
func (s *NotificationSettings) Validate() error {
	if !IsValidFrequency(string(s.Frequency)) {
		return &ValidationError{Field: "frequency", Value: string(s.Frequency)}
	}
	if s.ScheduledTime != "" && !IsValidScheduledTime(s.ScheduledTime) {
		return &ValidationError{Field: "scheduled_time", Value: s.ScheduledTime}
	}
	if s.Throttling.Enabled && s.Throttling.MaxEmailsPerHour <= 0 {
		return &ValidationError{Field: "throttling.max_emails_per_hour", Value: "non-positive"}
	}
	for i := range s.Rules {
		if err := s.Rules[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FindRule returns the rule with the given id, or nil
func (s *NotificationSettings) FindRule(id string) *NotificationRule {
	for i := range s.Rules {
		if s.Rules[i].ID == id {
			return &s.Rules[i]
		}
	}
	return nil
}

// DefaultSettings returns the lazily-created settings aggregate with its
// single default rule
func DefaultSettings() *NotificationSettings {
	return &NotificationSettings{
		ID:        "global",
		Enabled:   true,
		Frequency: FrequencyImmediate,
		Rules: []NotificationRule{
			{
				Name:          "Default Rule",
				Enabled:       true,
				ActionTypes:   []string{string(ActionCreate), string(ActionDelete)},
				ResourceTypes: []string{MatchAll},
				TriggerRoles:  []string{MatchAll},
				Priority:      PriorityNormal,
			},
		},
		Throttling: ThrottleConfig{
			Enabled:          true,
			MaxEmailsPerHour: 10,
		},
	}
}
