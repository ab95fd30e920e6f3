package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medialib/activity-notifier/internal/models"
)

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()

	t.Run("Partial Update", func(t *testing.T) {
		store := newMemStore(immediateSettings("old@example.com"))
		eng := NewEngine(store, &captureSender{}, nil, testEngineConfig())

		enabled := false
		frequency := string(models.FrequencyDaily)
		scheduled := "09:30"
		recipients := []string{"new@example.com", "New@Example.com"}

		updated, err := eng.UpdateSettings(ctx, &SettingsUpdate{
			Enabled:       &enabled,
			Frequency:     &frequency,
			ScheduledTime: &scheduled,
			Recipients:    &recipients,
		})
		require.NoError(t, err)

		assert.False(t, updated.Enabled)
		assert.Equal(t, models.FrequencyDaily, updated.Frequency)
		assert.Equal(t, "09:30", updated.ScheduledTime)
		assert.Equal(t, []string{"new@example.com"}, updated.Recipients)

		// Persisted
		fresh, _ := store.GetSettings(ctx)
		assert.Equal(t, models.FrequencyDaily, fresh.Frequency)
	})

	t.Run("Invalid Frequency Rejected", func(t *testing.T) {
		store := newMemStore(immediateSettings("a@example.com"))
		eng := NewEngine(store, &captureSender{}, nil, testEngineConfig())

		frequency := "fortnightly"
		_, err := eng.UpdateSettings(ctx, &SettingsUpdate{Frequency: &frequency})
		require.Error(t, err)

		fresh, _ := store.GetSettings(ctx)
		assert.Equal(t, models.FrequencyImmediate, fresh.Frequency)
	})

	t.Run("Invalid Scheduled Time Rejected", func(t *testing.T) {
		eng := NewEngine(newMemStore(immediateSettings()), &captureSender{}, nil, testEngineConfig())

		scheduled := "25:99"
		_, err := eng.UpdateSettings(ctx, &SettingsUpdate{ScheduledTime: &scheduled})
		assert.Error(t, err)
	})

	t.Run("Invalid Throttle Rejected", func(t *testing.T) {
		eng := NewEngine(newMemStore(immediateSettings()), &captureSender{}, nil, testEngineConfig())

		throttling := models.ThrottleConfig{Enabled: true, MaxEmailsPerHour: 0}
		_, err := eng.UpdateSettings(ctx, &SettingsUpdate{Throttling: &throttling})
		assert.Error(t, err)
	})
}

func TestRuleManagement(t *testing.T) {
	ctx := context.Background()

	t.Run("Add Rule", func(t *testing.T) {
		store := newMemStore(immediateSettings("a@example.com"))
		eng := NewEngine(store, &captureSender{}, nil, testEngineConfig())

		rule := wildcardRule("")
		rule.Name = "Uploads"
		rule.ActionTypes = []string{"UPLOAD"}

		created, err := eng.AddRule(ctx, &rule)
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)

		fresh, _ := store.GetSettings(ctx)
		require.Len(t, fresh.Rules, 2)
		assert.Equal(t, "Uploads", fresh.Rules[1].Name)
	})

	t.Run("Add Invalid Rule", func(t *testing.T) {
		eng := NewEngine(newMemStore(immediateSettings()), &captureSender{}, nil, testEngineConfig())

		rule := wildcardRule("")
		rule.Name = "bad"
		rule.ActionTypes = []string{"EXPLODE"}

		_, err := eng.AddRule(ctx, &rule)
		assert.Error(t, err)
	})

	t.Run("Update Rule Preserves Position", func(t *testing.T) {
		settings := immediateSettings("a@example.com")
		second := wildcardRule("r2")
		settings.Rules = append(settings.Rules, second)
		store := newMemStore(settings)
		eng := NewEngine(store, &captureSender{}, nil, testEngineConfig())

		replacement := wildcardRule("ignored")
		replacement.Name = "renamed"
		updated, err := eng.UpdateRule(ctx, "r1", &replacement)
		require.NoError(t, err)
		assert.Equal(t, "r1", updated.ID)

		fresh, _ := store.GetSettings(ctx)
		require.Len(t, fresh.Rules, 2)
		assert.Equal(t, "renamed", fresh.Rules[0].Name)
		assert.Equal(t, "r2", fresh.Rules[1].ID)
	})

	t.Run("Update Unknown Rule", func(t *testing.T) {
		eng := NewEngine(newMemStore(immediateSettings()), &captureSender{}, nil, testEngineConfig())

		rule := wildcardRule("")
		rule.Name = "x"
		_, err := eng.UpdateRule(ctx, "missing", &rule)
		assert.Error(t, err)
	})

	t.Run("Delete Rule", func(t *testing.T) {
		settings := immediateSettings("a@example.com")
		settings.Rules = append(settings.Rules, wildcardRule("r2"))
		store := newMemStore(settings)
		eng := NewEngine(store, &captureSender{}, nil, testEngineConfig())

		require.NoError(t, eng.DeleteRule(ctx, "r1"))

		fresh, _ := store.GetSettings(ctx)
		require.Len(t, fresh.Rules, 1)
		assert.Equal(t, "r2", fresh.Rules[0].ID)
	})

	t.Run("Delete Unknown Rule", func(t *testing.T) {
		eng := NewEngine(newMemStore(immediateSettings()), &captureSender{}, nil, testEngineConfig())
		assert.Error(t, eng.DeleteRule(ctx, "missing"))
	})
}

func TestGetHistory(t *testing.T) {
	ctx := context.Background()

	settings := immediateSettings("a@example.com")
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		settings.History = append(settings.History, models.HistoryEntry{
			ID:     string(rune('a' + i)),
			SentAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	eng := NewEngine(newMemStore(settings), &captureSender{}, nil, testEngineConfig())

	t.Run("Newest First", func(t *testing.T) {
		history, err := eng.GetHistory(ctx, 0)
		require.NoError(t, err)
		require.Len(t, history, 5)
		assert.Equal(t, "e", history[0].ID)
		assert.Equal(t, "a", history[4].ID)
	})

	t.Run("Limit Applied", func(t *testing.T) {
		history, err := eng.GetHistory(ctx, 2)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "e", history[0].ID)
		assert.Equal(t, "d", history[1].ID)
	})
}
