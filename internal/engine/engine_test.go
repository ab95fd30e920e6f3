package engine

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medialib/activity-notifier/internal/models"
	"github.com/medialib/activity-notifier/internal/notification"
	"github.com/medialib/activity-notifier/internal/storage"
	"github.com/medialib/activity-notifier/pkg/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger("error", "text", "stdout", "")
	os.Exit(m.Run())
}

// memStore is an in-memory Storage used to exercise the engine without a
// database. Settings saves enforce the same optimistic version check as
// the real implementations.
type memStore struct {
	mu             sync.Mutex
	events         []*models.ActivityEvent
	settings       *models.NotificationSettings
	forceConflicts int
}

func newMemStore(settings *models.NotificationSettings) *memStore {
	s := &memStore{}
	if settings != nil {
		if settings.Version == 0 {
			settings.Version = 1
		}
		s.settings = copySettings(settings)
	}
	return s
}

func copySettings(s *models.NotificationSettings) *models.NotificationSettings {
	data, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	var out models.NotificationSettings
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	out.Version = s.Version
	return &out
}

func (s *memStore) Connect() error { return nil }
func (s *memStore) Close() error   { return nil }
func (s *memStore) Ping() error    { return nil }
func (s *memStore) Migrate() error { return nil }

func (s *memStore) SaveEvent(ctx context.Context, event *models.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *event
	s.events = append(s.events, &copied)
	return nil
}

func (s *memStore) SaveEvents(ctx context.Context, events []*models.ActivityEvent) error {
	for _, event := range events {
		if err := s.SaveEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) GetEvent(ctx context.Context, id string) (*models.ActivityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.ID == id {
			copied := *event
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) matchFilter(event *models.ActivityEvent, filter models.EventFilter) bool {
	if filter.ActionType != nil && string(event.ActionType) != *filter.ActionType {
		return false
	}
	if filter.ResourceType != nil && string(event.ResourceType) != *filter.ResourceType {
		return false
	}
	if filter.ActorID != nil && event.ActorID != *filter.ActorID {
		return false
	}
	if filter.FromTime != nil && event.Timestamp.Before(*filter.FromTime) {
		return false
	}
	if filter.ToTime != nil && event.Timestamp.After(*filter.ToTime) {
		return false
	}
	return true
}

func (s *memStore) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.ActivityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.ActivityEvent
	for _, event := range s.events {
		if s.matchFilter(event, filter) {
			copied := *event
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *memStore) GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, event := range s.events {
		if s.matchFilter(event, filter) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) GetSettings(ctx context.Context) (*models.NotificationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		defaults := models.DefaultSettings()
		defaults.Version = 1
		s.settings = defaults
	}
	return copySettings(s.settings), nil
}

func (s *memStore) SaveSettings(ctx context.Context, settings *models.NotificationSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceConflicts > 0 {
		s.forceConflicts--
		return storage.ErrVersionConflict
	}
	if s.settings != nil && settings.Version != s.settings.Version {
		return storage.ErrVersionConflict
	}

	stored := copySettings(settings)
	stored.Version = settings.Version + 1
	s.settings = stored
	settings.Version++
	return nil
}

func (s *memStore) GetStorageStats(ctx context.Context) (*storage.StorageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &storage.StorageStats{TotalEvents: int64(len(s.events))}, nil
}

func (s *memStore) Cleanup(ctx context.Context, retentionDays int) error { return nil }

// captureSender records every message it is asked to deliver
type captureSender struct {
	mu   sync.Mutex
	sent []notification.Message
	fail map[string]error
}

func (c *captureSender) Send(ctx context.Context, msg *notification.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, *msg)
	if c.fail != nil {
		return c.fail[msg.To]
	}
	return nil
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) messages() []notification.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notification.Message, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *captureSender) recipients() []string {
	var out []string
	for _, msg := range c.messages() {
		out = append(out, msg.To)
	}
	return out
}

func testEngineConfig() *Config {
	cfg := DefaultConfig()
	cfg.DispatchTimeout = 5 * time.Second
	return cfg
}

func wildcardRule(id string) models.NotificationRule {
	return models.NotificationRule{
		ID:            id,
		Name:          id,
		Enabled:       true,
		ActionTypes:   []string{models.MatchAll},
		ResourceTypes: []string{models.MatchAll},
		TriggerRoles:  []string{models.MatchAll},
		Priority:      models.PriorityNormal,
	}
}

func immediateSettings(recipients ...string) *models.NotificationSettings {
	return &models.NotificationSettings{
		ID:         storage.SettingsID,
		Enabled:    true,
		Frequency:  models.FrequencyImmediate,
		Recipients: recipients,
		Rules:      []models.NotificationRule{wildcardRule("r1")},
		Throttling: models.ThrottleConfig{Enabled: true, MaxEmailsPerHour: 10},
	}
}

func TestRecordAndNotify(t *testing.T) {
	ctx := context.Background()

	t.Run("Valid Event Persisted And Dispatched", func(t *testing.T) {
		store := newMemStore(immediateSettings("admin@example.com"))
		sender := &captureSender{}
		eng := NewEngine(store, sender, nil, testEngineConfig())

		event := makeEvent(models.ActionCreate, models.ResourceMedia, "u1", "editor")
		require.NoError(t, eng.RecordAndNotify(ctx, event))
		eng.Wait()

		saved, err := store.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		require.NotNil(t, saved)

		msgs := sender.messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "admin@example.com", msgs[0].To)
		assert.Equal(t, "immediate", msgs[0].Mode)
	})

	t.Run("Invalid Event Rejected Before Persisting", func(t *testing.T) {
		store := newMemStore(immediateSettings("admin@example.com"))
		sender := &captureSender{}
		eng := NewEngine(store, sender, nil, testEngineConfig())

		event := makeEvent(models.ActionCreate, models.ResourceMedia, "u1", "editor")
		event.ActionType = "BOGUS"

		err := eng.RecordAndNotify(ctx, event)
		require.Error(t, err)
		eng.Wait()

		count, _ := store.GetEventCount(ctx, models.EventFilter{})
		assert.Zero(t, count)
		assert.Empty(t, sender.messages())
	})

	t.Run("Missing ID And Timestamp Filled In", func(t *testing.T) {
		store := newMemStore(immediateSettings("admin@example.com"))
		eng := NewEngine(store, &captureSender{}, nil, testEngineConfig())

		event := makeEvent(models.ActionView, models.ResourceMedia, "u1", "viewer")
		event.ID = ""
		event.Timestamp = time.Time{}

		require.NoError(t, eng.RecordAndNotify(ctx, event))
		eng.Wait()

		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())
	})
}

func TestOnActivity(t *testing.T) {
	ctx := context.Background()
	event := makeEvent(models.ActionDelete, models.ResourceMedia, "u1", "editor")

	t.Run("Match Sends And Records History", func(t *testing.T) {
		store := newMemStore(immediateSettings("a@example.com", "b@example.com"))
		sender := &captureSender{}
		eng := NewEngine(store, sender, nil, testEngineConfig())

		require.NoError(t, eng.OnActivity(ctx, event))

		assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, sender.recipients())

		settings, _ := store.GetSettings(ctx)
		require.Len(t, settings.History, 1)
		entry := settings.History[0]
		assert.Equal(t, 2, entry.RecipientCount)
		assert.Equal(t, 1, entry.ActivityCount)
		assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, entry.RecipientIDs)
		require.NotNil(t, settings.LastSentAt)
	})

	t.Run("Settings Disabled", func(t *testing.T) {
		settings := immediateSettings("a@example.com")
		settings.Enabled = false
		store := newMemStore(settings)
		sender := &captureSender{}
		eng := NewEngine(store, sender, nil, testEngineConfig())

		require.NoError(t, eng.OnActivity(ctx, event))
		assert.Empty(t, sender.messages())

		fresh, _ := store.GetSettings(ctx)
		assert.Empty(t, fresh.History)
	})

	t.Run("Digest Frequency Skips Immediate Path", func(t *testing.T) {
		settings := immediateSettings("a@example.com")
		settings.Frequency = models.FrequencyDaily
		store := newMemStore(settings)
		sender := &captureSender{}
		eng := NewEngine(store, sender, nil, testEngineConfig())

		require.NoError(t, eng.OnActivity(ctx, event))
		assert.Empty(t, sender.messages())
	})

	t.Run("No Matching Rule", func(t *testing.T) {
		settings := immediateSettings("a@example.com")
		settings.Rules[0].ActionTypes = []string{"UPLOAD"}
		store := newMemStore(settings)
		sender := &captureSender{}
		eng := NewEngine(store, sender, nil, testEngineConfig())

		require.NoError(t, eng.OnActivity(ctx, event))
		assert.Empty(t, sender.messages())

		fresh, _ := store.GetSettings(ctx)
		assert.Empty(t, fresh.History)
	})

	t.Run("Duplicate Recipients Collapsed", func(t *testing.T) {
		store := newMemStore(immediateSettings("a@example.com", "A@Example.com", "b@example.com"))
		sender := &captureSender{}
		eng := NewEngine(store, sender, nil, testEngineConfig())

		require.NoError(t, eng.OnActivity(ctx, event))
		assert.Len(t, sender.messages(), 2)
	})

	t.Run("Delivery Failure Still Recorded As Attempted", func(t *testing.T) {
		store := newMemStore(immediateSettings("a@example.com", "b@example.com"))
		sender := &captureSender{fail: map[string]error{
			"a@example.com": assert.AnError,
		}}
		eng := NewEngine(store, sender, nil, testEngineConfig())

		require.NoError(t, eng.OnActivity(ctx, event))

		settings, _ := store.GetSettings(ctx)
		require.Len(t, settings.History, 1)
		assert.Equal(t, 2, settings.History[0].RecipientCount)
	})

	t.Run("Throttled Recipient Skipped", func(t *testing.T) {
		settings := immediateSettings("a@example.com", "b@example.com")
		settings.Throttling.MaxEmailsPerHour = 1
		settings.History = []models.HistoryEntry{
			{ID: "h1", SentAt: time.Now().UTC().Add(-5 * time.Minute), RecipientIDs: []string{"a@example.com"}},
		}
		store := newMemStore(settings)
		sender := &captureSender{}
		eng := NewEngine(store, sender, nil, testEngineConfig())

		require.NoError(t, eng.OnActivity(ctx, event))

		assert.Equal(t, []string{"b@example.com"}, sender.recipients())

		fresh, _ := store.GetSettings(ctx)
		require.Len(t, fresh.History, 2)
		latest := fresh.History[1]
		assert.Equal(t, []string{"b@example.com"}, latest.RecipientIDs)
	})

	t.Run("All Recipients Throttled Still Records Dispatch", func(t *testing.T) {
		settings := immediateSettings("a@example.com")
		settings.Throttling.MaxEmailsPerHour = 1
		settings.History = []models.HistoryEntry{
			{ID: "h1", SentAt: time.Now().UTC().Add(-5 * time.Minute), RecipientIDs: []string{"a@example.com"}},
		}
		store := newMemStore(settings)
		sender := &captureSender{}
		eng := NewEngine(store, sender, nil, testEngineConfig())

		require.NoError(t, eng.OnActivity(ctx, event))
		assert.Empty(t, sender.messages())

		fresh, _ := store.GetSettings(ctx)
		require.Len(t, fresh.History, 2)
		assert.Zero(t, fresh.History[1].RecipientCount)
	})

	t.Run("Engine Disabled By Config", func(t *testing.T) {
		store := newMemStore(immediateSettings("a@example.com"))
		sender := &captureSender{}
		cfg := testEngineConfig()
		cfg.Enabled = false
		eng := NewEngine(store, sender, nil, cfg)

		require.NoError(t, eng.OnActivity(ctx, event))
		assert.Empty(t, sender.messages())
	})
}

func TestSendTestNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("Sends Synthetic Notification", func(t *testing.T) {
		settings := immediateSettings("admin@example.com")
		settings.Frequency = models.FrequencyWeekly // frequency gating bypassed
		store := newMemStore(settings)
		sender := &captureSender{}
		eng := NewEngine(store, sender, nil, testEngineConfig())

		require.NoError(t, eng.SendTestNotification(ctx))

		msgs := sender.messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "[Media Library] Test notification", msgs[0].Subject)
		assert.Equal(t, "test", msgs[0].Mode)

		fresh, _ := store.GetSettings(ctx)
		assert.Len(t, fresh.History, 1)
	})

	t.Run("Disabled Settings Rejected", func(t *testing.T) {
		settings := immediateSettings("admin@example.com")
		settings.Enabled = false
		eng := NewEngine(newMemStore(settings), &captureSender{}, nil, testEngineConfig())

		assert.Error(t, eng.SendTestNotification(ctx))
	})

	t.Run("No Recipients Rejected", func(t *testing.T) {
		eng := NewEngine(newMemStore(immediateSettings()), &captureSender{}, nil, testEngineConfig())
		assert.Error(t, eng.SendTestNotification(ctx))
	})
}

func TestMutateSettingsRetriesOnConflict(t *testing.T) {
	ctx := context.Background()

	store := newMemStore(immediateSettings("a@example.com"))
	store.forceConflicts = 2
	eng := NewEngine(store, &captureSender{}, nil, testEngineConfig())

	settings, err := store.GetSettings(ctx)
	require.NoError(t, err)

	require.NoError(t, eng.recordHistory(ctx, settings, []string{"a@example.com"}, 1, time.Now().UTC()))

	fresh, _ := store.GetSettings(ctx)
	assert.Len(t, fresh.History, 1)
}

func TestRecordHistoryRetention(t *testing.T) {
	ctx := context.Background()

	settings := immediateSettings("a@example.com")
	store := newMemStore(settings)

	cfg := testEngineConfig()
	cfg.HistoryRetention = 3
	eng := NewEngine(store, &captureSender{}, nil, cfg)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		current, err := store.GetSettings(ctx)
		require.NoError(t, err)
		require.NoError(t, eng.recordHistory(ctx, current, []string{"a@example.com"}, 1, now.Add(time.Duration(i)*time.Minute)))
	}

	fresh, _ := store.GetSettings(ctx)
	require.Len(t, fresh.History, 3)
	// Newest entries survive
	assert.Equal(t, now.Add(4*time.Minute).Unix(), fresh.History[2].SentAt.Unix())
}
