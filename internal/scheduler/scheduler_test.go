package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medialib/activity-notifier/internal/config"
	"github.com/medialib/activity-notifier/internal/engine"
	"github.com/medialib/activity-notifier/internal/notification"
	"github.com/medialib/activity-notifier/internal/storage"
	"github.com/medialib/activity-notifier/pkg/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger("error", "text", "stdout", "")
	os.Exit(m.Run())
}

type nullSender struct{}

func (nullSender) Send(ctx context.Context, msg *notification.Message) error { return nil }
func (nullSender) Name() string                                              { return "null" }

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()

	store, err := storage.NewStorage(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "scheduler_test.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	return engine.NewEngine(store, nullSender{}, nil, nil)
}

func TestSchedulerLifecycle(t *testing.T) {
	t.Run("Disabled Scheduler Does Not Start", func(t *testing.T) {
		s := NewScheduler(&Config{Enabled: false}, testEngine(t))
		require.NoError(t, s.Start(context.Background()))
		s.Stop() // no-op when never started
	})

	t.Run("Start And Stop", func(t *testing.T) {
		s := NewScheduler(&Config{
			Enabled:       true,
			CheckInterval: 10 * time.Millisecond,
		}, testEngine(t))

		require.NoError(t, s.Start(context.Background()))

		// Let a few ticks fire; digest runs are no-ops for the default
		// immediate frequency
		time.Sleep(50 * time.Millisecond)
		s.Stop()
	})

	t.Run("Context Cancellation Stops Loop", func(t *testing.T) {
		s := NewScheduler(&Config{
			Enabled:       true,
			CheckInterval: 10 * time.Millisecond,
		}, testEngine(t))

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, s.Start(ctx))
		cancel()

		done := make(chan struct{})
		go func() {
			s.Stop()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("scheduler did not stop after context cancellation")
		}
	})
}
