package engine

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/medialib/activity-notifier/internal/models"
)

func TestComposeSubject(t *testing.T) {
	event := &models.ActivityEvent{
		ActionType:    models.ActionUpload,
		ResourceType:  models.ResourceMedia,
		ActorUsername: "alice",
		Timestamp:     time.Now().UTC(),
	}

	t.Run("Default Template", func(t *testing.T) {
		rule := &models.NotificationRule{Name: "r"}
		subject := ComposeSubject(rule, event)
		assert.Equal(t, "[Media Library] UPLOAD on media by alice", subject)
	})

	t.Run("Custom Template", func(t *testing.T) {
		rule := &models.NotificationRule{
			Name:            "r",
			SubjectTemplate: "{{username}} did {{action}}",
		}
		assert.Equal(t, "alice did UPLOAD", ComposeSubject(rule, event))
	})

	t.Run("Unknown Placeholders Left Alone", func(t *testing.T) {
		rule := &models.NotificationRule{
			Name:            "r",
			SubjectTemplate: "{{action}} {{nope}}",
		}
		assert.Equal(t, "UPLOAD {{nope}}", ComposeSubject(rule, event))
	})
}

func TestComposeBody(t *testing.T) {
	event := &models.ActivityEvent{
		ActionType:    models.ActionDelete,
		ResourceType:  models.ResourceMedia,
		ResourceTitle: "Summer <Promo>",
		ActorUsername: "bob",
		ActorRole:     "editor",
		Details:       "removed from campaign",
		Timestamp:     time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	t.Run("With Details", func(t *testing.T) {
		rule := &models.NotificationRule{Name: "r", IncludeDetails: true}
		text, html := ComposeBody(rule, event, "https://lib.example.com/admin")

		assert.Contains(t, text, "DELETE")
		assert.Contains(t, text, `media "Summer <Promo>"`)
		assert.Contains(t, text, "bob (editor)")
		assert.Contains(t, text, "removed from campaign")
		assert.Contains(t, text, "https://lib.example.com/admin")

		// HTML body escapes user content
		assert.Contains(t, html, "Summer &lt;Promo&gt;")
		assert.NotContains(t, html, "Summer <Promo>")
	})

	t.Run("Details Omitted When Not Requested", func(t *testing.T) {
		rule := &models.NotificationRule{Name: "r", IncludeDetails: false}
		text, html := ComposeBody(rule, event, "")

		assert.NotContains(t, text, "removed from campaign")
		assert.NotContains(t, html, "removed from campaign")
		assert.NotContains(t, text, "View activity")
	})
}

func TestDescribeResource(t *testing.T) {
	base := models.ActivityEvent{ResourceType: models.ResourceMedia}

	t.Run("Title Preferred", func(t *testing.T) {
		e := base
		e.ResourceTitle = "Title"
		e.ResourceSlug = "slug"
		e.ResourceID = "7"
		assert.Equal(t, `media "Title"`, describeResource(&e))
	})

	t.Run("Slug Fallback", func(t *testing.T) {
		e := base
		e.ResourceSlug = "slug"
		e.ResourceID = "7"
		assert.Equal(t, `media "slug"`, describeResource(&e))
	})

	t.Run("Type Only", func(t *testing.T) {
		e := base
		assert.Equal(t, "media", describeResource(&e))
	})
}

func TestComposeDigestSubject(t *testing.T) {
	rule := &models.NotificationRule{Name: "Media deletions"}
	subject := ComposeDigestSubject(rule, models.FrequencyDaily, 12)
	assert.Equal(t, "[Media Library] daily digest — Media deletions: 12 events", subject)
}

func TestComposeDigestBody(t *testing.T) {
	rule := &models.NotificationRule{Name: "All activity", IncludeDetails: true}

	t.Run("Groups By Action Type", func(t *testing.T) {
		events := []*models.ActivityEvent{
			makeEvent(models.ActionDelete, models.ResourceMedia, "u1", "editor"),
			makeEvent(models.ActionCreate, models.ResourceMedia, "u2", "editor"),
			makeEvent(models.ActionDelete, models.ResourceMedia, "u3", "editor"),
		}

		text, html := ComposeDigestBody(rule, events, 24*time.Hour, "https://lib.example.com/admin")

		assert.Contains(t, text, "CREATE (1)")
		assert.Contains(t, text, "DELETE (2)")
		assert.Contains(t, text, "3 events")
		assert.Contains(t, text, "https://lib.example.com/admin")
		assert.Contains(t, html, "<h3>DELETE (2)</h3>")
	})

	t.Run("Detail Lines Capped", func(t *testing.T) {
		var events []*models.ActivityEvent
		for i := 0; i < digestDetailLimit+5; i++ {
			e := makeEvent(models.ActionView, models.ResourceMedia, fmt.Sprintf("u%d", i), "viewer")
			events = append(events, e)
		}

		text, _ := ComposeDigestBody(rule, events, time.Hour, "")
		assert.Contains(t, text, "... +5 more")
		assert.Equal(t, digestDetailLimit, strings.Count(text, "  - "))
	})
}

func TestFormatWindow(t *testing.T) {
	assert.Equal(t, "30 minutes", formatWindow(30*time.Minute))
	assert.Equal(t, "6 hours", formatWindow(6*time.Hour))
	assert.Equal(t, "7 days", formatWindow(7*24*time.Hour))
}
