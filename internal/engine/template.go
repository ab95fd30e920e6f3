package engine

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/medialib/activity-notifier/internal/models"
)

// DefaultSubjectTemplate is used when a rule has no subject template
const DefaultSubjectTemplate = "[Media Library] {{action}} on {{resourceType}} by {{username}}"

// digestDetailLimit caps the number of detail lines shown per action type
// in a digest body; further events are elided with a "+N more" line
const digestDetailLimit = 10

// ComposeSubject renders the rule's subject template for an event,
// substituting the {{action}}, {{resourceType}} and {{username}}
// placeholders
func ComposeSubject(rule *models.NotificationRule, event *models.ActivityEvent) string {
	template := rule.SubjectTemplate
	if template == "" {
		template = DefaultSubjectTemplate
	}

	subject := template
	subject = strings.ReplaceAll(subject, "{{action}}", string(event.ActionType))
	subject = strings.ReplaceAll(subject, "{{resourceType}}", string(event.ResourceType))
	subject = strings.ReplaceAll(subject, "{{username}}", event.ActorUsername)

	return subject
}

// ComposeBody builds the plain-text and HTML bodies for a single-event
// notification
func ComposeBody(rule *models.NotificationRule, event *models.ActivityEvent, adminURL string) (string, string) {
	resource := describeResource(event)

	var text strings.Builder
	text.WriteString(fmt.Sprintf("Action:   %s\n", event.ActionType))
	text.WriteString(fmt.Sprintf("Resource: %s\n", resource))
	text.WriteString(fmt.Sprintf("Actor:    %s (%s)\n", event.ActorUsername, event.ActorRole))
	text.WriteString(fmt.Sprintf("Time:     %s\n", event.Timestamp.Format(time.RFC1123)))
	if rule.IncludeDetails && event.Details != "" {
		text.WriteString(fmt.Sprintf("Details:  %s\n", event.Details))
	}
	if adminURL != "" {
		text.WriteString(fmt.Sprintf("\nView activity: %s\n", adminURL))
	}

	var htmlBody strings.Builder
	htmlBody.WriteString("<html><body>")
	htmlBody.WriteString("<h2>Activity Notification</h2>")
	htmlBody.WriteString("<table border='1' cellpadding='5' cellspacing='0'>")
	htmlBody.WriteString(fmt.Sprintf("<tr><td><strong>Action</strong></td><td>%s</td></tr>", html.EscapeString(string(event.ActionType))))
	htmlBody.WriteString(fmt.Sprintf("<tr><td><strong>Resource</strong></td><td>%s</td></tr>", html.EscapeString(resource)))
	htmlBody.WriteString(fmt.Sprintf("<tr><td><strong>Actor</strong></td><td>%s (%s)</td></tr>",
		html.EscapeString(event.ActorUsername), html.EscapeString(event.ActorRole)))
	htmlBody.WriteString(fmt.Sprintf("<tr><td><strong>Time</strong></td><td>%s</td></tr>", event.Timestamp.Format(time.RFC1123)))
	if rule.IncludeDetails && event.Details != "" {
		htmlBody.WriteString(fmt.Sprintf("<tr><td><strong>Details</strong></td><td>%s</td></tr>", html.EscapeString(event.Details)))
	}
	htmlBody.WriteString("</table>")
	if adminURL != "" {
		htmlBody.WriteString(fmt.Sprintf("<p><a href=%q>View activity</a></p>", adminURL))
	}
	htmlBody.WriteString("</body></html>")

	return text.String(), htmlBody.String()
}

// ComposeDigestSubject builds the subject for a digest notification
func ComposeDigestSubject(rule *models.NotificationRule, frequency models.Frequency, eventCount int) string {
	return fmt.Sprintf("[Media Library] %s digest — %s: %d events", frequency, rule.Name, eventCount)
}

// ComposeDigestBody builds the plain-text and HTML bodies for a digest
// covering all matching events in a window. Events are summarized per
// action type with the first detail lines shown and the remainder elided.
func ComposeDigestBody(rule *models.NotificationRule, events []*models.ActivityEvent, window time.Duration, adminURL string) (string, string) {
	byAction := make(map[models.ActionType][]*models.ActivityEvent)
	for _, event := range events {
		byAction[event.ActionType] = append(byAction[event.ActionType], event)
	}

	actions := make([]string, 0, len(byAction))
	for action := range byAction {
		actions = append(actions, string(action))
	}
	sort.Strings(actions)

	var text strings.Builder
	var htmlBody strings.Builder

	text.WriteString(fmt.Sprintf("Activity summary for rule %q (last %s, %d events)\n\n",
		rule.Name, formatWindow(window), len(events)))

	htmlBody.WriteString("<html><body>")
	htmlBody.WriteString(fmt.Sprintf("<h2>Activity summary — %s</h2>", html.EscapeString(rule.Name)))
	htmlBody.WriteString(fmt.Sprintf("<p>%d events in the last %s</p>", len(events), formatWindow(window)))

	for _, action := range actions {
		group := byAction[models.ActionType(action)]

		text.WriteString(fmt.Sprintf("%s (%d)\n", action, len(group)))
		htmlBody.WriteString(fmt.Sprintf("<h3>%s (%d)</h3><ul>", html.EscapeString(action), len(group)))

		shown := group
		if len(shown) > digestDetailLimit {
			shown = shown[:digestDetailLimit]
		}

		for _, event := range shown {
			line := digestLine(rule, event)
			text.WriteString("  - " + line + "\n")
			htmlBody.WriteString("<li>" + html.EscapeString(line) + "</li>")
		}

		if remaining := len(group) - len(shown); remaining > 0 {
			text.WriteString(fmt.Sprintf("  ... +%d more\n", remaining))
			htmlBody.WriteString(fmt.Sprintf("<li>+%d more</li>", remaining))
		}

		text.WriteString("\n")
		htmlBody.WriteString("</ul>")
	}

	if adminURL != "" {
		text.WriteString(fmt.Sprintf("Full activity log: %s\n", adminURL))
		htmlBody.WriteString(fmt.Sprintf("<p><a href=%q>Full activity log</a></p>", adminURL))
	}
	htmlBody.WriteString("</body></html>")

	return text.String(), htmlBody.String()
}

func digestLine(rule *models.NotificationRule, event *models.ActivityEvent) string {
	line := fmt.Sprintf("[%s] %s on %s",
		event.Timestamp.Format("2006-01-02 15:04"),
		event.ActorUsername,
		describeResource(event))
	if rule.IncludeDetails && event.Details != "" {
		line += ": " + event.Details
	}
	return line
}

func describeResource(event *models.ActivityEvent) string {
	name := event.ResourceTitle
	if name == "" {
		name = event.ResourceSlug
	}
	if name == "" {
		name = event.ResourceID
	}
	if name == "" {
		return string(event.ResourceType)
	}
	return fmt.Sprintf("%s %q", event.ResourceType, name)
}

func formatWindow(window time.Duration) string {
	switch {
	case window >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(window.Hours()/24))
	case window >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(window.Hours()))
	default:
		return fmt.Sprintf("%d minutes", int(window.Minutes()))
	}
}
