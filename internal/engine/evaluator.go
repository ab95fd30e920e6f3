package engine

import (
	"github.com/medialib/activity-notifier/internal/models"
)

// RuleGroup pairs a rule with the events that matched it in a digest window
type RuleGroup struct {
	Rule   *models.NotificationRule
	Events []*models.ActivityEvent
}

// Evaluate returns the first enabled rule matching the event in stored
// order, or nil when notifications are disabled or no rule matches.
// It has no side effects and is safe for concurrent use.
func Evaluate(event *models.ActivityEvent, settings *models.NotificationSettings) *models.NotificationRule {
	if settings == nil || !settings.Enabled {
		return nil
	}

	for i := range settings.Rules {
		rule := &settings.Rules[i]
		if !rule.Enabled {
			continue
		}
		if RuleMatches(rule, event) {
			return rule
		}
	}

	return nil
}

// GroupByRule computes, for every enabled rule, the events from the batch
// that independently satisfy it. An event may appear under several rules;
// this differs deliberately from the first-match semantics of Evaluate so
// that digests get per-rule groupings.
func GroupByRule(events []*models.ActivityEvent, settings *models.NotificationSettings) []RuleGroup {
	if settings == nil || !settings.Enabled {
		return nil
	}

	var groups []RuleGroup
	for i := range settings.Rules {
		rule := &settings.Rules[i]
		if !rule.Enabled {
			continue
		}

		var matched []*models.ActivityEvent
		for _, event := range events {
			if RuleMatches(rule, event) {
				matched = append(matched, event)
			}
		}

		if len(matched) > 0 {
			groups = append(groups, RuleGroup{Rule: rule, Events: matched})
		}
	}

	return groups
}

// RuleMatches reports whether the event satisfies all of the rule's
// constraints: action type, resource type, actor role, and the optional
// explicit actor allow-list. Unrecognized values fail closed.
func RuleMatches(rule *models.NotificationRule, event *models.ActivityEvent) bool {
	if !matchesSet(rule.ActionTypes, string(event.ActionType)) {
		return false
	}
	if !matchesSet(rule.ResourceTypes, string(event.ResourceType)) {
		return false
	}
	if !matchesSet(rule.TriggerRoles, event.ActorRole) {
		return false
	}

	if len(rule.TriggerUserIDs) > 0 {
		found := false
		for _, id := range rule.TriggerUserIDs {
			if id == event.ActorID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// matchesSet reports whether value is in the set or the set contains the
// ALL sentinel. An empty set matches nothing.
func matchesSet(set []string, value string) bool {
	for _, member := range set {
		if member == models.MatchAll || member == value {
			return true
		}
	}
	return false
}
