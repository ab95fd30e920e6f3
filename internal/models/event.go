package models

import (
	"time"
)

// ActionType identifies the kind of action an activity event records
type ActionType string

const (
	ActionUpload               ActionType = "UPLOAD"
	ActionDelete               ActionType = "DELETE"
	ActionEdit                 ActionType = "EDIT"
	ActionCreate               ActionType = "CREATE"
	ActionView                 ActionType = "VIEW"
	ActionApprovalStatusChange ActionType = "APPROVAL_STATUS_CHANGE"
	ActionLogin                ActionType = "LOGIN"
	ActionLogout               ActionType = "LOGOUT"
	ActionPasswordChange       ActionType = "PASSWORD_CHANGE"
	ActionProfileUpdate        ActionType = "PROFILE_UPDATE"
	ActionFailedLogin          ActionType = "FAILED_LOGIN"
)

// ResourceType identifies the kind of resource an activity event touches
type ResourceType string

const (
	ResourceMedia       ResourceType = "media"
	ResourceMediaType   ResourceType = "mediaType"
	ResourceUser        ResourceType = "user"
	ResourceSystem      ResourceType = "system"
	ResourceTag         ResourceType = "tag"
	ResourceTagCategory ResourceType = "tagCategory"
)

// MatchAll is the wildcard sentinel accepted in rule constraint sets
const MatchAll = "ALL"

var validActionTypes = map[ActionType]struct{}{
	ActionUpload:               {},
	ActionDelete:               {},
	ActionEdit:                 {},
	ActionCreate:               {},
	ActionView:                 {},
	ActionApprovalStatusChange: {},
	ActionLogin:                {},
	ActionLogout:               {},
	ActionPasswordChange:       {},
	ActionProfileUpdate:        {},
	ActionFailedLogin:          {},
}

var validResourceTypes = map[ResourceType]struct{}{
	ResourceMedia:       {},
	ResourceMediaType:   {},
	ResourceUser:        {},
	ResourceSystem:      {},
	ResourceTag:         {},
	ResourceTagCategory: {},
}

// IsValidActionType reports whether s names a known action type
func IsValidActionType(s string) bool {
	_, ok := validActionTypes[ActionType(s)]
	return ok
}

// IsValidResourceType reports whether s names a known resource type
func IsValidResourceType(s string) bool {
	_, ok := validResourceTypes[ResourceType(s)]
	return ok
}

// ActivityEvent represents a discrete recorded action in the system
type ActivityEvent struct {
	ID            string       `json:"id" db:"id"`
	ActionType    ActionType   `json:"action_type" db:"action_type"`
	ResourceType  ResourceType `json:"resource_type" db:"resource_type"`
	ResourceID    string       `json:"resource_id" db:"resource_id"`
	ResourceSlug  string       `json:"resource_slug,omitempty" db:"resource_slug"`
	ResourceTitle string       `json:"resource_title,omitempty" db:"resource_title"`
	ActorID       string       `json:"actor_id" db:"actor_id"`
	ActorUsername string       `json:"actor_username" db:"actor_username"`
	ActorRole     string       `json:"actor_role" db:"actor_role"`
	Details       string       `json:"details,omitempty" db:"details"`
	Timestamp     time.Time    `json:"timestamp" db:"timestamp"`
}

// Validate checks the event for required fields and known enum values
func (e *ActivityEvent) Validate() error {
	if !IsValidActionType(string(e.ActionType)) {
		return &ValidationError{Field: "action_type", Value: string(e.ActionType)}
	}
	if !IsValidResourceType(string(e.ResourceType)) {
		return &ValidationError{Field: "resource_type", Value: string(e.ResourceType)}
	}
	if e.ActorID == "" {
		return &ValidationError{Field: "actor_id", Value: ""}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Value: "zero"}
	}
	return nil
}

// ValidationError reports a rejected field on a model write
type ValidationError struct {
	Field string
	Value string
}

func (v *ValidationError) Error() string {
	if v.Value == "" {
		return "invalid value for " + v.Field
	}
	return "invalid value for " + v.Field + ": " + v.Value
}

// EventFilter for querying activity events
type EventFilter struct {
	ActionType   *string    `json:"action_type,omitempty"`
	ResourceType *string    `json:"resource_type,omitempty"`
	ActorID      *string    `json:"actor_id,omitempty"`
	FromTime     *time.Time `json:"from_time,omitempty"`
	ToTime       *time.Time `json:"to_time,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	Offset       int        `json:"offset,omitempty"`
}
