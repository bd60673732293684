package domain

import (
	"strings"
	"time"
)

// DefaultRenderMethod is used when a producer does not name a render method.
const DefaultRenderMethod = "default"

// RecipientSpecKind tells the resolver how to pick recipients for a notification.
type RecipientSpecKind string

const (
	RecipientExplicit RecipientSpecKind = "explicit"
	RecipientMethod   RecipientSpecKind = "method"
	RecipientAll      RecipientSpecKind = "all_active"
)

// SourceRef is a tagged reference to the entity a notification is about.
// An empty ID means the notification is tied to the type, not an instance.
type SourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// Notification is one logical "send this to some recipients" request.
// At most one pending Notification exists per identity (see Key).
type Notification struct {
	ID              string     `json:"id"`
	Source          SourceRef  `json:"source"`
	RenderMethod    string     `json:"render_method"`
	RecipientID     *string    `json:"recipient_id,omitempty"`
	RecipientMethod *string    `json:"recipient_method,omitempty"`
	ScheduledFor    time.Time  `json:"scheduled_for"`
	Pending         bool       `json:"pending"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
	SuccessCount    int        `json:"success_count"`
	FailureCount    int        `json:"failure_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RecipientSpec reports which of the mutually exclusive recipient selectors is set.
func (n *Notification) RecipientSpec() RecipientSpecKind {
	switch {
	case n.RecipientID != nil:
		return RecipientExplicit
	case n.RecipientMethod != nil:
		return RecipientMethod
	default:
		return RecipientAll
	}
}

// Key is the dedup identity: source, render method and recipient selector.
func (n *Notification) Key() string {
	return n.Source.Type + "\x00" + n.Source.ID + "\x00" + n.RenderMethod + "\x00" +
		deref(n.RecipientID) + "\x00" + deref(n.RecipientMethod)
}

// IsDue reports whether the notification is eligible at now.
func (n *Notification) IsDue(now time.Time) bool {
	return !n.ScheduledFor.After(now)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// EnqueueRequest is the producer-facing trigger payload.
type EnqueueRequest struct {
	Source          SourceRef      `json:"source"`
	RenderMethod    string         `json:"render_method,omitempty"`
	RecipientID     *string        `json:"recipient_id,omitempty"`
	RecipientMethod *string        `json:"recipient_method,omitempty"`
	ScheduledFor    *time.Time     `json:"scheduled_for,omitempty"`
	DeferFor        *time.Duration `json:"defer_for,omitempty"`
}

// Validate checks the shape of the request. Whether the source type and
// methods exist is checked by the service against the source registry.
func (r *EnqueueRequest) Validate() error {
	if r.Source.Type == "" {
		return ErrUnknownSourceType
	}
	if r.Source.ID != "" && strings.TrimSpace(r.Source.ID) == "" {
		return ErrBlankSourceID
	}
	if r.RecipientID != nil && r.RecipientMethod != nil {
		return ErrAmbiguousRecipient
	}
	if r.ScheduledFor != nil && r.DeferFor != nil {
		return ErrAmbiguousSchedule
	}
	if r.DeferFor != nil && *r.DeferFor < 0 {
		return ErrNegativeDefer
	}
	return nil
}

// ScheduleAt resolves the effective scheduled time relative to now.
func (r *EnqueueRequest) ScheduleAt(now time.Time) time.Time {
	switch {
	case r.ScheduledFor != nil:
		return r.ScheduledFor.UTC()
	case r.DeferFor != nil:
		return now.Add(*r.DeferFor)
	default:
		return now
	}
}

// Method returns the requested render method or the default.
func (r *EnqueueRequest) Method() string {
	if r.RenderMethod == "" {
		return DefaultRenderMethod
	}
	return r.RenderMethod
}

// NotificationFilter holds query parameters for paginated notification listing.
type NotificationFilter struct {
	Pending    *bool
	SourceType *string
	Page       int
	Limit      int
}
