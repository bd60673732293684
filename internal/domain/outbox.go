package domain

import "time"

// OutboxEntry is one rendered, staged message for one recipient.
// Payload is the serialized Message so retries never re-render.
type OutboxEntry struct {
	ID             string     `json:"id"`
	NotificationID *string    `json:"notification_id,omitempty"`
	RecipientID    string     `json:"recipient_id"`
	Payload        []byte     `json:"-"`
	Succeeded      bool       `json:"succeeded"`
	FailureCount   int        `json:"failure_count"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Retryable reports whether a dispatcher run with maxRetries would pick the entry.
func (e *OutboxEntry) Retryable(maxRetries int) bool {
	return !e.Succeeded && e.FailureCount < maxRetries
}

// OutboxFilter holds query parameters for outbox listing.
type OutboxFilter struct {
	NotificationID *string
	Succeeded      *bool
	Page           int
	Limit          int
}
