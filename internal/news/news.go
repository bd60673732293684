// Package news is the bundled example source type: news items that notify
// subscribers once they have stayed published for a while, and notify staff
// straight away so they can moderate.
package news

import (
	"errors"
	"time"
)

// Names under which the news source type and its methods are registered.
const (
	SourceType       = "news"
	RenderModerators = "moderators"
	RecipientsStaff  = "staff"
)

// PublishDelay is how long a published item waits before subscribers are
// mailed. Unpublishing within this window suppresses the mail.
const PublishDelay = 6 * time.Hour

var ErrEmptySubject = errors.New("news subject must not be empty")

// Item is a news article.
type Item struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveRequest creates an item, or updates it when ID is set.
type SaveRequest struct {
	ID        string `json:"id,omitempty"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Published bool   `json:"published"`
}

func (r *SaveRequest) Validate() error {
	if r.Subject == "" {
		return ErrEmptySubject
	}
	return nil
}
