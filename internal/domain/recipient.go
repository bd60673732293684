package domain

import "time"

// Recipient is a user that can be targeted by notifications.
type Recipient struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Active    bool      `json:"active"`
	Staff     bool      `json:"staff"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateRecipientRequest is the inbound payload for a new recipient.
type CreateRecipientRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Staff     bool   `json:"staff"`
}

func (r *CreateRecipientRequest) Validate() error {
	if r.Email == "" {
		return ErrInvalidEmail
	}
	return nil
}
