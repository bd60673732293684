package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound             = errors.New("not found")
	ErrMissingSource        = errors.New("notification source no longer exists")
	ErrRecipientNotFound    = errors.New("recipient not found")
	ErrRender               = errors.New("render failed")
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrConcurrentRun        = errors.New("another deploy run is in progress")

	ErrUnknownSourceType    = errors.New("unknown source type")
	ErrUnknownRenderMethod  = errors.New("unknown render method for source type")
	ErrUnknownRecipientFunc = errors.New("unknown recipient method for source type")
	ErrSourceIDRequired     = errors.New("source type needs an instance id")
	ErrBlankSourceID        = errors.New("source id must not be blank")
	ErrAmbiguousRecipient   = errors.New("recipient and recipient_method are mutually exclusive")
	ErrAmbiguousSchedule    = errors.New("scheduled_for and defer_for are mutually exclusive")
	ErrNegativeDefer        = errors.New("defer_for must not be negative")
	ErrInvalidRecipient     = errors.New("message must have at least one recipient address")
	ErrInvalidEmail         = errors.New("email must not be empty")
)
