package models

import "errors"

// Error taxonomy shared by every core package. Services wrap these with
// fmt.Errorf("context: %w", Err...) so callers can errors.Is against the
// category while logs keep the detail. The API layer maps each category to
// one HTTP status in a single place.
var (
	// ErrValidation: the caller sent something malformed — empty body,
	// unknown audience type, bad recipient list. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrAuthorization: the caller is authenticated but not allowed —
	// recipient outside the resolved audience, cross-tenant access,
	// sender not a participant. Never retried.
	ErrAuthorization = errors.New("not authorized")

	// ErrNotFound: conversation, message, or profile absent (or invisible
	// to this tenant, which must look identical to absent).
	ErrNotFound = errors.New("not found")

	// ErrNoRecipients: a broadcast resolved to zero recipients. No
	// conversation, message, or receipts are created.
	ErrNoRecipients = errors.New("no recipients resolved")

	// ErrTransientTransport: the realtime bus (or another network hop) is
	// temporarily unavailable. Retryable with backoff at the transport
	// boundary; surfaced to callers once retries exhaust.
	ErrTransientTransport = errors.New("transport temporarily unavailable")

	// ErrDuplicateSubscription: a second subscription was opened on a
	// (topic, session) pair without disposing the first.
	ErrDuplicateSubscription = errors.New("duplicate subscription")
)
