package notify

import "context"

// Receipt is the provider acknowledgement for a delivered notification.
type Receipt struct {
	MessageID string
}

// Gateway sends a push notification to a single delivery address. Calling it
// with an empty address is a no-op, not an error. Transient provider failures
// come back as typed errors, never panics.
type Gateway interface {
	Send(ctx context.Context, address, title, body string, data map[string]string) (Receipt, error)
}

// Mailer dispatches an OTP challenge code to a contact address. Failures are
// surfaced to the caller but must not undo the persisted challenge.
type Mailer interface {
	SendChallengeCode(ctx context.Context, to, code, purposeLabel string) error
}
