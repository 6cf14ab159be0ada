package errors

var (
	// Credential domain
	ErrIdentityConflict   = AlreadyExists("email already registered")
	ErrIdentityNotFound   = NotFound("email not registered")
	ErrInvalidCredentials = Unauthorized("invalid credentials")

	// OTP domain
	ErrNoChallenge      = NotFound("no challenge found")
	ErrChallengeExpired = FailedPrecondition("challenge expired")
	ErrInvalidCode      = Unauthorized("invalid code")

	// Task domain
	ErrTaskNotFound      = NotFound("task not found")
	ErrTaskLimitExceeded = FailedPrecondition("task limit reached")
	ErrInvalidDueDate    = InvalidArg("invalid due date")
)

// External-collaborator failures: logged and absorbed by the core, never
// corrupt ledger/store state.

func ErrDispatchFailed(cause error) error {
	return Wrap(CodeUnavailable, "challenge message dispatch failed", cause)
}

func ErrDeliveryFailed(cause error) error {
	return Wrap(CodeUnavailable, "notification delivery failed", cause)
}

// IsDispatchError reports whether err is a dispatch/delivery failure from an
// external collaborator rather than a domain outcome.
func IsDispatchError(err error) bool {
	var appErr *AppError
	if !As(err, &appErr) {
		return false
	}
	return appErr.Code == CodeUnavailable
}
