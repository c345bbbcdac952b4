package challenge

import "errors"

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates the caller supplied an unusable field value.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates a document already exists for the same key.
	ErrConflict = errors.New("already exists")
	// ErrActiveChallengeExists indicates the parent/child pair already has an active challenge.
	ErrActiveChallengeExists = errors.New("active challenge already exists for this child")
	// ErrGoalNotConfigured indicates a zero screen-time goal; earnings are undefined.
	ErrGoalNotConfigured = errors.New("screen time goal is not configured")
	// ErrAlreadyDecided indicates the upload has already been approved or rejected.
	ErrAlreadyDecided = errors.New("upload already approved or rejected")
	// ErrNotRedemptionDay indicates redemption was attempted before the final day.
	ErrNotRedemptionDay = errors.New("challenge week is not complete yet")
	// ErrChallengeInactive indicates the challenge was already redeemed or deactivated.
	ErrChallengeInactive = errors.New("challenge is not active")
)
