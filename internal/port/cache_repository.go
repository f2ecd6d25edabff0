package port

import (
	"context"
	"time"
)

type OTPResult int

const (
	OTPMissing OTPResult = iota
	OTPMismatch
	OTPMatched
)

type OTPStore interface {
	// SaveOTP replaces any pending code for the email
	SaveOTP(ctx context.Context, email, code string, ttl time.Duration) error

	// ConsumeOTP compares and deletes the code atomically when it matches
	ConsumeOTP(ctx context.Context, email, code string) (OTPResult, error)

	// AcquireResendSlot returns false while a previous code is still cooling down
	AcquireResendSlot(ctx context.Context, email string, cooldown time.Duration) (bool, error)

	DeleteOTP(ctx context.Context, email string) error
}
