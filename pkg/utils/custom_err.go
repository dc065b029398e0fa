package utils

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountExists         = errors.New("account already exists")
	ErrAnalysisNotFound      = errors.New("analysis not found")
	ErrInsufficientCredits   = errors.New("insufficient credits")
	ErrQuotaExhausted        = errors.New("monthly quota exhausted")
	ErrAIProvider            = errors.New("ai provider failure")
	ErrDatabaseError         = errors.New("database error")
	ErrIdempotencyInProgress = errors.New("request with this idempotency key is still in progress")
	ErrQueueUnavailable      = errors.New("analysis queue unavailable")
)

// ValidationError is returned before anything is charged.
type ValidationError struct {
	Field    string
	Reason   string
	MaxChars int
}

func (e *ValidationError) Error() string {
	if e.MaxChars > 0 {
		return fmt.Sprintf("%s: %s (max %d chars)", e.Field, e.Reason, e.MaxChars)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

type InsufficientCreditsError struct {
	Balance  int64
	Required int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: balance %d, required %d", e.Balance, e.Required)
}

func (e *InsufficientCreditsError) Is(target error) bool { return target == ErrInsufficientCredits }

type QuotaExhaustedError struct {
	Limit int
	Used  int
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("monthly quota exhausted: used %d of %d", e.Used, e.Limit)
}

func (e *QuotaExhaustedError) Is(target error) bool { return target == ErrQuotaExhausted }

// DBError wraps a store failure so callers can match ErrDatabaseError while
// logs keep the cause.
func DBError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrDatabaseError, err)
}
