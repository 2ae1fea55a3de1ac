// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
//
// Every error surfaced by the gamification and collaboration core matches
// exactly one of the five taxonomy kinds: ErrNotFound, ErrInvalidState,
// ErrUnauthorized, ErrServiceUnavailable (transient storage failure) and
// ErrInvalidInput (malformed input).
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidID       = errors.New("invalid ID")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Infrastructure errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "ledger", "quest", "collab"
	Op      string // Operation that failed, e.g., "Award", "Claim"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Ledger and account errors
var (
	ErrUserNotFound      = NewDomainError("ledger", "Find", ErrNotFound, "user not found")
	ErrZeroAmount        = NewDomainError("ledger", "Award", ErrInvalidInput, "amount must be non-zero")
	ErrInvalidSourceKind = NewDomainError("ledger", "Award", ErrInvalidInput, "unknown xp source kind")
	ErrInsufficientXP    = NewDomainError("ledger", "Spend", ErrInvalidState, "insufficient XP")
	ErrXPLimitExceeded   = NewDomainError("ledger", "Award", ErrInvalidInput, "amount exceeds the XP limit")
)

// Streak errors
var (
	ErrInvalidFreezeDays = NewDomainError("streak", "Freeze", ErrInvalidInput, "freeze days out of range")
	ErrStreakNotStarted  = NewDomainError("streak", "Freeze", ErrInvalidState, "no active streak to freeze")
	ErrStreakLapsed      = NewDomainError("streak", "Freeze", ErrInvalidState, "streak has already lapsed")
)

// Badge errors
var (
	ErrBadgeNotFound      = NewDomainError("badge", "Find", ErrNotFound, "badge not found")
	ErrInvalidEventKind   = NewDomainError("badge", "RecordEvent", ErrInvalidInput, "event kind cannot be empty")
	ErrEventNotReportable = NewDomainError("badge", "RecordEvent", ErrInvalidInput, "event kind cannot be reported")
	ErrInvalidEventCount  = NewDomainError("badge", "RecordEvent", ErrInvalidInput, "event count out of range")
	ErrBadgeAlreadyEarned = NewDomainError("badge", "Unlock", ErrAlreadyProcessed, "badge already unlocked")
)

// Quest errors
var (
	ErrQuestNotFound       = NewDomainError("quest", "Find", ErrNotFound, "quest not found")
	ErrQuestNotStarted     = NewDomainError("quest", "Claim", ErrNotFound, "quest progress not found")
	ErrQuestNotCompleted   = NewDomainError("quest", "Claim", ErrInvalidState, "quest not completed")
	ErrQuestAlreadyClaimed = NewDomainError("quest", "Claim", ErrInvalidState, "quest reward already claimed")
)

// Reward errors
var (
	ErrRewardNotFound       = NewDomainError("reward", "Find", ErrNotFound, "reward not found")
	ErrRewardAlreadyClaimed = NewDomainError("reward", "Redeem", ErrInvalidState, "reward already claimed")
)

// Collaboration errors
var (
	ErrSessionNotFound  = NewDomainError("collab", "FindSession", ErrNotFound, "session not found")
	ErrNotParticipant   = NewDomainError("collab", "Join", ErrUnauthorized, "user is not a participant of this session")
	ErrInvalidToken     = NewDomainError("collab", "Authenticate", ErrUnauthorized, "invalid or expired token")
	ErrMalformedMessage = NewDomainError("collab", "Decode", ErrInvalidInput, "malformed message")
	ErrNotMentor        = NewDomainError("collab", "SetClassroomLink", ErrForbidden, "only the mentor may set the classroom link")
)

// Infrastructure errors
var (
	ErrStorageUnavailable = NewDomainError("storage", "Execute", ErrServiceUnavailable, "storage temporarily unavailable")
	ErrCacheUnavailable   = NewDomainError("cache", "Execute", ErrServiceUnavailable, "cache temporarily unavailable")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidState checks if the error is a state precondition failure.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrAlreadyProcessed)
}

// IsUnauthorized checks if the caller lacks identity or permission.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsTransient checks if the error is a temporary infrastructure failure.
// Callers may retry; the core itself never does.
func IsTransient(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
