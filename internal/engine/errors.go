package engine

import (
	"fmt"
	"strings"
)

// Code classifies a scheduler error.
type Code string

const (
	CodeNotRegistered       Code = "not_registered"
	CodeAlreadyRegistered   Code = "already_registered"
	CodeAlreadyActive       Code = "already_active"
	CodeProducerUnavailable Code = "producer_unavailable"
	CodeIntegrationFailure  Code = "integration_failure"
	CodeInvalidAction       Code = "invalid_action"
	CodePersistenceFailure  Code = "persistence_failure"
	CodeShutdown            Code = "shutdown"
)

// Error is the scheduler's error type. Two Errors match under errors.Is when
// their codes are equal, so the sentinels below work against wrapped values.
type Error struct {
	Code       Code
	CampaignID string
	Tick       uint64 // zero for lifecycle errors
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.CampaignID != "" {
		fmt.Fprintf(&b, ": campaign %s", e.CampaignID)
	}
	if e.Tick > 0 {
		fmt.Fprintf(&b, " tick %d", e.Tick)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrNotRegistered       = &Error{Code: CodeNotRegistered}
	ErrAlreadyRegistered   = &Error{Code: CodeAlreadyRegistered}
	ErrAlreadyActive       = &Error{Code: CodeAlreadyActive}
	ErrProducerUnavailable = &Error{Code: CodeProducerUnavailable}
	ErrIntegrationFailure  = &Error{Code: CodeIntegrationFailure}
	ErrInvalidAction       = &Error{Code: CodeInvalidAction}
	ErrPersistenceFailure  = &Error{Code: CodePersistenceFailure}
	ErrShutdown            = &Error{Code: CodeShutdown}
)

func newError(code Code, campaignID string, cause error) *Error {
	return &Error{Code: code, CampaignID: campaignID, Cause: cause}
}

func tickError(code Code, campaignID string, tick uint64, cause error) *Error {
	return &Error{Code: code, CampaignID: campaignID, Tick: tick, Cause: cause}
}
