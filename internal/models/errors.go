package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies relay failures into stable, client-facing reasons.
// The string values are part of the API contract and never change.
type ErrorKind string

const (
	ErrorKindValidation            ErrorKind = "VALIDATION_ERROR"
	ErrorKindRateLimited           ErrorKind = "RATE_LIMITED"
	ErrorKindInsufficientBalance   ErrorKind = "INSUFFICIENT_BALANCE"
	ErrorKindInsufficientAllowance ErrorKind = "INSUFFICIENT_ALLOWANCE"
	ErrorKindApprovalFunded        ErrorKind = "APPROVAL_FUNDED"
	ErrorKindRelayerGas            ErrorKind = "RELAYER_INSUFFICIENT_GAS"
	ErrorKindReverted              ErrorKind = "TRANSACTION_REVERTED"
	ErrorKindTimeout               ErrorKind = "CONFIRMATION_TIMEOUT"
	ErrorKindUnsupported           ErrorKind = "UNSUPPORTED_FEATURE"
	ErrorKindInternal              ErrorKind = "INTERNAL_ERROR"
)

// RelayError carries a classified failure reason across layer boundaries.
// Detail is safe to return to clients; the wrapped error is not and stays in
// logs only.
type RelayError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// NewRelayError creates a classified error without an underlying cause
func NewRelayError(kind ErrorKind, detail string) *RelayError {
	return &RelayError{Kind: kind, Detail: detail}
}

// WrapRelayError classifies an underlying error
func WrapRelayError(kind ErrorKind, detail string, err error) *RelayError {
	return &RelayError{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors map to ErrorKindInternal so raw provider errors never reach
// API responses.
func KindOf(err error) ErrorKind {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ErrorKindInternal
}

// DetailOf extracts the client-safe detail from an error chain
func DetailOf(err error) string {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Detail
	}
	return "unexpected internal error"
}
