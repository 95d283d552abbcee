package models

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrWalletUnavailable  = errors.New("no wallet provider available")
	ErrUserRejected       = errors.New("request rejected by user")
	ErrConfiguration      = errors.New("configuration error")
	ErrContractCallFailed = errors.New("contract call failed")

	ErrNotConnected       = errors.New("wallet not connected")
	ErrNoElectionSelected = errors.New("no election selected")
	ErrOperationInFlight  = errors.New("operation already in flight")
	ErrStale              = errors.New("result discarded: session or selection changed")
)

// ValidationError is raised for user input before anything reaches the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ContractCallError covers reverts, failed confirmations and failed reads.
// The cause is kept as-is.
type ContractCallError struct {
	Method string
	Cause  error
}

func (e *ContractCallError) Error() string {
	return fmt.Sprintf("contract call %s failed: %v", e.Method, e.Cause)
}

func (e *ContractCallError) Unwrap() error { return e.Cause }

func (e *ContractCallError) Is(target error) bool {
	return target == ErrContractCallFailed
}

func NewContractCallError(method string, cause error) error {
	return &ContractCallError{Method: method, Cause: cause}
}

// ConfigError wraps ErrConfiguration with the offending key.
func ConfigError(key string) error {
	return errors.Wrapf(ErrConfiguration, "missing or invalid %s", key)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
