package wallet

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the wallet service.
var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrDuplicatePendingRequest = errors.New("duplicate pending request")
	ErrRequestProcessed        = errors.New("request already processed")
	ErrUnknownRequest          = errors.New("unknown request")
	ErrUnknownUser             = errors.New("unknown user")
	ErrUnknownRestaurant       = errors.New("unknown restaurant")
	ErrUnknownWallet           = errors.New("unknown wallet")
	ErrInvalidUserID           = errors.New("invalid user id")
	ErrInvalidRequestID        = errors.New("invalid request id")
	ErrInvalidRequestAction    = errors.New("invalid request action")
	ErrInvalidRequestStatus    = errors.New("invalid request status")
	ErrInvalidTransactionType  = errors.New("invalid transaction type")
	ErrInvalidPlanTier         = errors.New("invalid plan tier")
	ErrInvalidPlanStatus       = errors.New("invalid plan status")
	ErrInvalidMetadataJSON     = errors.New("invalid metadata json")
	ErrInvalidPlanConfig       = errors.New("invalid plan config")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// IsBusinessError reports whether err is an expected rule violation rather than a store failure.
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrInsufficientBalance,
		ErrDuplicatePendingRequest,
		ErrRequestProcessed,
		ErrUnknownRequest,
		ErrUnknownUser,
		ErrInvalidRequestAction,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var businessErrorReasons = []struct {
	target error
	reason string
}{
	{target: ErrInsufficientBalance, reason: "Insufficient wallet balance"},
	{target: ErrUnknownUser, reason: "Unknown user"},
	{target: ErrInvalidAmount, reason: "Invalid amount"},
	{target: ErrRequestProcessed, reason: "Request already processed"},
}

// BusinessErrorReason returns a user-facing reason for err without store operation codes.
func BusinessErrorReason(err error) string {
	for _, candidate := range businessErrorReasons {
		if errors.Is(err, candidate.target) {
			return candidate.reason
		}
	}
	return defaultFailureReason
}
