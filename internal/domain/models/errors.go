package models

import (
	"errors"
	"fmt"
)

var (
	ErrConnectivity = errors.New("connectivity")
	ErrValidation   = errors.New("validation")
	ErrPersistence  = errors.New("persistence")
	ErrNoData       = errors.New("no data")
	ErrNotFound     = errors.New("not found")
)

// ConnectivityError marks broker or session failures. Callers retry these.
type ConnectivityError struct {
	Op  string
	Err error
}

func NewConnectivityError(op string, err error) *ConnectivityError {
	return &ConnectivityError{Op: op, Err: err}
}

func (e *ConnectivityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: connectivity: %v", e.Op, e.Err)
	}
	return e.Op + ": connectivity"
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

// ValidationError marks malformed input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// IsConnectivity reports whether err is a connectivity-class failure.
func IsConnectivity(err error) bool { return errors.Is(err, ErrConnectivity) }

// IsValidation reports whether err is a validation-class failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
