// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for pollsync.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnsupportedStrategy = errors.New("unsupported strategy")
	ErrTickFailure         = errors.New("unhandled tick failure")
	ErrAlreadyStarted      = errors.New("already started")
	ErrExecutorClosed      = errors.New("executor is closed")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidConfig
	ErrCodeUnsupportedStrategy
	ErrCodeTickFailure
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap maps the code to its sentinel so errors.Is works on structured errors.
func (e *Error) Unwrap() error {
	switch e.Code {
	case ErrCodeInvalidConfig:
		return ErrInvalidArgument
	case ErrCodeUnsupportedStrategy:
		return ErrUnsupportedStrategy
	case ErrCodeTickFailure:
		return ErrTickFailure
	default:
		return nil
	}
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// TickFailure wraps a value recovered from a panicking tick.
func TickFailure(strategy PollStrategy, recovered any) *Error {
	return NewError(ErrCodeTickFailure, fmt.Sprintf("tick panicked: %v", recovered)).
		WithContext("strategy", strategy.String())
}
