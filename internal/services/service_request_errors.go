package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrServiceRequestInvalidInput indicates the command failed validation.
	ErrServiceRequestInvalidInput = errors.New("service request: invalid input")
	// ErrServiceRequestNotFound indicates the request or a referenced catalog item does not exist.
	ErrServiceRequestNotFound = errors.New("service request: not found")
	// ErrServiceRequestInsufficientStock indicates the material has fewer units than requested.
	ErrServiceRequestInsufficientStock = errors.New("service request: insufficient stock")
	// ErrServiceRequestUnavailable indicates the catalog item cannot currently be ordered.
	ErrServiceRequestUnavailable = errors.New("service request: item unavailable")
	// ErrServiceRequestForbidden indicates the actor may not perform the operation.
	ErrServiceRequestForbidden = errors.New("service request: forbidden")
	// ErrServiceRequestInvalidTransition indicates the status edge is not allowed.
	ErrServiceRequestInvalidTransition = errors.New("service request: invalid status transition")
	// ErrServiceRequestInvalidState indicates the request is not in a state that allows the operation.
	ErrServiceRequestInvalidState = errors.New("service request: invalid state")
	// ErrServiceRequestConflict indicates a concurrent or duplicate write.
	ErrServiceRequestConflict = errors.New("service request: conflict")
	// ErrServiceRequestRepositoryUnavailable indicates persistence is temporarily unreachable.
	ErrServiceRequestRepositoryUnavailable = errors.New("service request: repository unavailable")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every invalid field of a command.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrServiceRequestInvalidInput.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrServiceRequestInvalidInput, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrServiceRequestInvalidInput
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) errOrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// InsufficientStockError reports how many units remain when a material request exceeds stock.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: only %d available", ErrServiceRequestInsufficientStock, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrServiceRequestInsufficientStock
}

func invalidField(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}
