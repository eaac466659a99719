package repositories

import "fmt"

// ServiceRequestErrorCode enumerates business-rule failures detected inside a persistence transaction.
type ServiceRequestErrorCode string

const (
	// ServiceRequestErrorOrderNumberTaken indicates another request already holds the order number.
	ServiceRequestErrorOrderNumberTaken ServiceRequestErrorCode = "order_number_taken"
	// ServiceRequestErrorInsufficientStock indicates the material no longer has enough stock.
	ServiceRequestErrorInsufficientStock ServiceRequestErrorCode = "insufficient_stock"
	// ServiceRequestErrorItemUnavailable indicates the material was withdrawn or removed.
	ServiceRequestErrorItemUnavailable ServiceRequestErrorCode = "item_unavailable"
	// ServiceRequestErrorPreconditionFailed indicates the stored request changed since it was read.
	ServiceRequestErrorPreconditionFailed ServiceRequestErrorCode = "precondition_failed"
)

// ServiceRequestError wraps service request persistence failures with machine readable codes.
type ServiceRequestError struct {
	Op      string
	Code    ServiceRequestErrorCode
	Message string
	// Available carries the remaining stock for ServiceRequestErrorInsufficientStock.
	Available int
	Err       error
}

// Error implements the error interface.
func (e *ServiceRequestError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *ServiceRequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewServiceRequestError constructs a typed service request error.
func NewServiceRequestError(code ServiceRequestErrorCode, message string, err error) *ServiceRequestError {
	if message == "" {
		message = string(code)
	}
	return &ServiceRequestError{Code: code, Message: message, Err: err}
}
