package httpx

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/autox/api/internal/platform/requestctx"
)

// Error codes returned in the "error" field of the envelope.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeUnauthenticated    = "unauthenticated"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeMethodNotAllowed   = "method_not_allowed"
	CodeConflict           = "conflict"
	CodePayloadTooLarge    = "payload_too_large"
	CodeRateLimited        = "rate_limited"
	CodeInsufficientStock  = "insufficient_stock"
	CodeItemUnavailable    = "item_unavailable"
	CodeInvalidTransition  = "invalid_transition"
	CodeInvalidState       = "invalid_state"
	CodeInternal           = "internal_error"
	CodeNotImplemented     = "not_implemented"
	CodeServiceUnavailable = "service_unavailable"
)

const (
	codeLimit      = 80
	messageLimit   = 512
	requestIDLimit = 80
	traceIDLimit   = 64
)

// Error is the JSON error envelope: {"error", "message", "request_id", "trace_id", "details"}.
type Error struct {
	Code       string
	Message    string
	Status     int
	RequestID  string
	TraceID    string
	Details    map[string]any
	RetryAfter time.Duration
}

// NewError builds an envelope. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    truncate(code, codeLimit),
		Message: truncate(message, messageLimit),
		Status:  status,
	}
}

// Error implements error so envelopes can travel through error returns.
func (e Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// WithRequestID overrides the request id taken from the chi request id middleware.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = truncate(id, requestIDLimit)
	return e
}

// WithTraceID overrides the trace id taken from the request context.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = truncate(id, traceIDLimit)
	return e
}

// WithDetails attaches a copy of details.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	copied := make(map[string]any, len(details)+len(e.Details))
	for k, v := range e.Details {
		copied[k] = v
	}
	for k, v := range details {
		copied[k] = v
	}
	e.Details = copied
	return e
}

// WithRetryAfter makes WriteError emit a Retry-After header, rounded up to whole seconds.
func (e Error) WithRetryAfter(wait time.Duration) Error {
	e.RetryAfter = wait
	return e
}

// WriteError writes err as JSON, filling request and trace ids from ctx when unset.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	requestID := err.RequestID
	if requestID == "" {
		requestID = truncate(middleware.GetReqID(ctx), requestIDLimit)
	}
	traceID := err.TraceID
	if traceID == "" {
		traceID = truncate(requestctx.TraceID(ctx), traceIDLimit)
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
	}
	if requestID != "" {
		payload["request_id"] = requestID
	}
	if traceID != "" {
		payload["trace_id"] = traceID
	}
	if len(err.Details) > 0 {
		payload["details"] = err.Details
	}

	if err.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(err.RetryAfter)))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func retryAfterSeconds(wait time.Duration) int {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// truncate flattens line breaks and cuts value to at most limit bytes on a rune boundary.
func truncate(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
