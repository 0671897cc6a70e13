package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// InsufficientCreditsMessage is shown alongside the paywall.
	InsufficientCreditsMessage = "insufficient credits"
	// StreamFailedMessage replaces a reply that failed mid-stream.
	StreamFailedMessage = "the assistant could not complete its reply"
)

// Domain sentinels. Every AppError produced by the helpers below wraps one
// of these so callers can branch with errors.Is.
var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrGenerationFailed    = errors.New("generation failed")
	ErrStreamFailed        = errors.New("stream failed")
	ErrMissingPayload      = errors.New("missing payload")
	ErrMissingCredential   = errors.New("missing credential")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrInFlight            = errors.New("operation already in flight")
	ErrUnknownTool         = errors.New("unknown tool")
	ErrUnknownBundle       = errors.New("unknown credit bundle")
	ErrNotEditable         = errors.New("result is not editable")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrUnknownExtra        = errors.New("unknown extra")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnknownMethod       = errors.New("unknown method")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// InsufficientCredits reports a gated call whose cost exceeds the balance.
func InsufficientCredits(cost, balance int) *AppError {
	return New(
		fmt.Errorf("%w: cost %d, balance %d", ErrInsufficientCredits, cost, balance),
		http.StatusPaymentRequired,
		InsufficientCreditsMessage,
	)
}

// Generation wraps a collaborator failure; message is what the user sees.
func Generation(err error, message string) *AppError {
	return New(fmt.Errorf("%w: %w", ErrGenerationFailed, err), http.StatusBadGateway, message)
}

// Stream wraps a failure while draining a streamed reply.
func Stream(err error) *AppError {
	return New(fmt.Errorf("%w: %w", ErrStreamFailed, err), http.StatusBadGateway, StreamFailedMessage)
}

// Conflict reports an operation rejected by the current view state.
func Conflict(sentinel error, message string) *AppError {
	return New(sentinel, http.StatusConflict, message)
}

// InvalidInput reports a request whose content the view cannot accept.
func InvalidInput(err error, message string) *AppError {
	return New(fmt.Errorf("%w: %w", ErrInvalidInput, err), http.StatusBadRequest, message)
}

// NotFound reports a lookup of something that is not registered.
func NotFound(sentinel error, message string) *AppError {
	return New(sentinel, http.StatusNotFound, message)
}

// StatusOf extracts the HTTP status from err, defaulting to 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the safe user-facing message for err.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return SystemErrorMessage
}
