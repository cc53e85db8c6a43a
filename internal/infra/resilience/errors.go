package resilience

// Stable error codes for guarded operations. Published once, never
// renumbered.
const (
	ErrCodeCircuitOpen        = "RES-001"
	ErrCodeBulkheadFull       = "RES-002"
	ErrCodeTimeoutExceeded    = "RES-003"
	ErrCodeMaxRetriesExceeded = "RES-004"
)

// ResilienceError is a guard failure with a stable code and an optional
// underlying cause.
type ResilienceError struct {
	Code    string
	Message string
	Err     error
}

func (e *ResilienceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *ResilienceError) Unwrap() error {
	return e.Err
}

// Is matches by code, so errors.Is(err, ErrCircuitOpen) works regardless
// of the wrapped cause.
func (e *ResilienceError) Is(target error) bool {
	t, ok := target.(*ResilienceError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is comparison.
var (
	ErrCircuitOpen = &ResilienceError{
		Code:    ErrCodeCircuitOpen,
		Message: "circuit breaker is open",
	}
	ErrBulkheadFull = &ResilienceError{
		Code:    ErrCodeBulkheadFull,
		Message: "bulkhead capacity exceeded",
	}
	ErrTimeoutExceeded = &ResilienceError{
		Code:    ErrCodeTimeoutExceeded,
		Message: "timeout exceeded",
	}
	ErrMaxRetriesExceeded = &ResilienceError{
		Code:    ErrCodeMaxRetriesExceeded,
		Message: "maximum retry attempts exceeded",
	}
)

// NewCircuitOpenError wraps err with the circuit-open code.
func NewCircuitOpenError(err error) error {
	return &ResilienceError{Code: ErrCodeCircuitOpen, Message: "circuit breaker is open", Err: err}
}

// NewBulkheadFullError wraps err with the bulkhead-full code.
func NewBulkheadFullError(err error) error {
	return &ResilienceError{Code: ErrCodeBulkheadFull, Message: "bulkhead capacity exceeded", Err: err}
}

// NewTimeoutExceededError wraps err with the timeout code.
func NewTimeoutExceededError(err error) error {
	return &ResilienceError{Code: ErrCodeTimeoutExceeded, Message: "timeout exceeded", Err: err}
}

// NewMaxRetriesExceededError wraps err with the retries-exhausted code.
func NewMaxRetriesExceededError(err error) error {
	return &ResilienceError{Code: ErrCodeMaxRetriesExceeded, Message: "maximum retry attempts exceeded", Err: err}
}
