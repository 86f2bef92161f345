package outcome

import "fmt"

// PersistenceError wraps store failures. Callers retry at the next natural
// opportunity (the capturer's caller at intake, the scorer on its next sweep).
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// LookupError wraps price or snapshot data source failures. The scorer
// retries these every sweep until the checkpoint succeeds.
type LookupError struct {
	Symbol string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup: %s: %v", e.Symbol, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// SyncError wraps external memory push/search failures after bounded retry.
// It never blocks scoring correctness.
type SyncError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("memory sync: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// ContractViolation marks malformed input to an operation. It is reported
// immediately and never retried.
type ContractViolation struct {
	Reason string
}

func (e *ContractViolation) Error() string {
	return "contract violation: " + e.Reason
}

// Violationf builds a ContractViolation from a format string.
func Violationf(format string, v ...any) error {
	return &ContractViolation{Reason: fmt.Sprintf(format, v...)}
}
