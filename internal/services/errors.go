package services

import "fmt"

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

// CompletionError reports a failed call to the completion provider.
// RateLimited is set when the provider asked us to back off.
type CompletionError struct {
	Message     string
	RateLimited bool
	Err         error
}

func (e *CompletionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CompletionError) Unwrap() error { return e.Err }

// StorageError reports a transcript store failure. Op is one of load, append
// or clear.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("transcript %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
