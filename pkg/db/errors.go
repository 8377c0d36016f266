package db

import "fmt"

// StorageError marks a durable-write or read failure. It is fatal to the
// turn that triggered it: the orchestrator aborts instead of continuing
// with memory and history out of sync.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
