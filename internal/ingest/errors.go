package ingest

import "fmt"

// ValidationError rejects a submission before any external process runs.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

var _ error = (*ValidationError)(nil)

// StorageError is a relational or filesystem failure during ingestion.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

var _ error = (*StorageError)(nil)
