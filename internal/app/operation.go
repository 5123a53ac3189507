package app

import (
	"errors"

	"chunkvault/internal/cv"
)

// Operation statuses recorded in the operations table.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	// StatusSkipped marks a backup that did not run because the backend forbade it.
	StatusSkipped = "skipped"
)

// Operation tracks a CLI operation that may mutate the database.
// Operations are created in memory with ID=0. Only mutating commands
// persist them (giving them an auto-increment ID from the database).
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation.
func NewOperation(operation, parameters string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Record updates the status from the outcome of the operation and returns err unchanged.
// The first failure wins.
func (op *Operation) Record(err error) error {
	if err == nil || op.Status != StatusSuccess {
		return err
	}
	if errors.Is(err, cv.ErrCannotBackupNow) {
		op.Status = StatusSkipped
	} else {
		op.Status = StatusError
	}
	return err
}
