package medrecord

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrRecordNotFound indicates the referenced record id does not exist
	ErrRecordNotFound = errors.New("record not found")

	// ErrVersionConflict indicates the optimistic concurrency check failed;
	// the caller must re-read and resubmit
	ErrVersionConflict = errors.New("version conflict")

	// ErrLockedState indicates the record is signed or archived and refuses
	// content mutation
	ErrLockedState = errors.New("record is locked")

	// ErrInvalidTransition indicates the requested status change is not
	// legal from the current status
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrForbidden indicates the caller lacks the capability required for a
	// privileged operation
	ErrForbidden = errors.New("operation forbidden")

	// ErrValidation is the sentinel wrapped by every ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrIntegrity is the sentinel wrapped by every IntegrityError
	ErrIntegrity = errors.New("package integrity violation")

	// ErrInvalidRecordStatus indicates a status value outside the known set
	ErrInvalidRecordStatus = errors.New("invalid record status")
)

// ValidationError carries a human-readable reason for a payload rule
// violation. Callers are expected to surface the message verbatim.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IntegrityError names the package file that failed manifest or hash
// verification, or an unsafe archive entry. Always fatal to the import.
type IntegrityError struct {
	File   string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("package integrity violation in %s: %s", e.File, e.Reason)
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}

// RecordError represents an error related to record operations
type RecordError struct {
	RecordID uuid.UUID
	Op       string
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record operation %s failed for record %s: %v", e.Op, e.RecordID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
