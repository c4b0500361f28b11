package medrecord

import "fmt"

// canUpdateRecord checks if a record accepts content edits in its current
// state. Returns nil if the update may proceed, a typed error otherwise.
func canUpdateRecord(r *Record) error {
	if r.IsArchived {
		return fmt.Errorf("%w: record is archived", ErrLockedState)
	}
	switch r.Status {
	case RecordStatusDraft:
		return nil
	case RecordStatusSigned:
		return fmt.Errorf("%w: record is signed", ErrLockedState)
	default:
		return fmt.Errorf("%w: unknown status %s", ErrInvalidRecordStatus, r.Status)
	}
}

// canSignRecord checks if a record can transition DRAFT -> SIGNED.
// Signing an already-signed record is a hard InvalidTransition, not a
// silent success.
func canSignRecord(r *Record) error {
	if r.IsArchived {
		return fmt.Errorf("%w: record is archived", ErrLockedState)
	}
	switch r.Status {
	case RecordStatusDraft:
		return nil
	case RecordStatusSigned:
		return fmt.Errorf("%w: record is already signed", ErrInvalidTransition)
	default:
		return fmt.Errorf("%w: unknown status %s", ErrInvalidRecordStatus, r.Status)
	}
}

// canArchiveRecord checks if a record can be archived. Archival is legal
// from either status but not twice.
func canArchiveRecord(r *Record) error {
	if r.IsArchived {
		return fmt.Errorf("%w: record is already archived", ErrLockedState)
	}
	switch r.Status {
	case RecordStatusDraft, RecordStatusSigned:
		return nil
	default:
		return fmt.Errorf("%w: unknown status %s", ErrInvalidRecordStatus, r.Status)
	}
}
