package utils

import "errors"

// Domain error kinds. Service functions wrap these with %w to add detail;
// the HTTP layer maps them onto response statuses with errors.Is. None of
// them are retried — test records feed audit reporting, so the services
// reject explicitly instead of best-effort correcting.
var (
	ErrorRecordNotFound = errors.New("record not found")

	// Scheduling guard: another non-cancelled test overlaps the window.
	ErrorSchedulingConflict = errors.New("equipment already booked for this slot")

	// Integrity lock: the record is locked (validated report) or completed.
	ErrorRecordLocked = errors.New("record is locked")

	// An operation was attempted from a state that forbids it.
	ErrorInvalidState = errors.New("operation not allowed in current state")

	// Temporal safety lock: starting more than one minute before schedule.
	ErrorTooEarlyStart = errors.New("too early to start")

	// Referential guard: the record is still referenced by other records.
	ErrorRecordReferenced = errors.New("record is referenced by other records")
)
