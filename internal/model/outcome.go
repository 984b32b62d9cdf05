package model

import "errors"

// Ingestion error classes. Wrap them with fmt.Errorf("...: %w", Err...).
var (
	// ErrExtraction means the inference call failed or its text held no usable object.
	ErrExtraction = errors.New("extraction failed")
	// ErrValidation means the extracted listing is missing required fields.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate means a record already exists for the idempotency key.
	ErrDuplicate = errors.New("duplicate listing")
	// ErrLookup means the player directory could not resolve a seller.
	ErrLookup = errors.New("seller lookup failed")
)

// Status is the terminal state of one submission.
type Status string

const (
	StatusPersisted Status = "persisted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// SkipReason explains why a submission produced no record without failing.
type SkipReason string

const (
	ReasonDuplicate SkipReason = "duplicate"
	ReasonInvalid   SkipReason = "invalid"
)

// Outcome is the result of processing one submission.
type Outcome struct {
	Submission Submission
	Status     Status
	Reason     SkipReason
	Err        error
	Record     *Record
}

// Persisted reports a stored record.
func Persisted(sub Submission, rec *Record) Outcome {
	return Outcome{Submission: sub, Status: StatusPersisted, Record: rec}
}

// Skipped reports an expected drop.
func Skipped(sub Submission, reason SkipReason, err error) Outcome {
	return Outcome{Submission: sub, Status: StatusSkipped, Reason: reason, Err: err}
}

// Failed reports an unexpected error.
func Failed(sub Submission, err error) Outcome {
	return Outcome{Submission: sub, Status: StatusFailed, Err: err}
}

// OutcomeFromError classifies a processing error. Duplicates and invalid
// listings are skips; everything else is a failure.
func OutcomeFromError(sub Submission, err error) Outcome {
	switch {
	case errors.Is(err, ErrDuplicate):
		return Skipped(sub, ReasonDuplicate, err)
	case errors.Is(err, ErrValidation):
		return Skipped(sub, ReasonInvalid, err)
	default:
		return Failed(sub, err)
	}
}
