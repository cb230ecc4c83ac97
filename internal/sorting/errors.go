package sorting

import "errors"

// Sentinel errors. All are recoverable by re-supplying valid input.
var (
	// ErrInvalidConfiguration is returned for an unknown criterion, a letter
	// count outside 1..3 or a bin count outside [MinBins, MaxBins].
	ErrInvalidConfiguration = errors.New("invalid sorting configuration")

	// ErrEmptyInput is returned when there are no candidate cards to sort.
	ErrEmptyInput = errors.New("no candidate cards to sort")

	// ErrStaleCandidateSet is returned by Apply when the candidates changed since
	// the preview the caller is applying. A fresh preview is required.
	ErrStaleCandidateSet = errors.New("candidate set changed since preview")
)
