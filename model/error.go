package model

import "errors"

// Error taxonomy. Callers match with errors.Is; the concrete message
// still carries the wrapped cause.
var (
	// ErrValidation marks bad span bounds or malformed/mismatched input.
	ErrValidation = errors.New("validation failed")
	// ErrReferential marks a reference to a sentence or concept that does not exist.
	ErrReferential = errors.New("unknown reference")
	// ErrNotFound marks a lookup of an annotation or model that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBusy marks a training request while another run is in progress.
	ErrBusy = errors.New("training already in progress")
	// ErrTraining marks a classifier failure during a training run.
	ErrTraining = errors.New("training failed")
)
