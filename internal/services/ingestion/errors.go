package ingestion

import (
	"errors"
	"fmt"

	"carbonwatch-backend/internal/services/classifier"
	"carbonwatch-backend/internal/services/spike"
)

// Fatal errors abort the whole upload.
var (
	ErrParse      = errors.New("upload could not be parsed")
	ErrValidation = errors.New("upload validation failed")
)

// Row-level errors are reported and the batch continues.
var (
	ErrRowSkipped  = errors.New("row skipped")
	ErrPersistence = errors.New("persistence failed")
)

type Kind string

const (
	KindRowSkipped          Kind = "row_skipped"
	KindClassificationError Kind = "classification_error"
	KindPersistenceError    Kind = "persistence_error"
	KindStoreUnavailable    Kind = "store_unavailable"
)

// RowError describes what went wrong with one data row. Rows are numbered
// from 1, not counting the header.
type RowError struct {
	Row  int
	Kind Kind
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %v", e.Row, e.Kind, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Warning is the serialisable form of a RowError.
type Warning struct {
	Row     int    `json:"row"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *RowError) Warning() Warning {
	return Warning{Row: e.Row, Kind: e.Kind, Message: e.Err.Error()}
}

func kindOf(err error) Kind {
	switch {
	case errors.Is(err, classifier.ErrClassification):
		return KindClassificationError
	case errors.Is(err, spike.ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrPersistence):
		return KindPersistenceError
	}
	return KindRowSkipped
}
