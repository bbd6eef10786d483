package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrDatasetNotFound means the named dataset file does not exist.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrMalformedDataset means the file exists but could not be turned
	// into constraints.
	ErrMalformedDataset = errors.New("malformed dataset")
)

// MalformedDatasetError points at the offending field of a dataset file.
type MalformedDatasetError struct {
	File   string
	Field  string
	Reason string
}

func (e *MalformedDatasetError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("dataset %s: %s", e.File, e.Reason)
	}
	return fmt.Sprintf("dataset %s: %s: %s", e.File, e.Field, e.Reason)
}

func (e *MalformedDatasetError) Unwrap() error { return ErrMalformedDataset }

// Code returns the stable error code.
func (e *MalformedDatasetError) Code() string { return "MALFORMED_DATASET" }

// NotFoundError names the dataset that could not be found.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dataset %s: not found", e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrDatasetNotFound }

// Code returns the stable error code.
func (e *NotFoundError) Code() string { return "DATASET_NOT_FOUND" }
