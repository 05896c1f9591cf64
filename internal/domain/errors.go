package domain

import "errors"

var (
	// ErrModelUnavailable means no usable language model could be initialized.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("empty question")

	// ErrDimensionMismatch means a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")
)
