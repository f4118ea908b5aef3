package models

import (
	"errors"
	"fmt"
)

var ErrInvalidLimit = errors.New("search limit must be a positive integer")

// StoreError wraps a failed storage operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
