package store

import "errors"

// ErrNotFound indicates a requested record does not exist.
var ErrNotFound = errors.New("store: not found")
