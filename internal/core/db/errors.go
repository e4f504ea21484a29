package db

import "errors"

// ErrNotFound indicates a lookup matched no row.
var ErrNotFound = errors.New("not found")
