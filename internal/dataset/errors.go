package dataset

import "errors"

var (
	// ErrFileNotFound is returned when the backing file does not exist.
	ErrFileNotFound = errors.New("data file not found")
	// ErrSchema is returned when the file is not a usable table: unreadable
	// CSV, missing required columns, duplicate column names or overlong rows.
	ErrSchema = errors.New("invalid data file schema")
	// ErrLockTimeout is returned when the access guard could not be acquired
	// within the store's lock timeout.
	ErrLockTimeout = errors.New("timed out waiting for data file lock")
	// ErrIO is returned on filesystem failures while reading or writing.
	ErrIO = errors.New("data file I/O error")
)
