package dberrors

import "errors"

var (
	ErrNotFound        = errors.New("celldb: not found")
	ErrClosed          = errors.New("celldb: closed")
	ErrInvalidArgument = errors.New("celldb: invalid argument")
	// ErrTableExists means a table file for the generation is already on disk.
	// It signals a broken generation counter and must not be retried.
	ErrTableExists = errors.New("celldb: table already exists")
	// ErrCorruptTable is returned when a table footer or record cannot be parsed.
	ErrCorruptTable = errors.New("celldb: corrupt table")
)
