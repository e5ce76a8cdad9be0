package pcmwire

import (
	"errors"
	"fmt"
)

// Sentinel errors for wire protocol session handling. These enable callers
// to programmatically distinguish failure modes using errors.Is.
var (
	ErrVersionMismatch = errors.New("pcmwire: no compatible version")
	ErrUnknownTrack    = errors.New("pcmwire: unknown track")
	ErrUnknownStream   = errors.New("pcmwire: unknown stream key")
)

// ParseError indicates a failure to parse a wire protocol field. It wraps
// the underlying I/O or format error and records which field was being
// parsed when the error occurred.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pcmwire: parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
