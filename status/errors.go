package status

import (
	"errors"
	"fmt"
)

// ErrMalformedLine is wrapped by a ParseError for a line that matches no status-file form
var ErrMalformedLine = errors.New("malformed line")

// ParseError reports a fatal problem in a status file together with the offending source text
type ParseError struct {
	File string
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("line %d: %v: '%s'", e.Line, e.Err, e.Text)
	}
	return fmt.Sprintf("%s:%d: %v: '%s'", e.File, e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
