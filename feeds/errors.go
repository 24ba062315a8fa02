package feeds

import "fmt"

// ParseError describes a single record that could not be decoded. The
// record is dropped; the rest of the feed is still usable.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
