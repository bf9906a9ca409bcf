// Package format implements the Format Selector: a content-type keyed
// encode/decode contract with a first-match Selector, backed by a JSON
// (sonic) and a protobuf implementation.
package format

// Format encodes and decodes values for the content-types it supports. The
// Selector chooses the first Format in registration order whose Supports
// returns true.
type Format interface {
	Name() string
	Supports(contentType string) bool
	Encode(v any) ([]byte, error)
	Decode(data []byte, target any) error
}

// Selector picks a Format by content-type, first-match.
type Selector struct {
	formats []Format
}

// NewSelector constructs a Selector trying formats in the given order.
func NewSelector(formats ...Format) *Selector {
	return &Selector{formats: formats}
}

// Select returns the first registered Format supporting contentType, or
// false if none do.
func (s *Selector) Select(contentType string) (Format, bool) {
	for _, f := range s.formats {
		if f.Supports(contentType) {
			return f, true
		}
	}
	return nil, false
}
