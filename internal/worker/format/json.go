package format

import (
	"strings"

	"github.com/neematajs/neemata-go/internal/jsoncodec"
)

// JSON is the default Format, backed by sonic, matching any content-type
// containing "json" (application/json, application/vnd.api+json, ...).
type JSON struct{}

// NewJSON constructs the JSON Format.
func NewJSON() *JSON { return &JSON{} }

func (f *JSON) Name() string { return "json" }

func (f *JSON) Supports(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "json")
}

func (f *JSON) Encode(v any) ([]byte, error) {
	return jsoncodec.Marshal(v)
}

func (f *JSON) Decode(data []byte, target any) error {
	return jsoncodec.Unmarshal(data, target)
}
