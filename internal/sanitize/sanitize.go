// Package sanitize strips HTML and other dangerous content from the
// handful of free-text fields that cross from one untrusted peer into
// logs or into a frame forwarded to the other peer: an agent's
// connection_reset message, and an access client's requested protocol
// string.
package sanitize

import "github.com/microcosm-cc/bluemonday"

// Policy wraps a shared, thread-safe bluemonday policy. A single Policy
// is created at startup and reused across all sessions.
type Policy struct {
	p *bluemonday.Policy
}

// NewStrict returns a Policy that strips all HTML, grounded on
// internal/middleware/inputvalidation.go's bluemonday.StrictPolicy()
// usage.
func NewStrict() *Policy {
	return &Policy{p: bluemonday.StrictPolicy()}
}

// String sanitizes a single free-text value.
func (s *Policy) String(value string) string {
	return s.p.Sanitize(value)
}
