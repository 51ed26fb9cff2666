package sanitize

import "testing"

func TestStringStripsHTML(t *testing.T) {
	policy := NewStrict()
	got := policy.String(`<script>alert(1)</script>connection reset by peer`)
	if got != "alert(1)connection reset by peer" {
		t.Fatalf("unexpected sanitized output: %q", got)
	}
}

func TestStringPassesThroughPlainText(t *testing.T) {
	policy := NewStrict()
	got := policy.String("tcp")
	if got != "tcp" {
		t.Fatalf("expected plain text unchanged, got %q", got)
	}
}
