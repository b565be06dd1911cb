package shaper

import (
	"strings"
	"testing"
)

func TestShapeFull(t *testing.T) {
	got, err := Shape("hello\nworld", Spec{Mode: Full})
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "hello\nworld" || got.Truncated {
		t.Errorf("got %+v", got)
	}
}

func TestShapeFilterPreservesOrder(t *testing.T) {
	raw := "alpha.conf\nbeta.txt\ngamma.conf\ndelta.txt"
	got, err := Shape(raw, Spec{Mode: Filter, Regex: `\.conf$`})
	if err != nil {
		t.Fatal(err)
	}
	want := "alpha.conf\ngamma.conf"
	if got.Text != want {
		t.Errorf("got %q, want %q", got.Text, want)
	}
}

func TestShapeTruncateBounds(t *testing.T) {
	raw := strings.Repeat("x", 1000)
	got, err := Shape(raw, Spec{Mode: Truncate, MaxTokens: 10})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Truncated {
		t.Fatal("expected Truncated=true")
	}
	sentinel := "... [truncated"
	if !strings.Contains(got.Text, sentinel) {
		t.Errorf("missing sentinel in %q", got.Text)
	}
	maxBytes := 10 * bytesPerToken
	if len(got.Text) > maxBytes+len(sentinel)+40 {
		t.Errorf("shaped output too long: %d bytes", len(got.Text))
	}
}

func TestShapeTruncateIdempotent(t *testing.T) {
	raw := strings.Repeat("y", 500)
	spec := Spec{Mode: Truncate, MaxTokens: 20}
	once, err := Shape(raw, spec)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := Shape(once.Text, spec)
	if err != nil {
		t.Fatal(err)
	}
	if once.Text != twice.Text {
		t.Errorf("shaping not idempotent:\nonce=%q\ntwice=%q", once.Text, twice.Text)
	}
}

func TestShapeTruncateNoopUnderLimit(t *testing.T) {
	raw := "short"
	got, err := Shape(raw, Spec{Mode: Truncate, MaxTokens: 100})
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != raw || got.Truncated {
		t.Errorf("got %+v, want unchanged", got)
	}
}
