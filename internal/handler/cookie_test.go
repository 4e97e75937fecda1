package handler_test

import (
	"strings"
	"testing"

	"github.com/kardexsoft/kardex-gateway/internal/handler"
)

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := handler.NewSealer("")
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}

	sealed, err := sealer.Seal("sid-123")
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	opened, ok := sealer.Open(sealed)
	if !ok || opened != "sid-123" {
		t.Errorf("round trip failed: %q / %v", opened, ok)
	}
}

func TestSealer_RejectsTampering(t *testing.T) {
	sealer, _ := handler.NewSealer("")

	sealed, err := sealer.Seal("sid-123")
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	tampered := strings.Map(func(r rune) rune {
		if r == 'A' {
			return 'B'
		}
		return 'A'
	}, sealed)

	if _, ok := sealer.Open(tampered); ok {
		t.Error("tampered cookie must not open")
	}
}

func TestSealer_RejectsForeignKey(t *testing.T) {
	a, _ := handler.NewSealer("")
	b, _ := handler.NewSealer("")

	sealed, err := a.Seal("sid-123")
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if _, ok := b.Open(sealed); ok {
		t.Error("cookie sealed with another key must not open")
	}
}

func TestNewSealer_InvalidKey(t *testing.T) {
	if _, err := handler.NewSealer("not-hex"); err == nil {
		t.Error("expected an error for a malformed key")
	}
	if _, err := handler.NewSealer("abcd"); err == nil {
		t.Error("expected an error for a short key")
	}
}
