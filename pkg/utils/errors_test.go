package utils

import (
	"errors"
	"testing"
)

func TestWrapReturnsNilForNilError(t *testing.T) {
	if err := Wrap(nil, "read config"); err != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWrapPreservesErrorsIs(t *testing.T) {
	sentinel := errors.New("boom")
	wrapped := Wrap(sentinel, "load config")
	if !errors.Is(wrapped, sentinel) {
		t.Fatal("expected Wrap() to preserve errors.Is() against the original error")
	}
	if wrapped.Error() != "load config: boom" {
		t.Fatalf("wrapped.Error() = %q", wrapped.Error())
	}
}

func TestWrapfFormatsMessage(t *testing.T) {
	sentinel := errors.New("not found")
	wrapped := Wrapf(sentinel, "layer %q", "nether")
	if !errors.Is(wrapped, sentinel) {
		t.Fatal("expected Wrapf() to preserve errors.Is() against the original error")
	}
	if wrapped.Error() != `layer "nether": not found` {
		t.Fatalf("wrapped.Error() = %q", wrapped.Error())
	}
}

func TestWrapfReturnsNilForNilError(t *testing.T) {
	if err := Wrapf(nil, "layer %q", "nether"); err != nil {
		t.Fatalf("Wrapf(nil) = %v, want nil", err)
	}
}
