package llms

import (
	"errors"
	"fmt"
	"testing"
)

func TestAsGenerationErrorPreservesKind(t *testing.T) {
	base := NewGenerationError(ErrorKindRateLimited, errors.New("slow down"))
	wrapped := fmt.Errorf("call failed: %w", base)

	got := AsGenerationError(wrapped)
	if got.Kind() != ErrorKindRateLimited {
		t.Fatalf("expected rate limited kind to survive wrapping, got %q", got.Kind())
	}
}

func TestAsGenerationErrorClassifiesUntypedAsOther(t *testing.T) {
	got := AsGenerationError(errors.New("boom"))
	if got.Kind() != ErrorKindOther {
		t.Fatalf("expected untyped error to classify as other, got %q", got.Kind())
	}
}

func TestAsGenerationErrorNil(t *testing.T) {
	if AsGenerationError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}
