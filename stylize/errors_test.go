package stylize

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindModelLoad, "model_load"},
		{KindValidation, "validation"},
		{KindInference, "inference"},
		{KindArtifactWrite, "artifact_write"},
		{KindUnknown, "unknown"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestErrorMatchesKindSentinel(t *testing.T) {
	sentinels := map[Kind]error{
		KindModelLoad:     ErrModelLoad,
		KindValidation:    ErrValidation,
		KindInference:     ErrInference,
		KindArtifactWrite: ErrArtifactWrite,
	}

	for kind, sentinel := range sentinels {
		t.Run(kind.String(), func(t *testing.T) {
			err := fmt.Errorf("request 42: %w", newError(kind, "op", errDeviceFault))

			if !errors.Is(err, sentinel) {
				t.Errorf("errors.Is(err, %v) = false, want true", sentinel)
			}
			if !errors.Is(err, errDeviceFault) {
				t.Error("errors.Is(err, cause) = false, want true")
			}
			for other, s := range sentinels {
				if other != kind && errors.Is(err, s) {
					t.Errorf("error of kind %s also matches %v", kind, s)
				}
			}
			if got := KindOf(err); got != kind {
				t.Errorf("KindOf() = %s, want %s", got, kind)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := newError(KindInference, "generate", errDeviceFault)
	msg := err.Error()

	for _, want := range []string{"inference failed", "generate", "device fault"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestKindOfNonStylizeError(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %s, want unknown", got)
	}
	if got := KindOf(nil); got != KindUnknown {
		t.Errorf("KindOf(nil) = %s, want unknown", got)
	}
}
