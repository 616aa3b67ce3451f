package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNoMatchingVersion, "no release of %s matches %s", "foo", "<1.0")

	if err.Code != ErrCodeNoMatchingVersion {
		t.Errorf("expected code %s, got %s", ErrCodeNoMatchingVersion, err.Code)
	}
	want := "NO_MATCHING_VERSION: no release of foo matches <1.0"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeNetwork, cause, "failed to fetch %s", "https://example.com")

	if !stderrors.Is(err, cause) {
		t.Error("expected wrapped error to match cause via errors.Is")
	}
	if err.Unwrap() != cause {
		t.Error("expected Unwrap to return cause")
	}
}

func TestIs(t *testing.T) {
	err := New(ErrCodeIncompatiblePython, "numpy incompatible with 2.7")

	if !Is(err, ErrCodeIncompatiblePython) {
		t.Error("expected Is to match the code")
	}
	if Is(err, ErrCodeNoArtifact) {
		t.Error("expected Is not to match a different code")
	}
	if Is(fmt.Errorf("plain"), ErrCodeNoArtifact) {
		t.Error("expected Is to be false for non-coded errors")
	}

	// Wrapped coded errors are still matchable.
	wrapped := fmt.Errorf("walk failed: %w", err)
	if !Is(wrapped, ErrCodeIncompatiblePython) {
		t.Error("expected Is to unwrap the chain")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(ErrCodeTruncatedRead, "short read")); got != ErrCodeTruncatedRead {
		t.Errorf("expected TRUNCATED_READ, got %s", got)
	}
	if got := GetCode(fmt.Errorf("plain")); got != "" {
		t.Errorf("expected empty code, got %s", got)
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodeNoArtifact, "no wheel or sdist for foo 1.0")
	if got := UserMessage(err); got != "no wheel or sdist for foo 1.0" {
		t.Errorf("unexpected user message: %q", got)
	}
	if got := UserMessage(fmt.Errorf("plain")); got != "plain" {
		t.Errorf("unexpected user message: %q", got)
	}
}
