package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mkc-quant/palvalidator/internal/errs"
)

func TestKindOfMatchesConstructor(t *testing.T) {
	err := errs.NewNotFound("series.GetEntry", "timestamp not found")

	if got := errs.KindOf(err); got != errs.NotFound {
		t.Errorf("KindOf = %v, want NotFound", got)
	}

	if !errs.Is(err, errs.NotFound) {
		t.Error("Is(err, NotFound) = false, want true")
	}

	if errs.Is(err, errs.OffsetOutOfRange) {
		t.Error("Is(err, OffsetOutOfRange) = true, want false")
	}
}

func TestKindOfUnknownForPlainError(t *testing.T) {
	plain := errors.New("boom")
	if got := errs.KindOf(plain); got != errs.Unknown {
		t.Errorf("KindOf(plain) = %v, want Unknown", got)
	}
}

func TestWrappedErrorPreservesKind(t *testing.T) {
	base := errs.NewOffsetOutOfRange("series.GetEntry", "offset past first bar")
	wrapped := fmt.Errorf("loading bar: %w", base)

	if !errs.Is(wrapped, errs.OffsetOutOfRange) {
		t.Error("Is(wrapped, OffsetOutOfRange) = false, want true")
	}
}

func TestErrorMessageIncludesOpAndCause(t *testing.T) {
	cause := errors.New("underlying")
	err := errs.WrapInvalidArg("prep.Run", "nil catalog", cause)

	msg := err.Error()
	if msg == "" {
		t.Fatal("Error() returned empty string")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}
