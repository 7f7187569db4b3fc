package api_test

import (
	"errors"
	"testing"

	"github.com/mkc-quant/palvalidator/internal/api"
	"github.com/shopspring/decimal"
)

func TestStoreLifecycleCompleted(t *testing.T) {
	s := api.NewStore()
	rec := s.Start("run-1", "romano_wolf", 100)
	if rec.Status != api.StatusRunning {
		t.Fatalf("Start status = %v, want running", rec.Status)
	}

	s.Progress("run-1", 42)
	got, ok := s.Get("run-1")
	if !ok {
		t.Fatal("Get(run-1) = false, want true")
	}
	if got.PermutationsDone != 42 {
		t.Fatalf("PermutationsDone = %d, want 42", got.PermutationsDone)
	}

	survivors := map[string]decimal.Decimal{"PAL Long 1": decimal.NewFromFloat(0.01)}
	s.Complete("run-1", survivors)

	got, ok = s.Get("run-1")
	if !ok {
		t.Fatal("Get(run-1) after Complete = false, want true")
	}
	if got.Status != api.StatusCompleted {
		t.Fatalf("Status = %v, want completed", got.Status)
	}
	if got.CompletedAt.IsZero() {
		t.Fatal("CompletedAt is zero after Complete")
	}
	if len(got.Survivors) != 1 {
		t.Fatalf("len(Survivors) = %d, want 1", len(got.Survivors))
	}
}

func TestStoreLifecycleFailed(t *testing.T) {
	s := api.NewStore()
	s.Start("run-2", "masters", 10)

	s.Fail("run-2", errors.New("permutation budget exhausted"))

	got, ok := s.Get("run-2")
	if !ok {
		t.Fatal("Get(run-2) = false, want true")
	}
	if got.Status != api.StatusFailed {
		t.Fatalf("Status = %v, want failed", got.Status)
	}
	if got.Err != "permutation budget exhausted" {
		t.Fatalf("Err = %q, want %q", got.Err, "permutation budget exhausted")
	}
}

func TestStoreGetUnknownRun(t *testing.T) {
	s := api.NewStore()
	if _, ok := s.Get("missing"); ok {
		t.Fatal("Get(missing) = true, want false")
	}
}

func TestStoreProgressAndFailOnUnknownRunAreNoops(t *testing.T) {
	s := api.NewStore()
	s.Progress("missing", 5)
	s.Fail("missing", errors.New("boom"))
	if _, ok := s.Get("missing"); ok {
		t.Fatal("Get(missing) = true, want false after no-op calls")
	}
}
