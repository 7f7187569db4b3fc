package config_test

import (
	"testing"

	"github.com/mkc-quant/palvalidator/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "localhost" {
		t.Errorf("Host = %q, want localhost", cfg.Host)
	}
	if cfg.Port != 8090 {
		t.Errorf("Port = %d, want 8090", cfg.Port)
	}
	if cfg.NumPermutations != 2000 {
		t.Errorf("NumPermutations = %d, want 2000", cfg.NumPermutations)
	}
	if cfg.PartitionByFamily {
		t.Error("PartitionByFamily = true, want false")
	}
	if cfg.RunID.String() == "" {
		t.Error("RunID is empty")
	}
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	cfg, err := config.Load([]string{"-port", "9100", "-permutations", "500", "-partition-by-family"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Port)
	}
	if cfg.NumPermutations != 500 {
		t.Errorf("NumPermutations = %d, want 500", cfg.NumPermutations)
	}
	if !cfg.PartitionByFamily {
		t.Error("PartitionByFamily = false, want true")
	}
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("PALVALIDATOR_PERMUTATIONS", "777")
	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NumPermutations != 777 {
		t.Errorf("NumPermutations = %d, want 777 from env", cfg.NumPermutations)
	}
}

func TestLoadFlagTakesPrecedenceOverEnv(t *testing.T) {
	t.Setenv("PALVALIDATOR_PERMUTATIONS", "777")
	cfg, err := config.Load([]string{"-permutations", "42"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NumPermutations != 42 {
		t.Errorf("NumPermutations = %d, want 42 from explicit flag", cfg.NumPermutations)
	}
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	if _, err := config.Load([]string{"-does-not-exist"}); err == nil {
		t.Fatal("Load with unknown flag = nil error, want error")
	}
}
