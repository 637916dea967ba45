package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tears-mysthrala/agents-orchestration-system/internal/agent"
)

func TestNewStoreAt_WritesDefaults(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStoreAt(dir)
	if err != nil {
		t.Fatalf("NewStoreAt failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "settings.json")); err != nil {
		t.Errorf("settings.json not created: %v", err)
	}

	s := store.Get()
	if s.Orchestrator.MaxWorkers != 5 || s.Orchestrator.HistoryLimit != 50 {
		t.Errorf("orchestrator defaults = %+v", s.Orchestrator)
	}
	if s.Monitoring.ErrorRateThreshold != 0.5 {
		t.Errorf("monitoring defaults = %+v", s.Monitoring)
	}
	if len(s.Providers) == 0 {
		t.Error("no default provider")
	}
}

func TestStore_UpdatePersists(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStoreAt(dir)
	if err != nil {
		t.Fatal(err)
	}

	err = store.Update(func(s *Settings) {
		s.Orchestrator.MaxWorkers = 2
		s.Providers = append(s.Providers, agent.ProviderConfig{
			Name:    "openai",
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		})
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	reloaded, err := NewStoreAt(dir)
	if err != nil {
		t.Fatal(err)
	}
	s := reloaded.Get()
	if s.Orchestrator.MaxWorkers != 2 {
		t.Errorf("max_workers = %d after reload", s.Orchestrator.MaxWorkers)
	}
	if len(s.Providers) != 2 || s.Providers[1].Name != "openai" {
		t.Errorf("providers = %+v", s.Providers)
	}
}

func TestStore_LoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStoreAt(dir); err == nil {
		t.Fatal("expected error for corrupt settings file")
	}
}

func TestStore_DaemonLockIsExclusive(t *testing.T) {
	dir := t.TempDir()
	first, err := NewStoreAt(dir)
	if err != nil {
		t.Fatal(err)
	}
	locked, err := first.Acquire()
	if err != nil || !locked {
		t.Fatalf("first Acquire: locked=%v err=%v", locked, err)
	}
	defer first.Release()

	second, err := NewStoreAt(dir)
	if err != nil {
		t.Fatal(err)
	}
	locked, err = second.Acquire()
	if err != nil {
		t.Fatalf("second Acquire errored: %v", err)
	}
	if locked {
		t.Error("second store acquired an already-held lock")
	}
}
