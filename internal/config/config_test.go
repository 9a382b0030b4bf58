package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadAppliesDefaultsAndFloors(t *testing.T) {
	t.Setenv("INJECTOR_SCAN_INTERVAL_MS", "5")
	t.Setenv("INJECTOR_CONTROLLER_URL", "http://127.0.0.1:9999/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ScanIntervalMS != 100 {
		t.Fatalf("ScanIntervalMS = %d; want 100", cfg.ScanIntervalMS)
	}
	if cfg.ControllerURL != "http://127.0.0.1:9999" {
		t.Fatalf("ControllerURL = %q; want trailing slash trimmed", cfg.ControllerURL)
	}
	if cfg.SiteKey != "soundcloud" {
		t.Fatalf("SiteKey = %q; want %q", cfg.SiteKey, "soundcloud")
	}
	if got, want := cfg.GetCDPURL(), "http://127.0.0.1:9220"; got != want {
		t.Fatalf("GetCDPURL() = %q; want %q", got, want)
	}
}

func TestLoadControllerParsesPortCandidates(t *testing.T) {
	t.Setenv("CONTROLLER_PORT_CANDIDATES", " 127.0.0.1:1 ,, 127.0.0.1:2")
	t.Setenv("CONTROLLER_EVAL_TIMEOUT_MS", "10")
	t.Setenv("TIPSHIELD_STORE_BACKEND", "SQLite")

	cfg, err := LoadController()
	if err != nil {
		t.Fatalf("LoadController() error = %v", err)
	}
	if want := []string{"127.0.0.1:1", "127.0.0.1:2"}; !reflect.DeepEqual(cfg.PortCandidates, want) {
		t.Fatalf("PortCandidates = %v; want %v", cfg.PortCandidates, want)
	}
	if cfg.EvalTimeoutMS != 1000 {
		t.Fatalf("EvalTimeoutMS = %d; want 1000", cfg.EvalTimeoutMS)
	}
	if cfg.StoreBackend != "sqlite" {
		t.Fatalf("StoreBackend = %q; want %q", cfg.StoreBackend, "sqlite")
	}
}

func TestLoadRewardsSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.yaml")
	body := "enabled: true\ninline_tip:\n  soundcloud: true\n  twitter: false\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}

	seed, err := LoadRewardsSeed(path)
	if err != nil {
		t.Fatalf("LoadRewardsSeed() error = %v", err)
	}
	if !seed.Enabled {
		t.Fatal("Enabled = false; want true")
	}
	if want := map[string]bool{"soundcloud": true, "twitter": false}; !reflect.DeepEqual(seed.InlineTip, want) {
		t.Fatalf("InlineTip = %v; want %v", seed.InlineTip, want)
	}
}

func TestLoadRewardsSeedMissingFile(t *testing.T) {
	_, err := LoadRewardsSeed(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("LoadRewardsSeed() error = %v; want os.ErrNotExist", err)
	}
}
