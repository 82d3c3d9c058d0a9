package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Fatalf("expected Default(), got %+v", cfg)
	}
}

func TestLoadParsesFileOverDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultline.yaml")
	contents := "listen_addr: 10.0.0.5:9000\nrsa_key_bits: 3072\nindex_driver: bolt\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != "10.0.0.5:9000" {
		t.Errorf("got ListenAddr %q", cfg.ListenAddr)
	}
	if cfg.RSAKeyBits != 3072 {
		t.Errorf("got RSAKeyBits %d", cfg.RSAKeyBits)
	}
	if cfg.CommandTimeout != Default().CommandTimeout {
		t.Error("expected untouched field to keep its default")
	}
}

func TestApplyOverridesOnlyTouchesSetFields(t *testing.T) {
	cfg := Default()
	logJSON := true
	cfg.ApplyOverrides(Override{
		ListenAddr: "127.0.0.1:1",
		LogJSON:    &logJSON,
	})
	if cfg.ListenAddr != "127.0.0.1:1" {
		t.Errorf("got ListenAddr %q", cfg.ListenAddr)
	}
	if !cfg.LogJSON {
		t.Error("expected LogJSON override to apply")
	}
	if cfg.PollInterval != Default().PollInterval {
		t.Error("expected PollInterval to remain default")
	}
	if cfg.CommandTimeout != 1*time.Minute {
		t.Errorf("got CommandTimeout %v", cfg.CommandTimeout)
	}
}
