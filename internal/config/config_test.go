package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ProgressQueueCapacity != 64 {
		t.Fatalf("default queue capacity = %d, want 64", cfg.ProgressQueueCapacity)
	}
	if len(cfg.AllowedGroups) != 3 {
		t.Fatalf("default allowed groups = %v, want 3 entries", cfg.AllowedGroups)
	}
}

func TestLoadFile_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile(\"\") error: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("LoadFile(\"\") = %+v, want Default()", cfg)
	}
}

func TestLoadFile_OverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	yamlBody := "addr: \":9090\"\nprogress_queue_capacity: 128\nping_interval_ms: 200\nallowed_groups: [magnafpm, furling, user]\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.ProgressQueueCapacity != 128 || cfg.PingIntervalMs != 200 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadFile_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte("progress_queue_capacity: 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for zero queue capacity")
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
