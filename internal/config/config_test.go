package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxMarkersPerExperience != DefaultConfig().MaxMarkersPerExperience {
		t.Fatalf("MaxMarkersPerExperience = %d, want %d", cfg.MaxMarkersPerExperience, DefaultConfig().MaxMarkersPerExperience)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"max_markers_per_experience": 12, "log_level": "debug"}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxMarkersPerExperience != 12 {
		t.Fatalf("MaxMarkersPerExperience = %d, want 12", cfg.MaxMarkersPerExperience)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"disabled_tools": ["experience_purge", " marker_delete ", ""]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DisabledTools) != 2 || cfg.DisabledTools[1] != "marker_delete" {
		t.Fatalf("DisabledTools = %v, want [experience_purge marker_delete]", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"max_markers_per_experience": 100, "disabled_tools": ["experience_purge"]}`)
	writeConfig(t, filepath.Join(repoRoot, DirName), `{"max_markers_per_experience": 10, "disabled_tools": ["marker_delete"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.MaxMarkersPerExperience != 10 {
		t.Errorf("MaxMarkersPerExperience = %d, want 10 (repo override)", cfg.MaxMarkersPerExperience)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.MaxMarkersPerExperience != 256 {
		t.Errorf("MaxMarkersPerExperience = %d, want 256 (default)", cfg.MaxMarkersPerExperience)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	repoRoot := t.TempDir()
	writeConfig(t, filepath.Join(repoRoot, DirName), `{"allow_unsafe_paths": true}`)

	nested := filepath.Join(repoRoot, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(t.TempDir(), nested)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if !cfg.AllowUnsafePaths {
		t.Error("AllowUnsafePaths = false, want true from parent repo config")
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if got := FindRepoConfig(t.TempDir()); got != "" {
		t.Skipf("a %s/config.json exists above the temp dir: %s", DirName, got)
	}
}

func TestMerge(t *testing.T) {
	base := &Config{MaxMarkersPerExperience: 256, LogLevel: "info", AllowedPaths: []string{"/a", "/b"}}
	overlay := &Config{DBMaxOpenConns: 1, AllowUnsafePaths: true, AllowedPaths: []string{"/b", "/c"}}

	got := Merge(base, overlay)

	if got.MaxMarkersPerExperience != 256 {
		t.Errorf("MaxMarkersPerExperience = %d, want 256", got.MaxMarkersPerExperience)
	}
	if got.DBMaxOpenConns != 1 {
		t.Errorf("DBMaxOpenConns = %d, want 1", got.DBMaxOpenConns)
	}
	if got.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", got.LogLevel)
	}
	if !got.AllowUnsafePaths {
		t.Error("AllowUnsafePaths = false, want true")
	}
	if len(got.AllowedPaths) != 3 {
		t.Errorf("AllowedPaths = %v, want 3 deduplicated entries", got.AllowedPaths)
	}
}
