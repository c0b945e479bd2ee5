package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("DRIFTDB_CONFIG")
	defer os.Setenv("DRIFTDB_CONFIG", originalEnv)

	os.Setenv("DRIFTDB_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingStorageDir verifies run fails validation when the storage
// directory is not configured.
func TestRun_MissingStorageDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
client:
  project_id: "test-project"

storage:
  dir: ""
  busy_timeout: 5

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("DRIFTDB_CONFIG")
	defer os.Setenv("DRIFTDB_CONFIG", originalEnv)
	os.Setenv("DRIFTDB_CONFIG", configPath)

	// The env override would defeat the empty dir in the file.
	originalDir := os.Getenv("DRIFTDB_STORAGE_DIR")
	defer os.Setenv("DRIFTDB_STORAGE_DIR", originalDir)
	os.Unsetenv("DRIFTDB_STORAGE_DIR")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty storage dir")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("DRIFTDB_CONFIG")
	defer os.Setenv("DRIFTDB_CONFIG", originalEnv)

	os.Unsetenv("DRIFTDB_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("DRIFTDB_CONFIG")
	defer os.Setenv("DRIFTDB_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("DRIFTDB_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_SuccessfulStartupAndShutdown opens a real store in a temp
// directory and cancels the context to drive a clean shutdown.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dataDir := filepath.Join(tmpDir, "data")

	configContent := `
client:
  project_id: "test-project"

storage:
  dir: "` + dataDir + `"
  busy_timeout: 5

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("DRIFTDB_CONFIG")
	defer os.Setenv("DRIFTDB_CONFIG", originalEnv)
	os.Setenv("DRIFTDB_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}

	// The installation key must have been persisted for the next run.
	if _, err := os.Stat(filepath.Join(dataDir, "installation-id")); err != nil {
		t.Errorf("installation-id file missing after run: %v", err)
	}
}
