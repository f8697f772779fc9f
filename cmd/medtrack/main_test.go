package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmsas95/medtrack/internal/cli"
)

func useDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prevData, prevConfig := *dataDir, *configPath
	*dataDir, *configPath = dir, ""
	t.Setenv("MEDTRACK_STORAGE_BACKEND", "file")
	t.Cleanup(func() { *dataDir, *configPath = prevData, prevConfig })
	return dir
}

func TestRunHelpAndVersion(t *testing.T) {
	useDataDir(t)
	assert.NoError(t, run("help", nil))
	assert.NoError(t, run("version", nil))
}

func TestRunConfigInit(t *testing.T) {
	dir := useDataDir(t)
	require.NoError(t, run("config", []string{"init"}))
	assert.FileExists(t, filepath.Join(dir, "medtrack.yaml"))
	assert.NoError(t, run("status", nil))
}

func TestRunUnknownCommand(t *testing.T) {
	useDataDir(t)
	assert.Error(t, run("fly", nil))
}

func TestRunMedicationCommandsPersist(t *testing.T) {
	dir := useDataDir(t)

	require.NoError(t, run("add", []string{"--user", "smoke", "--name", "Aspirin", "--dosage", "100mg", "--frequency", "daily"}))
	require.NoError(t, run("list", []string{"--user", "smoke"}))

	data, err := os.ReadFile(filepath.Join(dir, "medications", "smoke.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Aspirin"`)

	assert.ErrorIs(t, run("list", []string{"--nope"}), cli.ErrUsage)
	assert.NoError(t, run("doctor", nil))
}
