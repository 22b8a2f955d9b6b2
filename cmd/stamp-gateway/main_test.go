package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFiles_SkipsMissingAndKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, ".env.local")
	shared := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(local, []byte("STAMP_TEST_A=local\n"), 0o600))
	require.NoError(t, os.WriteFile(shared, []byte("STAMP_TEST_A=shared\nSTAMP_TEST_B=shared\n"), 0o600))

	t.Setenv("STAMP_TEST_A", "")
	t.Setenv("STAMP_TEST_B", "")
	os.Unsetenv("STAMP_TEST_A")
	os.Unsetenv("STAMP_TEST_B")
	t.Setenv("STAMP_TEST_C", "process")

	err := loadEnvFiles(filepath.Join(dir, "missing.env"), local, shared)
	require.NoError(t, err)

	assert.Equal(t, "local", os.Getenv("STAMP_TEST_A"))
	assert.Equal(t, "shared", os.Getenv("STAMP_TEST_B"))
	assert.Equal(t, "process", os.Getenv("STAMP_TEST_C"))
}

func TestRun_RejectsBadFlags(t *testing.T) {
	err := run([]string{"-port", "notanumber"})
	assert.Error(t, err)
}

func TestRun_RejectsMissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	err := run([]string{"-config", "does-not-exist.yaml"})
	assert.Error(t, err)
}
