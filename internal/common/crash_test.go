package common

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCrashFile(t *testing.T) {
	previous := CrashLogDir
	t.Cleanup(func() { CrashLogDir = previous })

	dir := t.TempDir()
	InstallCrashHandler(dir)
	require.Equal(t, dir, CrashLogDir)

	path := WriteCrashFile("boom", GetStackTrace())
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)
	assert.Contains(t, report, "VELORYN CRASH REPORT")
	assert.Contains(t, report, "boom")
	assert.Contains(t, report, "TestWriteCrashFile")
}
