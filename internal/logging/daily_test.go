package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDailyWriterSwitchesFileOnDateChange(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDailyWriter(dir, 7)
	require.NoError(t, err)
	defer w.Close()

	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return day }
	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)

	day = day.Add(2 * time.Minute)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)

	first, err := os.ReadFile(filepath.Join(dir, "app-2026-03-01.log"))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, "app-2026-03-02.log"))
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(first))
	assert.Equal(t, "second\n", string(second))
}

func TestCleanupOldLogsKeepsRetentionWindow(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"app-2026-01-01.log", "app-2026-01-09.log", "app-2026-01-10.log", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	cleanupOldLogs(dir, 2, time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))

	_, err := os.Stat(filepath.Join(dir, "app-2026-01-01.log"))
	assert.True(t, os.IsNotExist(err))
	assert.FileExists(t, filepath.Join(dir, "app-2026-01-09.log"))
	assert.FileExists(t, filepath.Join(dir, "app-2026-01-10.log"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}
