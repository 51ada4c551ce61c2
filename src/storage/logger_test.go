package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := NewLogger(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger, path
}

func TestLogger_WritesEntries(t *testing.T) {
	logger, path := newTestLogger(t)

	logger.Info("数据加载完成")
	logger.Error("live fetch failed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INFO: 数据加载完成")
	assert.Contains(t, string(data), "ERROR: live fetch failed")
}

func TestLogger_Subscribe(t *testing.T) {
	logger, _ := newTestLogger(t)

	ch := logger.Subscribe()
	logger.Warning("no data")

	msg := <-ch
	assert.Contains(t, msg, "WARNING: no data")

	logger.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestLogger_CheckRotate(t *testing.T) {
	logger, path := newTestLogger(t)

	logger.Info(strings.Repeat("x", 64))
	require.NoError(t, logger.CheckRotate("1 * 16"))
	logger.Info("after rotation")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "after rotation")
	assert.NotContains(t, string(data), "xxxx")
}

func TestLogger_CheckRotateBelowLimit(t *testing.T) {
	logger, path := newTestLogger(t)

	logger.Info("small")
	require.NoError(t, logger.CheckRotate("10 * 1024 * 1024"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEval(t *testing.T) {
	n, err := eval("10 * 1024 * 1024")
	require.NoError(t, err)
	assert.Equal(t, int64(10*1024*1024), n)

	_, err = eval("ten megabytes")
	assert.Error(t, err)
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DEBUG.String())
	assert.Equal(t, "FATAL", FATAL.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}
