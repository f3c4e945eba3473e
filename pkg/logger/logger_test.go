package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRejectsBadLevelAndFormat(t *testing.T) {
	_, err := New("loud", "json", "stdout")
	assert.Error(t, err)

	_, err = New("info", "xml", "stdout")
	assert.Error(t, err)
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	l, err := New("debug", "json", path)
	require.NoError(t, err)

	l.Info("rating stored", zap.Int64("id", 7))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"rating stored"`)
	assert.Contains(t, string(data), `"id":7`)
}

func TestPackageFuncsAreSafeBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Info("before init")
		Warn("before init")
		Debug("before init")
		Named("test").Info("named before init")
	})
}
