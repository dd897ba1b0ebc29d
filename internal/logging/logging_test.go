package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/crop-studio/internal/config"
)

func TestNewWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.LogConfig{Level: "debug"}, &buf)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	logger.WithField("target", "square").Debug("hello")
	assert.Contains(t, buf.String(), "target=square")
	assert.NoError(t, closer.Close())
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "crop.log")
	var buf bytes.Buffer

	logger, closer, err := New(config.LogConfig{Level: "info", File: path}, &buf)
	require.NoError(t, err)

	logger.Info("to file")
	assert.Empty(t, buf.String())
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

func TestNewInvalidLevel(t *testing.T) {
	_, closer, err := New(config.LogConfig{Level: "chatty"}, &bytes.Buffer{})
	assert.Error(t, err)
	assert.Nil(t, closer)
}

func TestCloseReleasesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crop.log")

	logger, closer, err := New(config.LogConfig{Level: "info", File: path}, &bytes.Buffer{})
	require.NoError(t, err)
	logger.Info("first")
	require.NoError(t, closer.Close())

	// the file can be moved away once closed; later writes start a new one
	require.NoError(t, os.Rename(path, filepath.Join(dir, "crop.old.log")))
	logger.Info("second")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"second"`)
	assert.NotContains(t, string(data), `"msg":"first"`)
}
