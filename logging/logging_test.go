package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governor.log")
	logger := logrus.New()

	cfg := DefaultConfig()
	cfg.File = path
	cfg.Format = "json"
	cfg.Level = "debug"

	closer, err := Apply(logger, cfg)
	require.NoError(t, err)

	logger.WithField("function", "TestApplyToRotatingFile").Debug("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestApplyToStderr(t *testing.T) {
	logger := logrus.New()
	closer, err := Apply(logger, DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Format = "xml"
	assert.Error(t, cfg.Validate())
}
