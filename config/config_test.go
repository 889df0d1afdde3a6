package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/audiogovernor/degradation"
	"github.com/opd-ai/audiogovernor/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverridesOnlyGivenKeys(t *testing.T) {
	cfg, err := Parse([]byte(`
governor:
  iteration_interval: 2ms
batcher:
  debounce_window: 25ms
degradation:
  severe_threshold: 0.97
  sheddable_effects: [delay, reverb]
  severe_disabled_effects: 2
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Millisecond, cfg.Governor.IterationInterval)
	assert.Equal(t, 25*time.Millisecond, cfg.Batcher.DebounceWindow)
	assert.Equal(t, 0.97, cfg.Degradation.SevereThreshold)
	assert.Equal(t, []degradation.EffectID{"delay", "reverb"}, cfg.Degradation.SheddableEffects)
	assert.Equal(t, 0.85, cfg.Degradation.ModerateThreshold, "unset keys keep defaults")
	assert.Equal(t, 1024, cfg.Governor.RingCapacity)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("governor: [not a map"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateWrapsSectionErrors(t *testing.T) {
	cfg := Default()
	cfg.CPU.WindowSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, limits.ErrOutOfRange)
	assert.Contains(t, err.Error(), "cpu")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compiler:\n  cache_size: 64\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Compiler.CacheSize)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("AUDIOGOV_DEBOUNCE_WINDOW", "40ms")
	t.Setenv("AUDIOGOV_COMPILER_CACHE_SIZE", "128")
	t.Setenv("AUDIOGOV_SEVERE_THRESHOLD", "0.99")
	t.Setenv("AUDIOGOV_RESUME_ON_INTERACTION", "false")
	t.Setenv("AUDIOGOV_LOG_LEVEL", "debug")
	t.Setenv("AUDIOGOV_RING_CAPACITY", "not-a-number")

	cfg := Default()
	require.NoError(t, ApplyEnv(cfg, filepath.Join(t.TempDir(), "absent.env")))

	assert.Equal(t, 40*time.Millisecond, cfg.Batcher.DebounceWindow)
	assert.Equal(t, 128, cfg.Compiler.CacheSize)
	assert.Equal(t, 0.99, cfg.Degradation.SevereThreshold)
	assert.False(t, cfg.Lifecycle.ResumeOnInteraction)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 1024, cfg.Governor.RingCapacity, "unparseable override is ignored")
}

func TestApplyEnvReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "governor.env")
	require.NoError(t, os.WriteFile(envFile, []byte("AUDIOGOV_CPU_WINDOW=64\n"), 0o600))
	t.Setenv("AUDIOGOV_CPU_WINDOW", "")
	os.Unsetenv("AUDIOGOV_CPU_WINDOW")

	cfg := Default()
	require.NoError(t, ApplyEnv(cfg, envFile))
	assert.Equal(t, 64, cfg.CPU.WindowSize)
}

func TestLoadValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("glitch:\n  underrun_tolerance: 0.5\n"), 0o600))

	_, err := Load(path, filepath.Join(t.TempDir(), "absent.env"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, 1.5, cfg.Glitch.UnderrunTolerance)
}
