package logger_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/quartz/internal/logger"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	log, err := logger.New(nil)
	require.NoError(t, err)
	require.NotNil(t, log)

	log, err = logger.New(&logger.Config{})
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNew_InvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := logger.New(&logger.Config{Level: "loud"})
	require.ErrorIs(t, err, logger.ErrInvalidLevel)
}

func TestNew_InvalidEncoding(t *testing.T) {
	t.Parallel()

	_, err := logger.New(&logger.Config{Encoding: "xml"})
	require.ErrorIs(t, err, logger.ErrInvalidEncoding)
}

func TestNew_LevelCaseInsensitive(t *testing.T) {
	t.Parallel()

	log, err := logger.New(&logger.Config{Level: "DEBUG"})
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNew_Encodings(t *testing.T) {
	t.Parallel()

	for _, enc := range []string{"console", "json"} {
		log, err := logger.New(&logger.Config{Encoding: enc})
		require.NoError(t, err, enc)
		require.NotNil(t, log, enc)
	}
}

func TestLogger_WritesStructuredOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")
	log, err := logger.New(&logger.Config{
		Level:       "debug",
		Encoding:    "json",
		OutputPaths: []string{path},
	})
	require.NoError(t, err)

	log.WithComponent("store").
		WithError(errors.New("row gone")).
		WithDuration(250 * time.Millisecond).
		Info("trigger acquired", "count", 3)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "trigger acquired")
	assert.Contains(t, out, `"component":"store"`)
	assert.Contains(t, out, `"error":"row gone"`)
	assert.Contains(t, out, `"duration":"250ms"`)
	assert.Contains(t, out, `"count":3`)
}

func TestLogger_LevelFiltering(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")
	log, err := logger.New(&logger.Config{
		Level:       "warn",
		Encoding:    "json",
		OutputPaths: []string{path},
	})
	require.NoError(t, err)

	log.Debug("too quiet")
	log.Info("still too quiet")
	log.Warn("loud enough")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.NotContains(t, out, "too quiet")
	assert.Contains(t, out, "loud enough")
}

func TestLogger_DropsMalformedPairs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")
	log, err := logger.New(&logger.Config{
		Encoding:    "json",
		OutputPaths: []string{path},
	})
	require.NoError(t, err)

	// Trailing key without a value is dropped, the message still lands.
	log.Info("lonely key", "orphan")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "lonely key")
	assert.NotContains(t, string(data), "orphan")
}

func TestNoOpLogger(t *testing.T) {
	t.Parallel()

	log := logger.NewNoOp()
	log.Debug("msg")
	log.Info("msg", "k", "v")
	log.Warn("msg")
	log.Error("msg")

	assert.Same(t, log, log.With("k", "v"))
	assert.Same(t, log, log.WithError(errors.New("boom")))
	assert.Same(t, log, log.WithComponent("x"))
	assert.Same(t, log, log.WithDuration(time.Second))
}
