package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_New(t *testing.T) {
	f := NewFactory()

	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		for _, format := range []Format{FormatConsole, FormatStructured} {
			logger, err := f.New(level, format)
			require.NoError(t, err, "%s/%s", level, format)
			assert.NotNil(t, logger)
		}
	}
}

func TestFactory_RejectsUnknown(t *testing.T) {
	f := NewFactory()

	_, err := f.New("verbose", FormatConsole)
	assert.ErrorContains(t, err, "unsupported log level")

	_, err = f.New(LevelInfo, "xml")
	assert.ErrorContains(t, err, "unsupported log format")
}

func TestFactory_StructuredOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	f := &Factory{OutputPaths: []string{path}}

	logger, err := f.New(LevelWarn, FormatStructured)
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"kept"`)
	assert.NotContains(t, string(data), "dropped")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
