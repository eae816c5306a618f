package logging

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_DevelopmentModeDefaultsToInfo(t *testing.T) {
	os.Unsetenv("DEBUG")
	log, err := New("development")
	require.NoError(t, err)
	require.NotNil(t, log)
	require.True(t, log.Core().Enabled(zapcore.InfoLevel))
	require.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_ProductionModeSuppressesDebug(t *testing.T) {
	os.Unsetenv("DEBUG")
	log, err := New("production")
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_DebugEnvForcesDebugLevelEvenInProduction(t *testing.T) {
	os.Setenv("DEBUG", "1")
	defer os.Unsetenv("DEBUG")

	log, err := New("production")
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNop_DiscardsEverything(t *testing.T) {
	log := Nop()
	require.NotNil(t, log)
	require.False(t, log.Core().Enabled(zapcore.FatalLevel))
}
