package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, GetLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, GetLevel("DEBUG"))
	assert.Equal(t, logrus.ErrorLevel, GetLevel("error"))
	assert.Equal(t, logrus.TraceLevel, GetLevel("trace"))
	assert.Equal(t, logrus.WarnLevel, GetLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, GetLevel(""))
	assert.Equal(t, logrus.InfoLevel, GetLevel("loud"))
}

func TestSetup_LogFile(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)

	logFile := filepath.Join(t.TempDir(), "admin")
	closer := Setup(LoggerSetupParams{
		LogFileName: logFile,
		LogLevel:    "info",
	})
	require.NotNil(t, closer)

	logrus.Infoln("hello from the admin console")
	require.NoError(t, closer.Close())

	content, err := os.ReadFile(logFile + ".log")
	require.NoError(t, err)
	assert.Contains(t, string(content), "hello from the admin console")
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}

func TestSetup_Stdout(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)

	closer := Setup(LoggerSetupParams{LogLevel: "warn"})
	require.NotNil(t, closer)
	assert.NoError(t, closer.Close())
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
}

func TestSentryHook_Levels(t *testing.T) {
	hook := NewSentryHook([]logrus.Level{logrus.ErrorLevel})
	assert.Equal(t, []logrus.Level{logrus.ErrorLevel}, hook.Levels())
}
