package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustnet/trustnet-cache/internal/config"
)

func TestNewLoggerJSONWithDefaultFields(t *testing.T) {
	logger, err := NewLogger(&config.LoggingConfig{
		Level:  "debug",
		Format: "json",
		Output: []string{"stdout"},
		Fields: map[string]string{"service": "trustnet-cache"},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.WithComponent("store").Info("connected")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "connected", line["message"])
	assert.Equal(t, "store", line["component"])
	assert.Equal(t, "trustnet-cache", line["service"])
	assert.Contains(t, line, "timestamp")
}

func TestWithRequestID(t *testing.T) {
	logger, hook := test.NewNullLogger()

	WithRequestID(logger, "req-7").Warn("slow request")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "req-7", hook.LastEntry().Data[RequestIDField])
	assert.Equal(t, "slow request", hook.LastEntry().Message)
}

func TestNewLoggerRejectsBadConfig(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{Level: "chatty", Format: "json"})
	assert.Error(t, err)

	_, err = NewLogger(&config.LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)

	_, err = NewLogger(&config.LoggingConfig{Level: "info", Format: "text", Output: []string{"syslog"}})
	assert.Error(t, err)
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cache.log")
	logger, err := NewLogger(&config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: []string{"file"},
		File:   path,
	})
	require.NoError(t, err)
	logger.Info("written")
	assert.FileExists(t, path)
}
