package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json format adds service and env", func(t *testing.T) {
		// Arrange
		var buf bytes.Buffer
		logger, err := New(Config{ServiceName: "vnpay", Env: "docker", Output: &buf})
		require.NoError(t, err)

		// Act
		logger.Info("ipn received")
		Sync(logger)

		// Assert
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		require.Equal(t, "vnpay", entry["service"])
		require.Equal(t, "docker", entry["env"])
		require.Equal(t, "ipn received", entry["msg"])
	})

	t.Run("debug is filtered at info level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{ServiceName: "vnpay", Env: "docker", Level: "info", Output: &buf})
		require.NoError(t, err)

		logger.Debug("hidden")

		require.Zero(t, buf.Len())
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := New(Config{Level: "verbose"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := New(Config{Format: "xml"})
		require.Error(t, err)
	})
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{name: "empty", value: "", want: ""},
		{name: "short", value: "abc", want: "***"},
		{name: "long", value: "SECRETKEY123", want: "SE***23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, MaskSecret(tt.value))
		})
	}
}
