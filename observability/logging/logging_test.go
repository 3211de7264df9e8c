package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := Setup(Options{Service: "giftd", Env: "test", Level: "debug", Output: &buf})
	defer closer.Close()

	logger.Debug("card created", "cardId", 7)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "card created", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "giftd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
	require.EqualValues(t, 7, line["cardId"])
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := Setup(Options{Service: "giftd", Level: "warn", Output: &buf})
	defer closer.Close()

	logger.Info("hidden")
	require.Zero(t, buf.Len())
	logger.Warn("shown")
	require.NotZero(t, buf.Len())
}

func TestSetupWritesRotatingFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "giftd.log")
	logger, closer := Setup(Options{Service: "giftd", File: path, MaxSizeMB: 1, Output: &buf})
	logger.Info("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "to file")
}

func TestFieldMasksSensitiveKeys(t *testing.T) {
	require.Equal(t, RedactedValue, Field("Authorization", "Bearer abc").Value.String())
	require.Equal(t, RedactedValue, Field("faucet_secret", "x").Value.String())
	require.Equal(t, "", Field("passphrase", "").Value.String())
	require.Equal(t, "USDC", Field("asset", "USDC").Value.String())
	require.Contains(t, SensitiveKeys(), "jwt")
}
