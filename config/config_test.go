package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntax-framework/stx/cmn"
)

func TestParse_Defaults(t *testing.T) {
	config, err := Parse([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, "/live", config.LiveEndpoint)
	assert.Equal(t, "http://localhost:8080/live", config.LiveURL())
	assert.Equal(t, 100*time.Millisecond, config.ReloadInterval())
	assert.Equal(t, "/dev.livereload", config.LiveReload.Endpoint)
	assert.Equal(t, 3, config.Push.MaxRetries)
	assert.Equal(t, time.Duration(0), config.PushTimeout())
	assert.Equal(t, CodecJSON, config.Push.Codec)
	assert.Equal(t, TransportSSE, config.Transport)
}

func TestParse_Values(t *testing.T) {
	config, err := Parse([]byte(`
live-server: "http://example.com/"
live-endpoint: " realtime/ "
live-reload:
  interval: 250
  reload-css: true
push:
  timeout: 1500
  max-retries: 0
  backoff: 20
  codec: MsgPack
transport: websocket
`))
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/realtime", config.LiveURL())
	assert.True(t, config.LiveReload.ReloadCss)
	assert.Equal(t, 250*time.Millisecond, config.ReloadInterval())
	assert.Equal(t, 1500*time.Millisecond, config.PushTimeout())
	assert.Equal(t, 20*time.Millisecond, config.PushBackoff())
	assert.Equal(t, 0, config.Push.MaxRetries, "explicit zero is kept")
	assert.Equal(t, CodecMsgpack, config.Push.Codec)
	assert.Equal(t, TransportWebsocket, config.Transport)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"transport", "transport: carrier-pigeon"},
		{"codec", "push:\n  codec: xml"},
		{"retries", "push:\n  max-retries: -1"},
		{"timeout", "push:\n  timeout: -5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.source))
			require.Error(t, err)
			assert.True(t, errors.Is(err, cmn.ErrConfig))
		})
	}

	_, err := Parse([]byte("push: ["))
	assert.Error(t, err)
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "/live", NormalizeEndpoint("", "/live"))
	assert.Equal(t, "/live", NormalizeEndpoint("  ", "/live"))
	assert.Equal(t, "/live", NormalizeEndpoint("/", "/live"))
	assert.Equal(t, "/a/b", NormalizeEndpoint("a/b/", "/live"))
	assert.Equal(t, "/a", NormalizeEndpoint("/a", "/live"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	config, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/live", config.LiveEndpoint)

	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("live-endpoint: push"), 0o600))
	config, err = Load(file)
	require.NoError(t, err)
	assert.Equal(t, "/push", config.LiveEndpoint)

	require.NoError(t, os.WriteFile(file, []byte("transport: x"), 0o600))
	_, err = Load(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[config.file]")
	assert.True(t, errors.Is(err, cmn.ErrConfig))
}
