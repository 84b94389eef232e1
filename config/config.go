// Package config the host configuration, read once from config.yaml at startup. Values are never reactive.
package config

import (
	"os"
	"strings"
	"time"

	log "github.com/golang/glog"
	"github.com/syntax-framework/stx/cmn"
	"gopkg.in/yaml.v2"
)

var errorConfigFile = cmn.ErrOf(
	cmn.ErrConfig,
	"config.file",
	"Error processing configuration file.", "File: %s", "Caused by: %v",
)

var errorConfigValue = cmn.ErrOf(
	cmn.ErrConfig,
	"config.value",
	"Invalid configuration value.", "Key: %s", "Value: %v", "Expected: %s",
)

const (
	TransportSSE       = "sse"
	TransportWebsocket = "websocket"
	CodecJSON          = "json"
	CodecMsgpack       = "msgpack"
)

type Config struct {
	Dev          bool       `yaml:"dev"`
	LiveServer   string     `yaml:"live-server"`   // Base URL of the realtime server. Defaults to `http://localhost:8080`.
	LiveEndpoint string     `yaml:"live-endpoint"` // Endpoint of the push and server-push stream. Defaults to `/live`.
	LiveReload   LiveReload `yaml:"live-reload"`
	Push         Push       `yaml:"push"`
	Transport    string     `yaml:"transport"` // `sse` (default) or `websocket`
}

type LiveReload struct {
	Disabled  bool     `yaml:"disabled"`   // Allows you to disable LiveReload entirely
	Interval  int      `yaml:"interval"`   // Millis to wait on client to refresh when receive update. Defaults to `100`.
	Debounce  int      `yaml:"debounce"`   // Millis to wait before sending live reload events. Defaults to `0`.
	Pattern   []string `yaml:"pattern"`    // Patterns of the files that trigger the live reloading
	Endpoint  string   `yaml:"endpoint"`   // Endpoint of the live reload SSE event. Defaults to `/dev.livereload`.
	ReloadCss bool     `yaml:"reload-css"` // If true, CSS changes will trigger a full page reload. Defaults to false.
}

type Push struct {
	Timeout    int    `yaml:"timeout"`     // Millis, 0 waits for the delivery result. Defaults to `0`.
	MaxRetries int    `yaml:"max-retries"` // Additional attempts after a transport failure. Defaults to `3`.
	Backoff    int    `yaml:"backoff"`     // Millis between attempts. Defaults to `0`.
	Codec      string `yaml:"codec"`       // `json` (default) or `msgpack`
}

var defaultLiveReloadPattern = []string{
	`.*\.(html|htm|js|css|png|jpeg|jpg|gif)$`,
}

// Default the configuration used when there is no config.yaml
func Default() *Config {
	return &Config{
		LiveServer:   "http://localhost:8080",
		LiveEndpoint: "/live",
		LiveReload: LiveReload{
			Interval: 100,
			Endpoint: "/dev.livereload",
			Pattern:  defaultLiveReloadPattern,
		},
		Push: Push{
			MaxRetries: 3,
			Codec:      CodecJSON,
		},
		Transport: TransportSSE,
	}
}

// Load reads the configuration file. A missing file is not an error, the defaults are used.
func Load(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warningf("Configuration file not found, using defaults. file: %s", filepath)
			return Default(), nil
		}
		return nil, errorConfigFile(filepath, err)
	}
	config, err := Parse(data)
	if err != nil {
		return nil, errorConfigFile(filepath, err)
	}
	return config, nil
}

// Parse the yaml content over the defaults
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	config.LiveServer = strings.TrimSuffix(strings.TrimSpace(config.LiveServer), "/")
	config.LiveEndpoint = NormalizeEndpoint(config.LiveEndpoint, "/live")
	config.LiveReload.Endpoint = NormalizeEndpoint(config.LiveReload.Endpoint, "/dev.livereload")
	config.Transport = strings.ToLower(strings.TrimSpace(config.Transport))
	config.Push.Codec = strings.ToLower(strings.TrimSpace(config.Push.Codec))

	if config.Transport == "" {
		config.Transport = TransportSSE
	}
	if config.Push.Codec == "" {
		config.Push.Codec = CodecJSON
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the enumerated and numeric values
func (c *Config) Validate() error {
	if c.Transport != TransportSSE && c.Transport != TransportWebsocket {
		return errorConfigValue("transport", c.Transport, "sse|websocket")
	}
	if c.Push.Codec != CodecJSON && c.Push.Codec != CodecMsgpack {
		return errorConfigValue("push.codec", c.Push.Codec, "json|msgpack")
	}
	if c.Push.MaxRetries < 0 {
		return errorConfigValue("push.max-retries", c.Push.MaxRetries, ">= 0")
	}
	if c.Push.Timeout < 0 {
		return errorConfigValue("push.timeout", c.Push.Timeout, ">= 0")
	}
	if c.Push.Backoff < 0 {
		return errorConfigValue("push.backoff", c.Push.Backoff, ">= 0")
	}
	if c.LiveReload.Interval < 0 {
		return errorConfigValue("live-reload.interval", c.LiveReload.Interval, ">= 0")
	}
	return nil
}

// NormalizeEndpoint trims spaces, ensures the leading `/` and removes the trailing one
func NormalizeEndpoint(endpoint string, fallback string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = fallback
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	endpoint = strings.TrimSuffix(endpoint, "/")
	if endpoint == "" {
		return fallback
	}
	return endpoint
}

// LiveURL the absolute URL of the realtime endpoint
func (c *Config) LiveURL() string {
	return c.LiveServer + c.LiveEndpoint
}

func (c *Config) PushTimeout() time.Duration {
	return time.Duration(c.Push.Timeout) * time.Millisecond
}

func (c *Config) PushBackoff() time.Duration {
	return time.Duration(c.Push.Backoff) * time.Millisecond
}

func (c *Config) ReloadInterval() time.Duration {
	return time.Duration(c.LiveReload.Interval) * time.Millisecond
}
