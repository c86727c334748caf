// Package projectconfig provides the ProjectConfig struct and loader for
// .taskwatch.yaml configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up from the working directory.
const FileName = ".taskwatch.yaml"

// Default values for project configuration. These are the single source of
// truth; New() references them and no other code should duplicate them.
const (
	DefaultServerURL = "https://localhost:8000"
	DefaultTimeout   = 30

	DefaultSplittingMethod  = "vad"
	DefaultTranscribeMethod = "local"
	DefaultOutputCSVName    = "transcription.csv"

	DefaultTraceDir = ".taskwatch/traces"

	DefaultServePort     = 8000
	DefaultServeInterval = 500
)

// ServerConfig locates the executor.
type ServerConfig struct {
	URL                string `yaml:"url,omitempty"`
	StreamURL          string `yaml:"stream_url,omitempty"`
	InsecureSkipVerify *bool  `yaml:"insecure_skip_verify,omitempty"`
	// Timeout is in seconds and bounds creation and listing calls.
	Timeout int `yaml:"timeout,omitempty"`
}

// MonitorConfig tunes the status stream monitor.
type MonitorConfig struct {
	// CloseOnError closes the stream when the executor reports an error.
	// Unset leaves it to the renderer: the live view keeps the stream open,
	// plain output closes it.
	CloseOnError *bool `yaml:"close_on_error,omitempty"`
	// IdleTimeout is in seconds; 0 disables the watchdog.
	IdleTimeout int `yaml:"idle_timeout,omitempty"`
}

// DefaultsConfig holds default task parameters.
type DefaultsConfig struct {
	SplittingMethod  string `yaml:"splitting_method,omitempty"`
	TranscribeMethod string `yaml:"transcribe_method,omitempty"`
	OutputCSVName    string `yaml:"output_csv_name,omitempty"`
}

// TraceConfig controls per-task trace files.
type TraceConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Dir      string `yaml:"dir,omitempty"`
	Compress *bool  `yaml:"compress,omitempty"`
}

// ServeConfig holds executor simulator settings.
type ServeConfig struct {
	Port int `yaml:"port,omitempty"`
	// IntervalMS is the delay between simulated frames.
	IntervalMS int `yaml:"interval_ms,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .taskwatch.yaml.
type ProjectConfig struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	Monitor  MonitorConfig  `yaml:"monitor,omitempty"`
	Defaults DefaultsConfig `yaml:"defaults,omitempty"`
	Trace    TraceConfig    `yaml:"trace,omitempty"`
	Serve    ServeConfig    `yaml:"serve,omitempty"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Server: ServerConfig{
			URL:                DefaultServerURL,
			InsecureSkipVerify: boolPtr(false),
			Timeout:            DefaultTimeout,
		},
		Monitor: MonitorConfig{},
		Defaults: DefaultsConfig{
			SplittingMethod:  DefaultSplittingMethod,
			TranscribeMethod: DefaultTranscribeMethod,
			OutputCSVName:    DefaultOutputCSVName,
		},
		Trace: TraceConfig{
			Enabled:  boolPtr(false),
			Dir:      DefaultTraceDir,
			Compress: boolPtr(false),
		},
		Serve: ServeConfig{
			Port:       DefaultServePort,
			IntervalMS: DefaultServeInterval,
		},
	}
}

// Load finds .taskwatch.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil // no file found → return defaults
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}

	mergeConfig(cfg, &fileCfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment overrides. lookup is usually os.LookupEnv.
func (c *ProjectConfig) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("TASKWATCH_API_URL"); ok && v != "" {
		c.Server.URL = v
	}
	if v, ok := lookup("TASKWATCH_STREAM_URL"); ok && v != "" {
		c.Server.StreamURL = v
	}
}

// Validate checks values that cannot be caught by YAML decoding.
func (c *ProjectConfig) Validate() error {
	if _, err := url.Parse(c.Server.URL); err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if c.Server.Timeout < 0 {
		return errors.New("server.timeout must not be negative")
	}
	if c.Monitor.IdleTimeout < 0 {
		return errors.New("monitor.idle_timeout must not be negative")
	}
	if c.Serve.IntervalMS < 0 {
		return errors.New("serve.interval_ms must not be negative")
	}
	return nil
}

// StreamBaseURL returns the status stream address: server.stream_url when
// set, otherwise server.url (the stream dialer maps http to ws).
func (c *ProjectConfig) StreamBaseURL() string {
	if c.Server.StreamURL != "" {
		return c.Server.StreamURL
	}
	return c.Server.URL
}

func (c *ProjectConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Server.Timeout) * time.Second
}

func (c *ProjectConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Monitor.IdleTimeout) * time.Second
}

func (c *ProjectConfig) ServeInterval() time.Duration {
	return time.Duration(c.Serve.IntervalMS) * time.Millisecond
}

// findConfigFile walks up from dir looking for .taskwatch.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found. Propagates real I/O
// errors (e.g. permission denied) instead of silently swallowing them.
func findConfigFile(dir string) ([]byte, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Server
	if src.Server.URL != "" {
		dst.Server.URL = src.Server.URL
	}
	if src.Server.StreamURL != "" {
		dst.Server.StreamURL = src.Server.StreamURL
	}
	if src.Server.InsecureSkipVerify != nil {
		dst.Server.InsecureSkipVerify = src.Server.InsecureSkipVerify
	}
	if src.Server.Timeout != 0 {
		dst.Server.Timeout = src.Server.Timeout
	}

	// Monitor
	if src.Monitor.CloseOnError != nil {
		dst.Monitor.CloseOnError = src.Monitor.CloseOnError
	}
	if src.Monitor.IdleTimeout != 0 {
		dst.Monitor.IdleTimeout = src.Monitor.IdleTimeout
	}

	// Defaults
	if src.Defaults.SplittingMethod != "" {
		dst.Defaults.SplittingMethod = src.Defaults.SplittingMethod
	}
	if src.Defaults.TranscribeMethod != "" {
		dst.Defaults.TranscribeMethod = src.Defaults.TranscribeMethod
	}
	if src.Defaults.OutputCSVName != "" {
		dst.Defaults.OutputCSVName = src.Defaults.OutputCSVName
	}

	// Trace
	if src.Trace.Enabled != nil {
		dst.Trace.Enabled = src.Trace.Enabled
	}
	if src.Trace.Dir != "" {
		dst.Trace.Dir = src.Trace.Dir
	}
	if src.Trace.Compress != nil {
		dst.Trace.Compress = src.Trace.Compress
	}

	// Serve
	if src.Serve.Port != 0 {
		dst.Serve.Port = src.Serve.Port
	}
	if src.Serve.IntervalMS != 0 {
		dst.Serve.IntervalMS = src.Serve.IntervalMS
	}
}

func boolPtr(b bool) *bool {
	return &b
}
