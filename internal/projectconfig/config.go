// Package projectconfig provides the ProjectConfig struct and loader for
// .codeloop.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spboyer/codeloop/internal/hooks"
	"github.com/spboyer/codeloop/internal/utils"
	"github.com/spboyer/codeloop/internal/validation"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".codeloop.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultEngine           = "openai"
	DefaultModel            = "gpt-4"
	DefaultAPIKeyEnv        = "OPENAI_API_KEY"
	DefaultGeneratorTimeout = 120
	DefaultMaxRetries       = 2

	DefaultWorkDir           = "coding"
	DefaultMaxTurns          = 10
	DefaultTerminationMarker = "TERMINATE"
	DefaultExecTimeout       = 60
	DefaultApprove           = "auto"
	DefaultLogDir            = ".codeloop/sessions"
	DefaultTranscriptDir     = ".codeloop/transcripts"

	DefaultMaxOutputBytes = 16 * 1024

	DefaultWorkers = 4

	DefaultServiceName = "codeloop"
)

// DefaultEnv is set for every executed block. Plotting code must not try to
// open a window.
var DefaultEnv = map[string]string{"MPLBACKEND": "Agg"}

// GeneratorConfig selects the backend that writes code.
type GeneratorConfig struct {
	Engine            string         `yaml:"engine,omitempty"`
	Model             string         `yaml:"model,omitempty"`
	APIKeyEnv         string         `yaml:"api_key_env,omitempty"`
	BaseURL           string         `yaml:"base_url,omitempty"`
	Timeout           int            `yaml:"timeout,omitempty"`
	MaxRetries        *int           `yaml:"max_retries,omitempty"`
	RequestsPerMinute int            `yaml:"requests_per_minute,omitempty"`
	Options           map[string]any `yaml:"options,omitempty"`
}

// SessionConfig holds loop limits and output locations.
type SessionConfig struct {
	WorkDir             string `yaml:"work_dir,omitempty"`
	MaxTurns            int    `yaml:"max_turns,omitempty"`
	TerminationMarker   string `yaml:"termination_marker,omitempty"`
	ExecTimeout         int    `yaml:"exec_timeout,omitempty"`
	Approve             string `yaml:"approve,omitempty"`
	LogDir              string `yaml:"log_dir,omitempty"`
	SessionLog          *bool  `yaml:"session_log,omitempty"`
	TranscriptDir       string `yaml:"transcript_dir,omitempty"`
	CompressTranscripts *bool  `yaml:"compress_transcripts,omitempty"`
}

// LanguageConfig registers or overrides an interpreter.
type LanguageConfig struct {
	Extension string `yaml:"extension"`
	Command   string `yaml:"command"`
}

// ExecutorConfig holds settings for running code blocks.
type ExecutorConfig struct {
	MaxOutputBytes int                       `yaml:"max_output_bytes,omitempty"`
	Env            map[string]string         `yaml:"env,omitempty"`
	Languages      map[string]LanguageConfig `yaml:"languages,omitempty"`
}

// BatchConfig holds "codeloop batch" settings.
type BatchConfig struct {
	Workers int `yaml:"workers,omitempty"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     *bool             `yaml:"enabled,omitempty"`
	Endpoint    string            `yaml:"endpoint,omitempty"`
	Insecure    *bool             `yaml:"insecure,omitempty"`
	ServiceName string            `yaml:"service_name,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
}

// UploadConfig names the Azure Storage container transcripts are copied to.
// Upload is off while AccountURL is empty.
type UploadConfig struct {
	AccountURL string `yaml:"account_url,omitempty"`
	Container  string `yaml:"container,omitempty"`
	Prefix     string `yaml:"prefix,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .codeloop.yaml.
type ProjectConfig struct {
	Generator GeneratorConfig `yaml:"generator,omitempty"`
	Session   SessionConfig   `yaml:"session,omitempty"`
	Executor  ExecutorConfig  `yaml:"executor,omitempty"`
	Batch     BatchConfig     `yaml:"batch,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
	Upload    UploadConfig    `yaml:"upload,omitempty"`
	Hooks     hooks.Config    `yaml:"hooks,omitempty"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `yaml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	env := make(map[string]string, len(DefaultEnv))
	for k, v := range DefaultEnv {
		env[k] = v
	}

	return &ProjectConfig{
		Generator: GeneratorConfig{
			Engine:     DefaultEngine,
			Model:      DefaultModel,
			APIKeyEnv:  DefaultAPIKeyEnv,
			Timeout:    DefaultGeneratorTimeout,
			MaxRetries: utils.Ptr(DefaultMaxRetries),
		},
		Session: SessionConfig{
			WorkDir:             DefaultWorkDir,
			MaxTurns:            DefaultMaxTurns,
			TerminationMarker:   DefaultTerminationMarker,
			ExecTimeout:         DefaultExecTimeout,
			Approve:             DefaultApprove,
			LogDir:              DefaultLogDir,
			SessionLog:          utils.Ptr(true),
			TranscriptDir:       DefaultTranscriptDir,
			CompressTranscripts: utils.Ptr(false),
		},
		Executor: ExecutorConfig{
			MaxOutputBytes: DefaultMaxOutputBytes,
			Env:            env,
		},
		Batch: BatchConfig{
			Workers: DefaultWorkers,
		},
		Telemetry: TelemetryConfig{
			Enabled:     utils.Ptr(false),
			Insecure:    utils.Ptr(false),
			ServiceName: DefaultServiceName,
		},
	}
}

// Load finds .codeloop.yaml by walking up from startDir (max 10 levels),
// validates it against the embedded schema, and fills in missing fields with
// defaults. If no config file is found, returns defaults with a nil error.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	path, data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	if errs := validation.ValidateConfigBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("invalid %s:\n  %s", path, strings.Join(errs, "\n  "))
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	mergeConfig(cfg, &fileCfg)
	cfg.Path = path
	return cfg, nil
}

// findConfigFile walks up from dir looking for FileName (max 10 levels).
// Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) (string, []byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return p, data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return "", nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst. Executor env and
// languages are merged key by key.
func mergeConfig(dst, src *ProjectConfig) {
	// Generator
	if src.Generator.Engine != "" {
		dst.Generator.Engine = src.Generator.Engine
		if src.Generator.Engine != DefaultEngine && src.Generator.APIKeyEnv == "" {
			// the default variable only belongs to the default engine
			dst.Generator.APIKeyEnv = ""
		}
		if src.Generator.Engine != DefaultEngine && src.Generator.Model == "" {
			dst.Generator.Model = ""
		}
	}
	if src.Generator.Model != "" {
		dst.Generator.Model = src.Generator.Model
	}
	if src.Generator.APIKeyEnv != "" {
		dst.Generator.APIKeyEnv = src.Generator.APIKeyEnv
	}
	if src.Generator.BaseURL != "" {
		dst.Generator.BaseURL = src.Generator.BaseURL
	}
	if src.Generator.Timeout != 0 {
		dst.Generator.Timeout = src.Generator.Timeout
	}
	if src.Generator.MaxRetries != nil {
		dst.Generator.MaxRetries = src.Generator.MaxRetries
	}
	if src.Generator.RequestsPerMinute != 0 {
		dst.Generator.RequestsPerMinute = src.Generator.RequestsPerMinute
	}
	if src.Generator.Options != nil {
		dst.Generator.Options = src.Generator.Options
	}

	// Session
	if src.Session.WorkDir != "" {
		dst.Session.WorkDir = src.Session.WorkDir
	}
	if src.Session.MaxTurns != 0 {
		dst.Session.MaxTurns = src.Session.MaxTurns
	}
	if src.Session.TerminationMarker != "" {
		dst.Session.TerminationMarker = src.Session.TerminationMarker
	}
	if src.Session.ExecTimeout != 0 {
		dst.Session.ExecTimeout = src.Session.ExecTimeout
	}
	if src.Session.Approve != "" {
		dst.Session.Approve = src.Session.Approve
	}
	if src.Session.LogDir != "" {
		dst.Session.LogDir = src.Session.LogDir
	}
	if src.Session.SessionLog != nil {
		dst.Session.SessionLog = src.Session.SessionLog
	}
	if src.Session.TranscriptDir != "" {
		dst.Session.TranscriptDir = src.Session.TranscriptDir
	}
	if src.Session.CompressTranscripts != nil {
		dst.Session.CompressTranscripts = src.Session.CompressTranscripts
	}

	// Executor
	if src.Executor.MaxOutputBytes != 0 {
		dst.Executor.MaxOutputBytes = src.Executor.MaxOutputBytes
	}
	for k, v := range src.Executor.Env {
		if dst.Executor.Env == nil {
			dst.Executor.Env = make(map[string]string)
		}
		dst.Executor.Env[k] = v
	}
	for k, v := range src.Executor.Languages {
		if dst.Executor.Languages == nil {
			dst.Executor.Languages = make(map[string]LanguageConfig)
		}
		dst.Executor.Languages[k] = v
	}

	// Batch
	if src.Batch.Workers != 0 {
		dst.Batch.Workers = src.Batch.Workers
	}

	// Telemetry
	if src.Telemetry.Enabled != nil {
		dst.Telemetry.Enabled = src.Telemetry.Enabled
	}
	if src.Telemetry.Endpoint != "" {
		dst.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
	if src.Telemetry.Insecure != nil {
		dst.Telemetry.Insecure = src.Telemetry.Insecure
	}
	if src.Telemetry.ServiceName != "" {
		dst.Telemetry.ServiceName = src.Telemetry.ServiceName
	}
	if src.Telemetry.Headers != nil {
		dst.Telemetry.Headers = src.Telemetry.Headers
	}

	// Upload
	if src.Upload.AccountURL != "" {
		dst.Upload.AccountURL = src.Upload.AccountURL
	}
	if src.Upload.Container != "" {
		dst.Upload.Container = src.Upload.Container
	}
	if src.Upload.Prefix != "" {
		dst.Upload.Prefix = src.Upload.Prefix
	}

	// Hooks
	if src.Hooks.BeforeSession != nil {
		dst.Hooks.BeforeSession = src.Hooks.BeforeSession
	}
	if src.Hooks.AfterSession != nil {
		dst.Hooks.AfterSession = src.Hooks.AfterSession
	}
}

// Marshal renders cfg as YAML, the format "codeloop init" writes.
func Marshal(cfg *ProjectConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}
