package generator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"golang.org/x/time/rate"
)

const (
	EngineOpenAI  = "openai"
	EngineCopilot = "copilot"
	EngineMock    = "mock"
)

// Engines lists the supported backend names.
var Engines = []string{EngineOpenAI, EngineCopilot, EngineMock}

// ErrMissingCredential is returned when the configured credential variable
// is not set. It is detected before a session starts.
var ErrMissingCredential = errors.New("generator credential is not set")

// Config selects and configures a backend.
type Config struct {
	Engine  string
	Model   string
	BaseURL string
	Timeout time.Duration

	// APIKeyEnv names the environment variable holding the credential.
	APIKeyEnv string
	// APIKey is filled in once by ResolveCredential.
	APIKey string

	Retry             RetryPolicy
	RequestsPerMinute int
	// Limiter, when set, is shared with other generators and takes
	// precedence over RequestsPerMinute.
	Limiter *rate.Limiter

	Prompt PromptData

	// Options holds engine-specific settings, decoded into OpenAIOptions,
	// CopilotOptions or ScriptedOptions.
	Options map[string]any
}

func requiresCredential(engine string) bool {
	return engine == EngineOpenAI
}

// ResolveCredential reads cfg.APIKeyEnv through lookupEnv and stores the
// value in cfg.APIKey. Engines that need no credential pass when no variable
// is configured.
func ResolveCredential(cfg *Config, lookupEnv func(string) (string, bool)) error {
	if cfg.APIKeyEnv == "" {
		if requiresCredential(cfg.Engine) {
			return fmt.Errorf("%w: the %s engine needs api_key_env to be configured", ErrMissingCredential, cfg.Engine)
		}
		return nil
	}

	v, ok := lookupEnv(cfg.APIKeyEnv)
	if !ok || strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: environment variable %s is empty or missing", ErrMissingCredential, cfg.APIKeyEnv)
	}

	cfg.APIKey = v
	return nil
}

// New builds the configured backend wrapped with rate limiting and retries.
// The returned close function releases backend resources and is never nil.
func New(cfg Config) (Generator, func() error, error) {
	noop := func() error { return nil }

	if requiresCredential(cfg.Engine) && cfg.APIKey == "" {
		return nil, noop, fmt.Errorf("%w: %s engine", ErrMissingCredential, cfg.Engine)
	}

	system, err := SystemPrompt(cfg.Prompt)
	if err != nil {
		return nil, noop, err
	}

	var (
		gen       Generator
		closeFunc = noop
	)

	switch cfg.Engine {
	case EngineOpenAI:
		var opts OpenAIOptions
		if err := decodeOptions(cfg.Options, &opts); err != nil {
			return nil, noop, err
		}
		gen = NewOpenAIGenerator(OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			SystemPrompt: system,
			Timeout:      cfg.Timeout,
			Options:      opts,
		})

	case EngineCopilot:
		var opts CopilotOptions
		if err := decodeOptions(cfg.Options, &opts); err != nil {
			return nil, noop, err
		}
		cg := NewCopilotGeneratorBuilder(cfg.Model, &CopilotGeneratorBuilderOptions{Options: opts}).
			WithSystemPrompt(system).
			WithTimeout(cfg.Timeout).
			Build()
		gen, closeFunc = cg, cg.Close

	case EngineMock:
		var opts ScriptedOptions
		if err := decodeOptions(cfg.Options, &opts); err != nil {
			return nil, noop, err
		}
		replies := opts.Replies
		if opts.RepliesFile != "" {
			fromFile, err := LoadScriptedReplies(opts.RepliesFile)
			if err != nil {
				return nil, noop, err
			}
			replies = append(replies, fromFile...)
		}
		gen = NewScriptedGenerator(replies...)

	default:
		return nil, noop, fmt.Errorf("unknown engine %q (expected one of %s)", cfg.Engine, strings.Join(Engines, ", "))
	}

	if cfg.Limiter != nil {
		gen = WithLimiter(gen, cfg.Limiter)
	} else {
		gen = WithRateLimit(gen, cfg.RequestsPerMinute)
	}

	return WithRetry(gen, cfg.Retry), closeFunc, nil
}

func decodeOptions(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("invalid generator options: %w", err)
	}
	return nil
}
