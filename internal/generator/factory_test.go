package generator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestResolveCredential(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		env     map[string]string
		wantKey string
		wantErr bool
	}{
		{
			name:    "openai reads variable",
			cfg:     Config{Engine: EngineOpenAI, APIKeyEnv: "OPENAI_API_KEY"},
			env:     map[string]string{"OPENAI_API_KEY": "sk-123"},
			wantKey: "sk-123",
		},
		{
			name:    "openai missing variable",
			cfg:     Config{Engine: EngineOpenAI, APIKeyEnv: "OPENAI_API_KEY"},
			wantErr: true,
		},
		{
			name:    "openai blank variable",
			cfg:     Config{Engine: EngineOpenAI, APIKeyEnv: "OPENAI_API_KEY"},
			env:     map[string]string{"OPENAI_API_KEY": "  "},
			wantErr: true,
		},
		{
			name:    "openai without variable name",
			cfg:     Config{Engine: EngineOpenAI},
			wantErr: true,
		},
		{
			name: "mock needs nothing",
			cfg:  Config{Engine: EngineMock},
		},
		{
			name:    "copilot checks configured variable",
			cfg:     Config{Engine: EngineCopilot, APIKeyEnv: "GH_TOKEN"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := ResolveCredential(&cfg, envFrom(tt.env))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMissingCredential)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, cfg.APIKey)
		})
	}
}

func TestResolveCredential_ErrorNamesVariable(t *testing.T) {
	cfg := Config{Engine: EngineOpenAI, APIKeyEnv: "MY_KEY"}
	err := ResolveCredential(&cfg, envFrom(nil))
	require.ErrorContains(t, err, "MY_KEY")
}

func TestNew_Mock(t *testing.T) {
	gen, closeFn, err := New(Config{
		Engine:  EngineMock,
		Options: map[string]any{"replies": []any{"hello", "TERMINATE"}},
	})
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	defer func() { require.NoError(t, closeFn()) }()

	msg, err := gen.Next(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
}

func TestNew_MockRepliesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- from-file\n"), 0o644))

	gen, _, err := New(Config{
		Engine:  EngineMock,
		Options: map[string]any{"replies_file": path},
	})
	require.NoError(t, err)

	msg, err := gen.Next(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "from-file", msg.Content)
}

func TestNew_OpenAIRequiresKey(t *testing.T) {
	_, closeFn, err := New(Config{Engine: EngineOpenAI})
	require.ErrorIs(t, err, ErrMissingCredential)
	require.NotNil(t, closeFn)
}

func TestNew_OpenAI(t *testing.T) {
	gen, _, err := New(Config{
		Engine:  EngineOpenAI,
		APIKey:  "sk-test",
		Options: map[string]any{"temperature": "0.5", "organization": "org"},
	})
	require.NoError(t, err)
	assert.NotNil(t, gen)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "unknown engine", cfg: Config{Engine: "llama"}, want: `unknown engine "llama"`},
		{name: "unknown option", cfg: Config{Engine: EngineMock, Options: map[string]any{"replys": []any{"x"}}}, want: "invalid generator options"},
		{name: "bad option type", cfg: Config{Engine: EngineOpenAI, APIKey: "k", Options: map[string]any{"max_tokens": "lots"}}, want: "invalid generator options"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New(tt.cfg)
			require.ErrorContains(t, err, tt.want)
		})
	}
}
