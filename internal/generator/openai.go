package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spboyer/codeloop/internal/models"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4"

	defaultRequestTimeout = 2 * time.Minute
)

// OpenAIOptions are the engine-specific settings for the openai backend.
type OpenAIOptions struct {
	Temperature  *float64 `mapstructure:"temperature"`
	Organization string   `mapstructure:"organization"`
	MaxTokens    int      `mapstructure:"max_tokens"`
}

// OpenAIConfig configures an OpenAIGenerator.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
	Options      OpenAIOptions

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// OpenAIGenerator talks to any OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	apiKey  string
	baseURL string
	model   string
	system  string
	opts    OpenAIOptions
	client  *http.Client
}

// NewOpenAIGenerator creates a generator. The API key is taken as given; it is
// the caller's job to read it from the environment.
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	g := &OpenAIGenerator{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		system:  cfg.SystemPrompt,
		opts:    cfg.Options,
		client:  cfg.HTTPClient,
	}
	if g.baseURL == "" {
		g.baseURL = DefaultOpenAIBaseURL
	}
	if g.model == "" {
		g.model = DefaultOpenAIModel
	}
	if g.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		g.client = &http.Client{Timeout: timeout}
	}
	return g
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Next sends the transcript as a chat completion request and returns the
// first choice.
func (g *OpenAIGenerator) Next(ctx context.Context, transcript []models.Message) (models.Message, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    g.chatMessages(transcript),
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return models.Message{}, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	if g.opts.Organization != "" {
		req.Header.Set("OpenAI-Organization", g.opts.Organization)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Message{}, ctxErr
		}
		return models.Message{}, g.unavailable(true, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Message{}, g.unavailable(true, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return models.Message{}, g.unavailable(retryableStatus(resp.StatusCode), statusError(resp.StatusCode, data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return models.Message{}, g.unavailable(false, fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return models.Message{}, g.unavailable(false, errors.New("response has no choices"))
	}

	slog.Debug("Chat completion received",
		"model", g.model,
		"finishReason", parsed.Choices[0].FinishReason,
		"promptTokens", parsed.Usage.PromptTokens,
		"completionTokens", parsed.Usage.CompletionTokens)

	return NewReply(parsed.Choices[0].Message.Content), nil
}

func (g *OpenAIGenerator) chatMessages(transcript []models.Message) []chatMessage {
	msgs := make([]chatMessage, 0, len(transcript)+1)
	if g.system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: g.system})
	}

	for _, m := range transcript {
		switch m.Role {
		case models.RoleGenerator:
			msgs = append(msgs, chatMessage{Role: "assistant", Content: m.Content})
		case models.RoleUser, models.RoleExecutor:
			// execution output goes back to the model as the user's turn
			msgs = append(msgs, chatMessage{Role: "user", Content: m.Content})
		}
	}
	return msgs
}

func (g *OpenAIGenerator) unavailable(temporary bool, err error) error {
	return &UnavailableError{Backend: "openai", Temporary: temporary, Err: err}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func statusError(code int, body []byte) error {
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("status %d: %s", code, apiErr.Error.Message)
	}
	return fmt.Errorf("status %d: %s", code, strings.TrimSpace(string(body)))
}
