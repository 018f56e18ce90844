package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	copilot "github.com/github/copilot-sdk/go"
	"github.com/spboyer/codeloop/internal/models"
	"github.com/spboyer/codeloop/internal/utils"
)

// CopilotOptions are the engine-specific settings for the copilot backend.
type CopilotOptions struct {
	LogLevel string `mapstructure:"log_level"`
}

// CopilotGenerator asks GitHub Copilot for each reply. Every call runs in a
// fresh Copilot session and tool use is refused, so code only ever runs
// through the session's executor.
type CopilotGenerator struct {
	model   string
	system  string
	timeout time.Duration

	client copilotClient

	startOnce sync.Once
	startErr  error
}

// CopilotGeneratorBuilder builds a CopilotGenerator with options
type CopilotGeneratorBuilder struct {
	gen *CopilotGenerator
}

type CopilotGeneratorBuilderOptions struct {
	NewCopilotClient func(clientOptions *copilot.ClientOptions) copilotClient
	Options          CopilotOptions
}

// NewCopilotGeneratorBuilder creates a builder for CopilotGenerator
//   - model - can be blank, which means the copilot CLI picks its own default.
func NewCopilotGeneratorBuilder(model string, options *CopilotGeneratorBuilderOptions) *CopilotGeneratorBuilder {
	logLevel := "error"
	if options != nil && options.Options.LogLevel != "" {
		logLevel = options.Options.LogLevel
	}

	copilotOptions := &copilot.ClientOptions{
		LogLevel:  logLevel,
		AutoStart: copilot.Bool(false),
	}

	var client copilotClient
	if options == nil || options.NewCopilotClient == nil {
		client = newCopilotClient(copilotOptions)
	} else {
		client = options.NewCopilotClient(copilotOptions)
	}

	return &CopilotGeneratorBuilder{
		gen: &CopilotGenerator{
			model:   model,
			timeout: defaultRequestTimeout,
			client:  client,
		},
	}
}

// WithSystemPrompt sets the instructions prepended to every prompt.
func (b *CopilotGeneratorBuilder) WithSystemPrompt(prompt string) *CopilotGeneratorBuilder {
	b.gen.system = prompt
	return b
}

// WithTimeout bounds each call. Non-positive values keep the default.
func (b *CopilotGeneratorBuilder) WithTimeout(timeout time.Duration) *CopilotGeneratorBuilder {
	if timeout > 0 {
		b.gen.timeout = timeout
	}
	return b
}

func (b *CopilotGeneratorBuilder) Build() *CopilotGenerator {
	return b.gen
}

// Next renders the transcript into a single prompt and waits for the reply.
func (g *CopilotGenerator) Next(ctx context.Context, transcript []models.Message) (models.Message, error) {
	g.startOnce.Do(func() {
		// the client's autostart misbehaves when triggered from several goroutines
		g.startErr = g.client.Start(ctx)
	})

	if g.startErr != nil {
		return models.Message{}, g.unavailable(false, fmt.Errorf("copilot failed to start: %w", g.startErr))
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	session, err := g.client.CreateSession(callCtx, &copilot.SessionConfig{
		Model:               g.model,
		OnPermissionRequest: denyAllTools,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Message{}, ctxErr
		}
		return models.Message{}, g.unavailable(true, fmt.Errorf("failed to create session: %w", err))
	}

	collector := newReplyCollector()

	unsubscribe := session.On(collector.On)
	defer unsubscribe()

	unsubscribe = session.On(utils.CopilotEventLogger(session.SessionID()))
	defer unsubscribe()

	_, err = session.SendAndWait(callCtx, copilot.MessageOptions{
		Prompt: RenderTranscript(g.system, transcript),
	})

	slog.Debug("Copilot reply received", "sessionID", session.SessionID(), "error", err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Message{}, ctxErr
		}
		return models.Message{}, g.unavailable(true, err)
	}

	if msg := collector.ErrorMessage(); msg != "" {
		return models.Message{}, g.unavailable(false, errors.New(msg))
	}

	reply := collector.Reply()
	if reply == "" {
		return models.Message{}, g.unavailable(false, errors.New("copilot returned an empty reply"))
	}

	return NewReply(reply), nil
}

// Close stops the copilot client.
func (g *CopilotGenerator) Close() error {
	if err := g.client.Stop(); err != nil {
		return fmt.Errorf("failed to stop copilot client: %w", err)
	}
	return nil
}

func (g *CopilotGenerator) unavailable(temporary bool, err error) error {
	return &UnavailableError{Backend: "copilot", Temporary: temporary, Err: err}
}

func denyAllTools(request copilot.PermissionRequest, invocation copilot.PermissionInvocation) (copilot.PermissionRequestResult, error) {
	slog.Debug("Refusing copilot tool permission")
	return copilot.PermissionRequestResult{Kind: "denied-interactively-by-user"}, nil
}
