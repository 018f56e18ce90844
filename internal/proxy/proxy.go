// Package proxy drives a code-writing session: it alternates between a
// Generator that proposes messages and an Executor that runs the code blocks
// those messages carry, until the generator signals completion or the turn
// budget runs out.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spboyer/codeloop/internal/execution"
	"github.com/spboyer/codeloop/internal/generator"
	"github.com/spboyer/codeloop/internal/models"
	"github.com/spboyer/codeloop/internal/session"
	"github.com/spboyer/codeloop/internal/workspace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:generate go tool mockgen -destination generator_mock_test.go -package proxy github.com/spboyer/codeloop/internal/generator Generator
//go:generate go tool mockgen -destination executor_mock_test.go -package proxy github.com/spboyer/codeloop/internal/execution Executor

const tracerName = "github.com/spboyer/codeloop/internal/proxy"

// Proxy owns one session's transcript. A Proxy is not safe for concurrent
// use; run independent sessions with independent Proxies and workspaces.
type Proxy struct {
	cfg       Config
	gen       generator.Generator
	exec      execution.Executor
	ws        *workspace.Workspace
	approver  Approver
	logger    session.Logger
	tracer    trace.Tracer
	sessionID string
	engine    string
	model     string
	observer  func(models.Message)
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithApprover sets the policy consulted before each code block runs.
func WithApprover(a Approver) Option {
	return func(p *Proxy) {
		if a != nil {
			p.approver = a
		}
	}
}

// WithSessionLogger records state transitions to l.
func WithSessionLogger(l session.Logger) Option {
	return func(p *Proxy) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTracer replaces the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Proxy) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithSessionID tags events, spans and the Outcome with id.
func WithSessionID(id string) Option {
	return func(p *Proxy) { p.sessionID = id }
}

// WithGeneratorInfo labels session events and spans with the backend in use.
func WithGeneratorInfo(engine, model string) Option {
	return func(p *Proxy) {
		p.engine = engine
		p.model = model
	}
}

// WithObserver registers fn to be called with every message appended to the
// transcript, in order.
func WithObserver(fn func(models.Message)) Option {
	return func(p *Proxy) { p.observer = fn }
}

// New validates cfg and returns a Proxy ready to Run.
func New(cfg Config, gen generator.Generator, exec execution.Executor, ws *workspace.Workspace, opts ...Option) (*Proxy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gen == nil || exec == nil || ws == nil {
		return nil, fmt.Errorf("%w: generator, executor and workspace are required", ErrConfiguration)
	}

	p := &Proxy{
		cfg:      cfg,
		gen:      gen,
		exec:     exec,
		ws:       ws,
		approver: AutoApprove,
		logger:   session.NopLogger{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run is the mutable state of one Run call.
type run struct {
	state      State
	transcript *models.Transcript
	turns      int
	executions int
	pending    models.Message
	startedAt  time.Time
}

// Run seeds the transcript with instruction and drives the state machine to
// StateDone. The returned Outcome is never nil. The error is nil for
// ReasonTerminated and ReasonTurnsExhausted and non-nil otherwise.
func (p *Proxy) Run(ctx context.Context, instruction string) (*Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "session", trace.WithAttributes(
		attribute.String("codeloop.session_id", p.sessionID),
		attribute.String("codeloop.engine", p.engine),
		attribute.String("gen_ai.request.model", p.model),
		attribute.Int("codeloop.max_turns", p.cfg.MaxTurns),
	))
	defer span.End()

	r := &run{
		state:      StateAwaitingGenerator,
		transcript: models.NewTranscript(),
		startedAt:  time.Now().UTC(),
	}
	p.log(session.NewEvent(session.EventSessionStart,
		session.SessionStartData(p.sessionID, p.engine, p.model, p.ws.Dir(), p.cfg.MaxTurns, p.cfg.TerminationMarker)))

	p.append(r, models.Message{Role: models.RoleUser, Content: instruction})

	var (
		reason Reason
		err    error
	)
	for r.state != StateDone {
		switch r.state {
		case StateAwaitingGenerator:
			reason, err = p.awaitGenerator(ctx, r)
		case StateAwaitingExecution:
			reason, err = p.awaitExecution(ctx, r)
		}
	}

	outcome := p.finish(r, reason, err)
	span.SetAttributes(
		attribute.String("codeloop.reason", string(reason)),
		attribute.Int("codeloop.turns", r.turns),
		attribute.Int("codeloop.executions", r.executions),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return outcome, err
}

func (p *Proxy) awaitGenerator(ctx context.Context, r *run) (Reason, error) {
	if err := ctx.Err(); err != nil {
		r.state = StateDone
		return ReasonCanceled, err
	}
	if r.turns >= p.cfg.MaxTurns {
		slog.Debug("Turn limit reached", "session", p.sessionID, "turns", r.turns)
		r.state = StateDone
		return ReasonTurnsExhausted, nil
	}

	r.turns++
	msg, err := p.next(ctx, r)
	if err != nil {
		r.state = StateDone
		if ctx.Err() != nil {
			return ReasonCanceled, err
		}
		return ReasonGeneratorUnavailable, fmt.Errorf("turn %d: %w", r.turns, err)
	}

	msg.Role = models.RoleGenerator
	p.append(r, msg)

	terminated := strings.Contains(msg.Content, p.cfg.TerminationMarker)
	p.log(session.NewEvent(session.EventGeneratorReply,
		session.GeneratorReplyData(r.turns, len(msg.Attachments), terminated, len(msg.Content))))

	switch {
	case terminated:
		if msg.HasCode() {
			slog.Debug("Termination marker found, not running attached code", "turn", r.turns, "blocks", len(msg.Attachments))
		}
		r.state = StateDone
		return ReasonTerminated, nil
	case msg.HasCode():
		r.pending = msg
		r.state = StateAwaitingExecution
	default:
		slog.Debug("Reply without code", "turn", r.turns)
	}
	return "", nil
}

func (p *Proxy) next(ctx context.Context, r *run) (models.Message, error) {
	ctx, span := p.tracer.Start(ctx, "generator.next", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("codeloop.turn", r.turns),
			attribute.Int("codeloop.transcript_len", r.transcript.Len()),
		))
	defer span.End()

	msg, err := p.gen.Next(ctx, r.transcript.Messages())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.Message{}, err
	}
	span.SetAttributes(attribute.Int("codeloop.code_blocks", len(msg.Attachments)))
	return msg, nil
}

func (p *Proxy) awaitExecution(ctx context.Context, r *run) (Reason, error) {
	blocks := r.pending.Attachments
	r.pending = models.Message{}

	outcomes := make([]blockOutcome, 0, len(blocks))
	var results []models.ExecutionResult

	for i, block := range blocks {
		ok, err := p.approver.Approve(ctx, i, block)
		if err != nil {
			r.state = StateDone
			return ReasonCanceled, fmt.Errorf("approving block %d: %w", i+1, err)
		}
		if !ok {
			p.log(session.NewEvent(session.EventExecutionSkipped,
				session.ExecutionSkippedData(r.turns, i+1, block.Language, "denied")))
			outcomes = append(outcomes, blockOutcome{Block: block, Skipped: "denied by user"})
			continue
		}

		res, err := p.execute(ctx, r, i, block)
		if err != nil {
			r.state = StateDone
			if ctx.Err() != nil {
				return ReasonCanceled, err
			}
			return ReasonExecutionFailed, fmt.Errorf("turn %d, block %d: %w", r.turns, i+1, err)
		}
		results = append(results, res)
		outcomes = append(outcomes, blockOutcome{Block: block, Result: &res})
	}

	p.append(r, models.Message{
		Role:    models.RoleExecutor,
		Content: formatFeedback(outcomes, p.cfg.ExecTimeout),
		Results: results,
	})
	r.state = StateAwaitingGenerator
	return "", nil
}

func (p *Proxy) execute(ctx context.Context, r *run, index int, block models.CodeBlock) (models.ExecutionResult, error) {
	ctx, span := p.tracer.Start(ctx, "executor.run", trace.WithAttributes(
		attribute.Int("codeloop.turn", r.turns),
		attribute.Int("codeloop.block", index+1),
		attribute.String("codeloop.language", block.Language),
	))
	defer span.End()

	r.executions++
	res, err := p.exec.Run(ctx, block, p.ws, p.cfg.ExecTimeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.ExecutionResult{}, err
	}

	span.SetAttributes(
		attribute.String("codeloop.status", string(res.Status)),
		attribute.Int("codeloop.exit_code", res.ExitCode),
		attribute.String("codeloop.script", res.Script),
	)
	slog.Debug("Executed block", "turn", r.turns, "block", index+1, "language", block.Language,
		"status", res.Status, "exitCode", res.ExitCode, "duration", res.Duration)
	p.log(session.NewEvent(session.EventExecutionResult, session.ExecutionResultData(
		r.turns, index+1, res.Language, string(res.Status), res.ExitCode, res.Duration.Milliseconds(), res.Script)))
	return res, nil
}

func (p *Proxy) finish(r *run, reason Reason, err error) *Outcome {
	content := string(reason)
	if err != nil {
		content = fmt.Sprintf("%s: %v", reason, err)
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			p.log(session.NewEvent(session.EventError, session.ErrorData(err.Error(), map[string]any{
				"reason": string(reason),
			})))
		}
	}
	p.append(r, models.Message{Role: models.RoleTerminator, Content: content})

	completed := time.Now().UTC()
	p.log(session.NewEvent(session.EventSessionEnd, session.SessionCompleteData(
		string(reason), r.turns, r.executions, completed.Sub(r.startedAt).Milliseconds())))
	slog.Debug("Session done", "session", p.sessionID, "reason", reason, "turns", r.turns, "executions", r.executions)

	return &Outcome{
		SessionID:   p.sessionID,
		Reason:      reason,
		Turns:       r.turns,
		Executions:  r.executions,
		Transcript:  r.transcript.Messages(),
		StartedAt:   r.startedAt,
		CompletedAt: completed,
	}
}

func (p *Proxy) append(r *run, msg models.Message) {
	r.transcript.Append(msg)
	if p.observer != nil {
		if last, ok := r.transcript.Last(); ok {
			p.observer(last)
		}
	}
}

func (p *Proxy) log(ev session.Event) {
	if err := p.logger.Log(ev); err != nil {
		slog.Warn("Failed to write session event", "type", ev.Type, "error", err)
	}
}
