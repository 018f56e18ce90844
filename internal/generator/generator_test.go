package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spboyer/codeloop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReply(t *testing.T) {
	msg := NewReply("Run:\n```sh\necho hi\n```\n")
	assert.Equal(t, models.RoleGenerator, msg.Role)
	assert.False(t, msg.Timestamp.IsZero())
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "sh", msg.Attachments[0].Language)
}

func TestUnavailableError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&UnavailableError{Backend: "openai", Err: cause})

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "openai generator unavailable: boom", err.Error())
}

func TestScriptedGenerator(t *testing.T) {
	g := NewScriptedGenerator("first", "second")

	msg, err := g.Next(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Content)

	msg, err = g.Next(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Content)

	_, err = g.Next(context.Background(), nil)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, g.Calls())
}

func TestScriptedGenerator_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewScriptedGenerator("never")
	_, err := g.Next(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, g.Calls())
}

func TestLoadScriptedReplies(t *testing.T) {
	dir := t.TempDir()

	list := filepath.Join(dir, "list.yaml")
	require.NoError(t, os.WriteFile(list, []byte("- one\n- |\n  ```sh\n  echo two\n  ```\n"), 0o644))

	replies, err := LoadScriptedReplies(list)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "```sh\necho two\n```\n"}, replies)

	mapping := filepath.Join(dir, "mapping.yaml")
	require.NoError(t, os.WriteFile(mapping, []byte("replies:\n  - TERMINATE\n"), 0o644))

	replies, err = LoadScriptedReplies(mapping)
	require.NoError(t, err)
	assert.Equal(t, []string{"TERMINATE"}, replies)

	_, err = LoadScriptedReplies(filepath.Join(dir, "missing.yaml"))
	require.ErrorContains(t, err, "reading replies file")
}

func TestSystemPrompt(t *testing.T) {
	prompt, err := SystemPrompt(PromptData{TerminationMarker: "ALL-DONE", Languages: []string{"python", "sh", "go"}})
	require.NoError(t, err)
	assert.Contains(t, prompt, "reply with ALL-DONE")
	assert.Contains(t, prompt, "python, sh, go")

	prompt, err = SystemPrompt(PromptData{TerminationMarker: "X"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "python, sh")
}

func TestRenderTranscript(t *testing.T) {
	out := RenderTranscript("SYS", []models.Message{
		{Role: models.RoleUser, Content: "task\n"},
		{Role: models.RoleGenerator, Content: "code"},
		{Role: models.RoleExecutor, Content: "exitcode: 0"},
		{Role: models.RoleTerminator, Content: "hidden"},
	})

	assert.Contains(t, out, "SYS\n\n")
	assert.Contains(t, out, "### user\n\ntask\n")
	assert.Contains(t, out, "### assistant\n\ncode\n")
	assert.Contains(t, out, "### execution results\n\nexitcode: 0\n")
	assert.NotContains(t, out, "hidden")
}

func TestFunc(t *testing.T) {
	called := false
	var g Generator = Func(func(ctx context.Context, transcript []models.Message) (models.Message, error) {
		called = true
		return NewReply("ok"), nil
	})

	_, err := g.Next(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, called)
}

func flakyGenerator(failures int, temporary bool) (Generator, *int) {
	calls := 0
	return Func(func(ctx context.Context, transcript []models.Message) (models.Message, error) {
		calls++
		if calls <= failures {
			return models.Message{}, &UnavailableError{Backend: "test", Temporary: temporary, Err: errors.New("flaky")}
		}
		return NewReply("ok"), nil
	}), &calls
}

func TestWithRetry(t *testing.T) {
	fast := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	t.Run("recovers from temporary failures", func(t *testing.T) {
		g, calls := flakyGenerator(2, true)
		msg, err := WithRetry(g, fast).Next(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", msg.Content)
		assert.Equal(t, 3, *calls)
	})

	t.Run("does not retry permanent failures", func(t *testing.T) {
		g, calls := flakyGenerator(1, false)
		_, err := WithRetry(g, fast).Next(context.Background(), nil)
		require.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, 1, *calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		g, calls := flakyGenerator(10, true)
		policy := fast
		policy.MaxRetries = 1
		_, err := WithRetry(g, policy).Next(context.Background(), nil)
		require.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, 2, *calls)
	})

	t.Run("disabled", func(t *testing.T) {
		g, _ := flakyGenerator(0, false)
		_, wrapped := WithRetry(g, RetryPolicy{MaxRetries: -1}).(*retryingGenerator)
		assert.False(t, wrapped)
	})
}

func TestWithRateLimit(t *testing.T) {
	g, calls := flakyGenerator(0, false)
	_, wrapped := WithRateLimit(g, 0).(*rateLimitedGenerator)
	assert.False(t, wrapped)

	limited := WithRateLimit(g, 1)

	_, err := limited.Next(context.Background(), nil)
	require.NoError(t, err, "the first call uses the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = limited.Next(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, 1, *calls)

	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		assert.True(t, unavailable.Temporary)
	} else {
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
}

func TestWithLimiter_Shared(t *testing.T) {
	limiter := NewLimiter(60_000)
	g1, calls1 := flakyGenerator(0, false)
	g2, calls2 := flakyGenerator(0, false)

	for _, g := range []Generator{WithLimiter(g1, limiter), WithLimiter(g2, limiter)} {
		_, err := g.Next(context.Background(), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, *calls1)
	assert.Equal(t, 1, *calls2)

	_, wrapped := WithLimiter(g1, nil).(*rateLimitedGenerator)
	assert.False(t, wrapped)
}
