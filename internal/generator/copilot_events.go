package generator

import (
	"strings"
	"sync"

	copilot "github.com/github/copilot-sdk/go"
)

const sessionFailedUnknown = "session failed with unknown error"

// replyCollector gathers the assistant's reply from copilot session events.
type replyCollector struct {
	mu       sync.Mutex
	messages []string
	deltas   strings.Builder
	errorMsg string
	done     chan struct{}
}

func newReplyCollector() *replyCollector {
	return &replyCollector{done: make(chan struct{})}
}

// On is passed to [copilot.Session.On].
func (c *replyCollector) On(event copilot.SessionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch event.Type {
	case copilot.AssistantMessage:
		if event.Data.Content != nil && *event.Data.Content != "" {
			c.messages = append(c.messages, *event.Data.Content)
		}

	case copilot.AssistantMessageDelta:
		if event.Data.DeltaContent != nil {
			c.deltas.WriteString(*event.Data.DeltaContent)
		}

	// these are both termination events
	case copilot.SessionIdle, copilot.SessionError:
		if event.Type == copilot.SessionError {
			if event.Data.Message == nil || *event.Data.Message == "" {
				c.errorMsg = sessionFailedUnknown
			} else {
				c.errorMsg = *event.Data.Message
			}
		}

		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
}

// Reply returns the assistant messages joined in order. Streamed deltas are
// only used when no complete message arrived.
func (c *replyCollector) Reply() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.messages) > 0 {
		return strings.Join(c.messages, "\n\n")
	}
	return c.deltas.String()
}

func (c *replyCollector) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorMsg
}

func (c *replyCollector) Done() <-chan struct{} {
	return c.done
}
