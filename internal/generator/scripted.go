package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spboyer/codeloop/internal/models"
	"gopkg.in/yaml.v3"
)

// ScriptedOptions are the engine-specific settings for the mock backend.
type ScriptedOptions struct {
	Replies     []string `mapstructure:"replies"`
	RepliesFile string   `mapstructure:"replies_file"`
}

// ScriptedGenerator replays a fixed list of replies, one per call. It is
// used for demos and tests that must not reach a model.
type ScriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

// NewScriptedGenerator returns a generator that answers with replies in order.
func NewScriptedGenerator(replies ...string) *ScriptedGenerator {
	return &ScriptedGenerator{replies: replies}
}

// LoadScriptedReplies reads a YAML file holding either a list of strings or
// a mapping with a "replies" list.
func LoadScriptedReplies(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading replies file: %w", err)
	}

	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc struct {
		Replies []string `yaml:"replies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing replies file %s: %w", path, err)
	}
	return doc.Replies, nil
}

func (g *ScriptedGenerator) Next(ctx context.Context, transcript []models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.calls >= len(g.replies) {
		return models.Message{}, &UnavailableError{
			Backend: "mock",
			Err:     errors.New("no scripted replies left"),
		}
	}

	reply := g.replies[g.calls]
	g.calls++
	return NewReply(reply), nil
}

// Calls returns how many replies have been handed out.
func (g *ScriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
