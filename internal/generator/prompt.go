package generator

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/spboyer/codeloop/internal/models"
)

var (
	//go:embed data/system_prompt.md
	systemPromptText string

	systemPromptTemplate = template.Must(template.New("system").
				Funcs(template.FuncMap{"join": strings.Join}).
				Parse(systemPromptText))
)

// PromptData fills the system prompt template.
type PromptData struct {
	TerminationMarker string
	Languages         []string
}

// SystemPrompt renders the instructions given to the model at the start of
// every request.
func SystemPrompt(data PromptData) (string, error) {
	if len(data.Languages) == 0 {
		data.Languages = []string{"python", "sh"}
	}

	var sb strings.Builder
	if err := systemPromptTemplate.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering system prompt: %w", err)
	}
	return sb.String(), nil
}

// RenderTranscript flattens a transcript into a single prompt for backends
// that take plain text instead of a message list.
func RenderTranscript(system string, transcript []models.Message) string {
	var sb strings.Builder

	if system != "" {
		sb.WriteString(system)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Conversation so far:\n")

	for _, m := range transcript {
		if m.Role == models.RoleTerminator {
			continue
		}
		fmt.Fprintf(&sb, "\n### %s\n\n%s\n", speaker(m.Role), strings.TrimRight(m.Content, "\n"))
	}

	sb.WriteString("\nWrite the assistant's next message.\n")
	return sb.String()
}

func speaker(role models.Role) string {
	switch role {
	case models.RoleGenerator:
		return "assistant"
	case models.RoleExecutor:
		return "execution results"
	default:
		return "user"
	}
}
