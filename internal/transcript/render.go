package transcript

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spboyer/codeloop/internal/models"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 80

var roleLabels = map[models.Role]string{
	models.RoleUser:       "user",
	models.RoleGenerator:  "generator",
	models.RoleExecutor:   "executor",
	models.RoleTerminator: "done",
}

// rule returns a header line like "── label ─────" exactly width cells wide.
func rule(label string, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	head := "── " + label + " "
	if runewidth.StringWidth(head) >= width {
		return runewidth.Truncate(head, width, "…")
	}
	return head + strings.Repeat("─", width-runewidth.StringWidth(head))
}

// RenderMessage writes one message under a role header.
//
//nolint:errcheck // display-only writes
func RenderMessage(w io.Writer, m models.Message, width int) {
	label, ok := roleLabels[m.Role]
	if !ok {
		label = string(m.Role)
	}
	if n := len(m.Attachments); n > 0 && m.Role == models.RoleGenerator {
		label = fmt.Sprintf("%s (%d code block(s))", label, n)
	}

	fmt.Fprintln(w, rule(label, width))
	content := strings.TrimRight(m.Content, "\n")
	if content == "" {
		content = "(empty)"
	}
	fmt.Fprintln(w, content)
	fmt.Fprintln(w)
}

// Render writes a summary header followed by every message of t.
//
//nolint:errcheck // display-only writes
func Render(w io.Writer, t *models.SessionTranscript, width int) {
	fmt.Fprintln(w, rule("session "+t.SessionID, width))
	fmt.Fprintf(w, "Engine:     %s", t.Engine)
	if t.Model != "" {
		fmt.Fprintf(w, " (%s)", t.Model)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Work dir:   %s\n", t.WorkDir)
	fmt.Fprintf(w, "Reason:     %s\n", t.Reason)
	fmt.Fprintf(w, "Turns:      %d\n", t.Turns)
	fmt.Fprintf(w, "Executions: %d\n", t.Executions)
	fmt.Fprintf(w, "Duration:   %dms\n", t.DurationMs)
	if t.ErrorMsg != "" {
		fmt.Fprintf(w, "Error:      %s\n", t.ErrorMsg)
	}
	fmt.Fprintln(w)

	for _, m := range t.Messages {
		RenderMessage(w, m, width)
	}
}
