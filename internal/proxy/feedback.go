package proxy

import (
	"fmt"
	"strings"
	"time"

	"github.com/spboyer/codeloop/internal/models"
)

// blockOutcome is what happened to one attachment of a generator message.
type blockOutcome struct {
	Block   models.CodeBlock
	Result  *models.ExecutionResult
	Skipped string
}

// formatFeedback renders the executor message the generator reads on its
// next turn.
func formatFeedback(outcomes []blockOutcome, timeout time.Duration) string {
	var sb strings.Builder
	multi := len(outcomes) > 1

	for i, o := range outcomes {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if multi {
			fmt.Fprintf(&sb, "Block %d (%s):\n", i+1, o.Block.Language)
		}

		if o.Result == nil {
			fmt.Fprintf(&sb, "not executed: %s", o.Skipped)
			continue
		}

		r := o.Result
		switch r.Status {
		case models.StatusSucceeded:
			fmt.Fprintf(&sb, "exitcode: %d (execution succeeded)", r.ExitCode)
		case models.StatusTimedOut:
			fmt.Fprintf(&sb, "exitcode: %d (execution timed out after %s)", r.ExitCode, timeout)
		default:
			fmt.Fprintf(&sb, "exitcode: %d (execution failed)", r.ExitCode)
		}
		sb.WriteString("\nCode output: ")
		sb.WriteString(combinedOutput(*r))
	}
	return sb.String()
}

func combinedOutput(r models.ExecutionResult) string {
	out := strings.TrimRight(r.Stdout, "\n")
	errOut := strings.TrimRight(r.Stderr, "\n")
	switch {
	case out == "":
		return errOut
	case errOut == "":
		return out
	default:
		return out + "\n" + errOut
	}
}
