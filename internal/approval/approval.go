// Package approval asks a human before generated code is executed.
package approval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spboyer/codeloop/internal/models"
	"github.com/spboyer/codeloop/internal/proxy"
	"golang.org/x/term"
)

// Mode selects how code blocks are approved.
type Mode string

const (
	// ModeAuto runs every block without asking.
	ModeAuto Mode = "auto"
	// ModePrompt asks on the terminal before each block.
	ModePrompt Mode = "prompt"
	// ModeDeny never runs code. The generator sees every block as skipped.
	ModeDeny Mode = "deny"
)

// Modes lists the accepted values for the --approve flag.
var Modes = []Mode{ModeAuto, ModePrompt, ModeDeny}

// ErrAborted is returned when the user aborts the prompt.
var ErrAborted = errors.New("approval aborted")

// ParseMode validates a mode string. The empty string selects ModeAuto.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeAuto, nil
	}
	for _, m := range Modes {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown approval mode %q (expected auto, prompt or deny)", s)
}

// New returns the approver for mode. in and out are only used by ModePrompt.
func New(mode Mode, in io.Reader, out io.Writer) proxy.Approver {
	switch mode {
	case ModePrompt:
		return &TerminalApprover{In: in, Out: out}
	case ModeDeny:
		return proxy.ApproverFunc(func(context.Context, int, models.CodeBlock) (bool, error) {
			return false, nil
		})
	default:
		return proxy.AutoApprove
	}
}

// TerminalApprover shows each block and asks for confirmation. Input that is
// not a terminal denies every block.
type TerminalApprover struct {
	In  io.Reader
	Out io.Writer
}

// promptConfirm is a test hook for replacing the confirmation form.
var promptConfirm = defaultPromptConfirm

func defaultPromptConfirm(in io.Reader, out io.Writer, question string) (bool, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false, nil
	}

	var confirmed bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative("Run").
				Negative("Skip").
				Value(&confirmed),
		),
	).WithInput(in).WithOutput(out).Run()

	if errors.Is(err, huh.ErrUserAborted) {
		return false, ErrAborted
	}
	if err != nil {
		return false, err
	}
	return confirmed, nil
}

func (a *TerminalApprover) Approve(ctx context.Context, index int, block models.CodeBlock) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fmt.Fprintf(a.Out, "\n--- block %d (%s) ---\n%s", index+1, block.Language, block.Code) //nolint:errcheck
	if !strings.HasSuffix(block.Code, "\n") {
		fmt.Fprintln(a.Out) //nolint:errcheck
	}
	fmt.Fprintln(a.Out, "---") //nolint:errcheck

	return promptConfirm(a.In, a.Out, fmt.Sprintf("Run block %d?", index+1))
}
