package proxy

import (
	"context"

	"github.com/spboyer/codeloop/internal/models"
)

// Approver decides whether a code block may run. It is consulted once per
// block, right before execution.
type Approver interface {
	Approve(ctx context.Context, index int, block models.CodeBlock) (bool, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, index int, block models.CodeBlock) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, index int, block models.CodeBlock) (bool, error) {
	return f(ctx, index, block)
}

// AutoApprove runs every block.
var AutoApprove Approver = ApproverFunc(func(context.Context, int, models.CodeBlock) (bool, error) {
	return true, nil
})
