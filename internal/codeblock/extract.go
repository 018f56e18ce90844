// Package codeblock finds executable fenced code blocks in markdown replies.
package codeblock

import (
	"strings"

	"github.com/spboyer/codeloop/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultLanguage is assumed for fences that carry no info string.
const DefaultLanguage = "python"

var aliases = map[string]string{
	"py":         "python",
	"python3":    "python",
	"shell":      "sh",
	"bash":       "sh",
	"zsh":        "sh",
	"console":    "sh",
	"js":         "javascript",
	"node":       "javascript",
	"golang":     "go",
	"powershell": "pwsh",
	"ps1":        "pwsh",
}

// NormalizeLanguage lower-cases a fence language and resolves known aliases.
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return DefaultLanguage
	}
	if canonical, ok := aliases[lang]; ok {
		return canonical
	}
	return lang
}

// Extract returns the fenced code blocks in content, in document order.
// Indented code blocks and empty fences are ignored.
func Extract(content string) []models.CodeBlock {
	if !strings.Contains(content, "```") && !strings.Contains(content, "~~~") {
		return nil
	}

	src := []byte(content)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks []models.CodeBlock

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var code strings.Builder
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			code.Write(seg.Value(src))
		}

		if strings.TrimSpace(code.String()) == "" {
			return ast.WalkSkipChildren, nil
		}

		blocks = append(blocks, models.CodeBlock{
			Language: NormalizeLanguage(string(fenced.Language(src))),
			Code:     code.String(),
		})
		return ast.WalkSkipChildren, nil
	})

	return blocks
}
