package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePath(t *testing.T) {
	base := filepath.FromSlash("/project")
	abs := filepath.FromSlash("/tmp/coding")

	assert.Equal(t, filepath.Join(base, "coding"), ResolvePath("coding", base))
	assert.Equal(t, abs, ResolvePath(abs, base))
	assert.Equal(t, "coding", ResolvePath("coding", ""))
	assert.Equal(t, "", ResolvePath("", base))
}

func TestResolvePaths(t *testing.T) {
	tests := []struct {
		name     string
		paths    []string
		baseDir  string
		expected []string
	}{
		{
			name:     "empty list",
			paths:    []string{},
			baseDir:  "/base",
			expected: nil,
		},
		{
			name:     "nil list",
			paths:    nil,
			baseDir:  "/base",
			expected: nil,
		},
		{
			name:     "absolute paths unchanged",
			paths:    []string{"/abs/path1", "/abs/path2"},
			baseDir:  "/base",
			expected: []string{"/abs/path1", "/abs/path2"},
		},
		{
			name:     "relative paths resolved",
			paths:    []string{"coding", ".codeloop/sessions"},
			baseDir:  "/base",
			expected: []string{"/base/coding", "/base/.codeloop/sessions"},
		},
		{
			name:     "mixed paths",
			paths:    []string{"/abs", "rel", "../parent"},
			baseDir:  "/base/sub",
			expected: []string{"/abs", "/base/sub/rel", "/base/parent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ResolvePaths(tt.paths, tt.baseDir)

			if tt.expected == nil {
				assert.Nil(t, result)
				return
			}
			cleanExpected := make([]string, len(tt.expected))
			for i, p := range tt.expected {
				cleanExpected[i] = filepath.Clean(p)
			}
			cleanResult := make([]string, len(result))
			for i, p := range result {
				cleanResult[i] = filepath.Clean(p)
			}
			assert.Equal(t, cleanExpected, cleanResult)
		})
	}
}
