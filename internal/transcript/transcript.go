// Package transcript persists finished sessions as JSON documents.
package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spboyer/codeloop/internal/models"
	"github.com/spboyer/codeloop/internal/proxy"
)

// CompressedExt is appended to transcripts written with compression.
const CompressedExt = ".zst"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeName returns the filename-safe form of a session name. Distinct
// names may share a sanitized form.
func SanitizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = unsafeChars.ReplaceAllString(s, "")
	if len(s) > 48 {
		s = s[:48]
	}
	if s == "" {
		s = "session"
	}
	return s
}

// Filename returns the transcript filename for a session. The first segment
// of sessionID keeps sessions with the same name and start second apart.
func Filename(name, sessionID string, ts time.Time, compress bool) string {
	f := fmt.Sprintf("%s-%s", SanitizeName(name), ts.UTC().Format("20060102-150405"))
	if short, _, _ := strings.Cut(sessionID, "-"); short != "" {
		f += "-" + short
	}
	f += ".json"
	if compress {
		f += CompressedExt
	}
	return f
}

// Meta carries the session details the proxy does not know about.
type Meta struct {
	Name    string
	Engine  string
	Model   string
	WorkDir string
}

// Build converts a finished session into its persisted form. runErr is the
// error returned by proxy.Run, if any.
func Build(o *proxy.Outcome, meta Meta, runErr error) *models.SessionTranscript {
	t := &models.SessionTranscript{
		SessionID:   o.SessionID,
		Name:        meta.Name,
		Engine:      meta.Engine,
		Model:       meta.Model,
		WorkDir:     meta.WorkDir,
		Reason:      string(o.Reason),
		Turns:       o.Turns,
		Executions:  o.Executions,
		StartedAt:   o.StartedAt,
		CompletedAt: o.CompletedAt,
		DurationMs:  o.Duration().Milliseconds(),
		Messages:    o.Transcript,
	}
	for _, m := range o.Transcript {
		if m.Role == models.RoleUser {
			t.Prompt = m.Content
			break
		}
	}
	if runErr != nil {
		t.ErrorMsg = runErr.Error()
	}
	return t
}

// Encode serializes t as indented JSON, zstd-compressed when compress is set.
func Encode(t *models.SessionTranscript, compress bool) ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	if !compress {
		return data, nil
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close() //nolint:errcheck
		return nil, fmt.Errorf("compress transcript: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("compress transcript: %w", err)
	}
	return buf.Bytes(), nil
}

// Write serializes t and writes it to dir, returning the file path. An
// existing file is never overwritten.
func Write(dir string, t *models.SessionTranscript, compress bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}

	data, err := Encode(t, compress)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, Filename(t.Name, t.SessionID, t.StartedAt, compress))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck
		return "", fmt.Errorf("write transcript: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

// Read loads a transcript written by Write. Files ending in CompressedExt
// are decompressed.
func Read(path string) (*models.SessionTranscript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if strings.HasSuffix(path, CompressedExt) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	var t models.SessionTranscript
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("transcript %s is empty", path)
		}
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &t, nil
}
