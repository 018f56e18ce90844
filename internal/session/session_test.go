package session

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	data := map[string]any{"key": "value"}
	ev := NewEvent(EventSessionStart, data)

	if ev.Type != EventSessionStart {
		t.Errorf("Type = %q, want %q", ev.Type, EventSessionStart)
	}
	if ev.Data["key"] != "value" {
		t.Errorf("Data[key] = %v, want %q", ev.Data["key"], "value")
	}
	if ev.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
}

func TestEventJSON(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	ev := Event{
		Timestamp: ts,
		Type:      EventExecutionResult,
		Data:      ExecutionResultData(2, 1, "python", "failed", 3, 120, "snippet_0004.py"),
	}

	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.Type != EventExecutionResult {
		t.Errorf("decoded.Type = %q, want %q", decoded.Type, EventExecutionResult)
	}
	if !decoded.Timestamp.Equal(ts) {
		t.Errorf("decoded.Timestamp = %v, want %v", decoded.Timestamp, ts)
	}
	if decoded.Data["script"] != "snippet_0004.py" {
		t.Errorf("script = %v, want %q", decoded.Data["script"], "snippet_0004.py")
	}
	if got := jsonNumber(decoded.Data["exit_code"]); got != 3 {
		t.Errorf("exit_code = %d, want 3", got)
	}
}

func TestSessionStartData(t *testing.T) {
	d := SessionStartData("abc", "openai", "gpt-4", "/tmp/coding", 10, "TERMINATE")
	if d["session_id"] != "abc" {
		t.Errorf("session_id = %v", d["session_id"])
	}
	if d["engine"] != "openai" {
		t.Errorf("engine = %v", d["engine"])
	}
	if d["max_turns"] != 10 {
		t.Errorf("max_turns = %v", d["max_turns"])
	}
	if d["termination_marker"] != "TERMINATE" {
		t.Errorf("termination_marker = %v", d["termination_marker"])
	}
}

func TestGeneratorReplyData(t *testing.T) {
	d := GeneratorReplyData(1, 2, false, 40)
	if d["code_blocks"] != 2 {
		t.Errorf("code_blocks = %v", d["code_blocks"])
	}
	if d["terminated"] != false {
		t.Errorf("terminated = %v", d["terminated"])
	}
}

func TestErrorData(t *testing.T) {
	d := ErrorData("generator unavailable", map[string]any{"turn": 3})
	if d["message"] != "generator unavailable" {
		t.Errorf("message = %v", d["message"])
	}
	if d["turn"] != 3 {
		t.Errorf("turn = %v", d["turn"])
	}
}

func TestJSONLogger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "test-session.jsonl")

	logger, err := NewJSONLogger(path)
	if err != nil {
		t.Fatalf("NewJSONLogger: %v", err)
	}
	if logger.Path() != path {
		t.Errorf("Path() = %q, want %q", logger.Path(), path)
	}

	events := []Event{
		NewEvent(EventSessionStart, SessionStartData("s1", "mock", "", dir, 3, "TERMINATE")),
		NewEvent(EventGeneratorReply, GeneratorReplyData(1, 1, false, 12)),
		{Type: EventSessionEnd, Data: SessionCompleteData("terminated", 2, 1, 40)},
	}
	for _, ev := range events {
		if err := logger.Log(ev); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := logger.Log(events[0]); err == nil {
		t.Error("Log after Close should fail")
	}

	got, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("read %d events, want %d", len(got), len(events))
	}
	if got[2].Timestamp.IsZero() {
		t.Error("logger should stamp events without a timestamp")
	}
	if got[2].Data["reason"] != "terminated" {
		t.Errorf("reason = %v", got[2].Data["reason"])
	}
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	if err := l.Log(NewEvent(EventError, nil)); err != nil {
		t.Errorf("Log: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestDefaultLogPath(t *testing.T) {
	p := DefaultLogPath("/logs", "0f8fad5b-d9cb-469f-a165-70867728950e")
	if filepath.Dir(p) != "/logs" {
		t.Errorf("dir = %q", filepath.Dir(p))
	}
	if !strings.HasSuffix(p, "-0f8fad5b-session.jsonl") {
		t.Errorf("path = %q, want session id suffix", p)
	}

	p = DefaultLogPath("/logs", "")
	if !strings.HasSuffix(p, "Z-session.jsonl") {
		t.Errorf("path = %q, want bare timestamp", p)
	}
}

func TestListSessions(t *testing.T) {
	dir := t.TempDir()

	older := filepath.Join(dir, "20260101T000000Z-aaaa-session.jsonl")
	newer := filepath.Join(dir, "20260102T000000Z-bbbb-session.jsonl")
	if err := os.WriteFile(older, []byte("{}\n{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newer, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatal(err)
	}

	files, err := ListSessions(dir)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[0].Path != newer {
		t.Errorf("first = %q, want newest first", files[0].Name)
	}
	if files[1].NumEvents != 2 {
		t.Errorf("NumEvents = %d, want 2", files[1].NumEvents)
	}

	if _, err := ListSessions(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestReadEvents_SkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x-session.jsonl")
	content := `{"type":"session_start","timestamp":"2026-01-01T00:00:00Z"}
not json
{"type":"session_complete","timestamp":"2026-01-01T00:00:01Z"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	events, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Type != EventSessionEnd {
		t.Errorf("Type = %q", events[1].Type)
	}
}

func TestRenderTimeline(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(ms int, typ EventType, data map[string]any) Event {
		return Event{Timestamp: start.Add(time.Duration(ms) * time.Millisecond), Type: typ, Data: data}
	}
	events := []Event{
		at(0, EventSessionStart, SessionStartData("s1", "openai", "gpt-4", "coding", 10, "TERMINATE")),
		at(100, EventGeneratorReply, GeneratorReplyData(1, 2, false, 80)),
		at(200, EventExecutionResult, ExecutionResultData(1, 1, "python", "succeeded", 0, 50, "snippet_0001.py")),
		at(300, EventExecutionResult, ExecutionResultData(1, 2, "sh", "timed_out", -1, 60000, "snippet_0002.sh")),
		at(400, EventExecutionSkipped, ExecutionSkippedData(1, 3, "sh", "denied")),
		at(500, EventGeneratorReply, GeneratorReplyData(2, 0, true, 9)),
		at(1500, EventSessionEnd, SessionCompleteData("terminated", 2, 2, 1500)),
	}

	var buf bytes.Buffer
	RenderTimeline(&buf, events)
	out := buf.String()

	for _, want := range []string{
		"SESSION TIMELINE",
		"Session s1 started  engine=openai  model=gpt-4  max_turns=10",
		"Turn 1: 2 code block(s)",
		"✓ Block 1 (python) succeeded  exit=0  snippet_0001.py",
		"⏱ Block 2 (sh) timed_out  exit=-1",
		"Block 3 skipped: denied",
		"Turn 2: termination marker",
		"reason=terminated  turns=2  executions=2",
		"1.5s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("timeline missing %q\n%s", want, out)
		}
	}
}

func TestRenderTimeline_Empty(t *testing.T) {
	var buf bytes.Buffer
	RenderTimeline(&buf, nil)
	if !strings.Contains(buf.String(), "No events found.") {
		t.Errorf("output = %q", buf.String())
	}
}
