package operator

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func TestConsoleReadsTrimmedLines(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("y\r\n  ii \nlast"), &out)
	ctx := context.Background()

	expectAnswer(t, c, ctx, "y")
	expectAnswer(t, c, ctx, "ii")
	expectAnswer(t, c, ctx, "last")

	if _, err := c.Ask(ctx, "more?"); err != io.EOF {
		t.Errorf("Expected EOF at end of input, got %v", err)
	}
	if !strings.Contains(out.String(), "prompt ") {
		t.Errorf("Prompt not written to output: %q", out.String())
	}
}

func expectAnswer(t *testing.T, op Operator, ctx context.Context, expected string) {
	t.Helper()
	got, err := op.Ask(ctx, "prompt")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestConsoleCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	c := NewConsole(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Ask(ctx, ""); err != context.DeadlineExceeded {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}

	// Input typed after the cancelled Ask is still delivered.
	go func() { _, _ = w.Write([]byte("stop\n")) }()
	expectAnswer(t, c, context.Background(), "stop")
}

func TestScript(t *testing.T) {
	s := NewScript("y", " end ")
	ctx := context.Background()
	expectAnswer(t, s, ctx, "y")
	expectAnswer(t, s, ctx, "end")
	if _, err := s.Ask(ctx, "again"); err != io.EOF {
		t.Errorf("Expected EOF, got %v", err)
	}
	s.Tell("hello")
	if len(s.Prompts) != 3 || s.Told[0] != "hello" {
		t.Errorf("Unexpected transcript: %v / %v", s.Prompts, s.Told)
	}
}

func TestLines(t *testing.T) {
	c := make(chan string, 2)
	var told []string
	l := &Lines{C: c, Out: func(m string) { told = append(told, m) }}
	c <- "i"
	close(c)

	expectAnswer(t, l, context.Background(), "i")
	if _, err := l.Ask(context.Background(), ""); err != io.EOF {
		t.Errorf("Expected EOF after close, got %v", err)
	}
	if len(told) != 1 || told[0] != "prompt" {
		t.Errorf("Prompt should be told once: %v", told)
	}
}
