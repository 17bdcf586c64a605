package operator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Operator is the human in the loop.  Procedures ask it questions and block
// until it answers; there is no timeout, only cancellation via ctx.
type Operator interface {
	// Ask shows prompt and returns the next line of input, trimmed.
	Ask(ctx context.Context, prompt string) (string, error)
	// Tell shows an informational message.
	Tell(msg string)
}

// Console is an Operator on a terminal (or any reader/writer pair).
type Console struct {
	out io.Writer

	startOnce sync.Once
	in        io.Reader
	lines     chan string
	readErr   error
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

// start kicks off a background goroutine reading lines so that Ask can give
// up on ctx cancellation without losing later input.
func (c *Console) start() {
	c.startOnce.Do(func() {
		c.lines = make(chan string)
		go func() {
			defer close(c.lines)
			reader := bufio.NewReader(c.in)
			for {
				line, err := reader.ReadString('\n')
				if len(line) > 0 || err == nil {
					c.lines <- line
				}
				if err != nil {
					c.readErr = err
					return
				}
			}
		}()
	})
}

func (c *Console) Ask(ctx context.Context, prompt string) (string, error) {
	c.start()
	if prompt != "" {
		fmt.Fprint(c.out, prompt)
		if !strings.HasSuffix(prompt, " ") && !strings.HasSuffix(prompt, "\n") {
			fmt.Fprint(c.out, " ")
		}
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			if c.readErr == nil {
				return "", io.EOF
			}
			return "", c.readErr
		}
		return strings.TrimSpace(line), nil
	}
}

func (c *Console) Tell(msg string) {
	fmt.Fprintln(c.out, msg)
}

// Script is an Operator that replays canned answers, for tests and for
// non-interactive runs.  Once the answers run out Ask returns io.EOF.
type Script struct {
	Answers []string

	Prompts []string
	Told    []string
}

func NewScript(answers ...string) *Script {
	return &Script{Answers: answers}
}

func (s *Script) Ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.Prompts = append(s.Prompts, prompt)
	if len(s.Answers) == 0 {
		return "", io.EOF
	}
	answer := s.Answers[0]
	s.Answers = s.Answers[1:]
	return strings.TrimSpace(answer), nil
}

func (s *Script) Tell(msg string) {
	s.Told = append(s.Told, msg)
}

// Lines is an Operator fed from a channel of lines, e.g. from a joystick or a
// websocket.  Tell messages go to the optional Out callback.
type Lines struct {
	C   <-chan string
	Out func(msg string)
}

func (l *Lines) Ask(ctx context.Context, prompt string) (string, error) {
	if prompt != "" {
		l.Tell(prompt)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-l.C:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	}
}

func (l *Lines) Tell(msg string) {
	if l.Out != nil {
		l.Out(msg)
	}
}
