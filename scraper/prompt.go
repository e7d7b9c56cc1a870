package scraper

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrPromptClosed      = errors.New("operator input closed")
	ErrResolutionTimeout = errors.New("timed out waiting for manual resolution")
)

// Prompter suspends the pipeline until a human has dealt with a challenge.
type Prompter interface {
	AwaitResolution(ctx context.Context) error
}

// ConsolePrompter asks on Out and reads answers from In until the operator
// types "solved". A zero Timeout waits forever.
type ConsolePrompter struct {
	Out     io.Writer
	Timeout time.Duration

	lines   <-chan string
	readErr error
}

func NewConsolePrompter(in io.Reader, out io.Writer, timeout time.Duration) *ConsolePrompter {
	lines := make(chan string)
	p := &ConsolePrompter{Out: out, Timeout: timeout, lines: lines}

	// A single goroutine owns in for the prompter's lifetime. readErr is set
	// before lines is closed.
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		p.readErr = scanner.Err()
		if p.readErr == nil {
			p.readErr = io.EOF
		}
		close(lines)
	}()

	return p
}

func (p *ConsolePrompter) AwaitResolution(ctx context.Context) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	fmt.Fprintln(p.Out, "Access blocked by Incapsula. Please solve the CAPTCHA and type 'solved' to continue.")
	for {
		fmt.Fprint(p.Out, "Enter 'solved' after resolving the issue: ")

		select {
		case line, ok := <-p.lines:
			if !ok {
				return fmt.Errorf("%w: %v", ErrPromptClosed, p.readErr)
			}
			if IsSolved(line) {
				return nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrResolutionTimeout
			}
			return ctx.Err()
		}
	}
}

// IsSolved accepts "solved" in any case, surrounded by whitespace.
func IsSolved(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), "solved")
}
