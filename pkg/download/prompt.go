package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrCanceled is returned when the user dismisses the save prompt.
var ErrCanceled = errors.New("Download canceled by the user")

// Prompter asks the user where a file should be saved.
type Prompter interface {
	// PromptSaveAs returns the chosen path for suggested, or ErrCanceled.
	PromptSaveAs(ctx context.Context, suggested string) (string, error)
}

// AutoAccept accepts every suggested path without asking.
type AutoAccept struct{}

func (AutoAccept) PromptSaveAs(_ context.Context, suggested string) (string, error) {
	return suggested, nil
}

// TerminalPrompter asks on the controlling terminal. When stdin is not a
// terminal the suggested path is accepted.
type TerminalPrompter struct {
	mu         sync.Mutex
	in         io.Reader
	out        io.Writer
	isTerminal func() bool

	start sync.Once
	lines chan answer
}

type answer struct {
	line string
	err  error
}

func NewTerminalPrompter() *TerminalPrompter {
	return newTerminalPrompter(os.Stdin, os.Stderr, func() bool {
		return term.IsTerminal(int(os.Stdin.Fd()))
	})
}

func newTerminalPrompter(in io.Reader, out io.Writer, isTerminal func() bool) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out, isTerminal: isTerminal}
}

// Interactive reports whether prompts will actually reach a user.
func (p *TerminalPrompter) Interactive() bool {
	return p.isTerminal()
}

func (p *TerminalPrompter) PromptSaveAs(ctx context.Context, suggested string) (string, error) {
	if !p.Interactive() {
		return suggested, nil
	}

	// one dialog at a time
	p.mu.Lock()
	defer p.mu.Unlock()

	p.start.Do(func() {
		p.lines = make(chan answer)
		go p.readLines()
	})

	fmt.Fprintf(p.out, "Save as [%s] (Ctrl-D to cancel): ", suggested)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a, ok := <-p.lines:
		if !ok {
			return "", ErrCanceled
		}
		return parseAnswer(a.line, a.err, suggested)
	}
}

// readLines owns the input for the life of the prompter. Lines are handed
// out one per prompt in the order they were typed.
func (p *TerminalPrompter) readLines() {
	r := bufio.NewReader(p.in)
	for {
		line, err := r.ReadString('\n')
		p.lines <- answer{line: line, err: err}
		if err != nil {
			close(p.lines)
			return
		}
	}
}

func parseAnswer(line string, err error, suggested string) (string, error) {
	if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
		return "", ErrCanceled
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return suggested, nil
	}
	return line, nil
}
