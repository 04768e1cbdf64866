package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// ErrExit is returned by a handler to end the loop.
var ErrExit = errors.New("exit")

// Handler runs one command line. args excludes the command name.
type Handler func(ctx context.Context, args []string) error

// command is a registered handler.
type command struct {
	usage   string
	handler Handler
}

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	input     io.Reader
	output    io.Writer
	prompt    string
	completer *Completer
	history   *History

	commands map[string]command
	mu       sync.Mutex // serializes writes to output
}

// Option configures a REPL.
type Option func(*REPL)

// WithPrompt sets the prompt (default "lime> ").
func WithPrompt(p string) Option {
	return func(r *REPL) { r.prompt = p }
}

// WithHistory records entered lines in h.
func WithHistory(h *History) Option {
	return func(r *REPL) { r.history = h }
}

// New creates a REPL reading from in and writing to out. The help and exit
// commands are built in.
func New(in io.Reader, out io.Writer, opts ...Option) *REPL {
	r := &REPL{
		input:     in,
		output:    out,
		prompt:    "lime> ",
		completer: NewCompleter(),
		commands:  make(map[string]command),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.history == nil {
		r.history = NewHistory("")
	}
	r.Handle("help", "list commands", r.help)
	r.Handle("exit", "leave the session", func(context.Context, []string) error { return ErrExit })
	r.completer.Add("quit")
	return r
}

// Handle registers h under name.
func (r *REPL) Handle(name, usage string, h Handler) {
	r.commands[name] = command{usage: usage, handler: h}
	r.completer.Add(name)
}

// Completer returns the completer fed with the registered commands.
func (r *REPL) Completer() *Completer {
	return r.completer
}

// History returns the line history.
func (r *REPL) History() *History {
	return r.history
}

// Printf writes to the output without interleaving with the prompt. It is
// safe to call from other goroutines while Run is reading.
func (r *REPL) Printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.output, "\r"+format, args...)
	fmt.Fprint(r.output, r.prompt)
}

// Run reads lines until exit, end of input or ctx cancellation. Handler
// errors are printed and do not end the loop.
func (r *REPL) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		scanner := bufio.NewScanner(r.input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	r.write(r.prompt)
	for {
		select {
		case <-ctx.Done():
			r.write("\n")
			return nil
		case err := <-readErr:
			r.write("\n")
			return err
		case line := <-lines:
			line = strings.TrimSpace(line)
			if line == "" {
				r.write(r.prompt)
				continue
			}
			r.history.Add(line)

			if err := r.execute(ctx, line); err != nil {
				if errors.Is(err, ErrExit) {
					return nil
				}
				r.write(fmt.Sprintf("error: %v\n", err))
			}
			r.write(r.prompt)
		}
	}
}

func (r *REPL) execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	if name == "quit" {
		return ErrExit
	}
	cmd, ok := r.commands[name]
	if !ok {
		if suggestions := r.completer.Complete(name); len(suggestions) > 0 {
			return fmt.Errorf("unknown command %q (did you mean %s?)", name, strings.Join(suggestions, ", "))
		}
		return fmt.Errorf("unknown command %q, type help", name)
	}
	return cmd.handler(ctx, args)
}

func (r *REPL) help(context.Context, []string) error {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "  %-8s %s\n", name, r.commands[name].usage)
	}
	r.write(b.String())
	return nil
}

func (r *REPL) write(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.output, s)
}
