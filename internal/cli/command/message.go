package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/lime-go/internal/cli/output"
	"github.com/yndnr/lime-go/internal/core/domain"
)

// SendResult is printed by send.
type SendResult struct {
	ID     string `json:"id"`
	To     string `json:"to"`
	Event  string `json:"event"`
	Reason string `json:"reason,omitempty"`
}

// SendCommand returns the send command.
func SendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send a message and wait for its notification",
		ArgsUsage: "TEXT...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "to",
				Usage: "Destination node (the server when empty)",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Media type of the content",
				Value: domain.MediaTypeTextPlain,
			},
			&cli.BoolFlag{
				Name:  "no-wait",
				Usage: "Return once the message is sent",
			},
		},
		Action: sendAction,
	}
}

func parseDestination(s string) (*domain.Node, error) {
	if s == "" {
		return nil, nil
	}
	n, err := domain.ParseNode(s)
	if err != nil {
		return nil, fmt.Errorf("--to: %w", err)
	}
	return &n, nil
}

func parseContent(mediaType, text string) (domain.Document, error) {
	mt, err := domain.ParseMediaType(mediaType)
	if err != nil {
		return nil, fmt.Errorf("--type: %w", err)
	}
	return domain.DocumentFromString(mt, text)
}

func sendAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("message text required")
	}
	to, err := parseDestination(c.String("to"))
	if err != nil {
		return err
	}
	content, err := parseContent(c.String("type"), strings.Join(c.Args().Slice(), " "))
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	sess, err := EnsureConnected(ctx, c)
	if err != nil {
		return err
	}

	result := SendResult{To: sess.Remote().String()}
	if to != nil {
		result.To = to.String()
	}

	if c.Bool("no-wait") {
		m, err := sess.Send(ctx, to, content)
		if err != nil {
			return err
		}
		result.ID, result.Event = m.ID, "sent"
		return printResult(c, result)
	}

	var spinner *output.Spinner
	if c.App.ErrWriter == os.Stderr && output.IsTerminal(os.Stderr) {
		spinner = output.NewSpinner(output.Stderr(), "waiting for notification")
		spinner.Start()
	}
	m, n, err := sess.SendAndWait(ctx, to, content)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	result.ID, result.Event = m.ID, string(n.Event)
	if n.Reason != nil {
		result.Reason = n.Reason.String()
	}
	if err := printResult(c, result); err != nil {
		return err
	}
	if n.Event == domain.EventFailed {
		return fmt.Errorf("message %s failed: %s", m.ID, result.Reason)
	}
	return nil
}

// ListenCommand returns the listen command.
func ListenCommand() *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "Print incoming envelopes until interrupted",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "kind",
				Usage: "Envelope kinds to print: message, notification, command",
				Value: cli.NewStringSlice("message", "notification"),
			},
			&cli.BoolFlag{
				Name:  "ack",
				Usage: "Answer messages with a consumed notification",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Exit after this many envelopes (0 = unlimited)",
			},
		},
		Action: listenAction,
	}
}

func parseKinds(names []string) ([]domain.Kind, error) {
	var kinds []domain.Kind
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "message", "messages":
			kinds = append(kinds, domain.KindMessage)
		case "notification", "notifications":
			kinds = append(kinds, domain.KindNotification)
		case "command", "commands":
			kinds = append(kinds, domain.KindCommand)
		default:
			return nil, fmt.Errorf("unknown envelope kind %q", name)
		}
	}
	return kinds, nil
}

// envelopePrinter writes envelopes in the selected format, one at a time.
type envelopePrinter struct {
	mu      sync.Mutex
	w       io.Writer
	format  output.Format
	palette output.Palette
}

func newEnvelopePrinter(c *cli.Context) *envelopePrinter {
	p := &envelopePrinter{w: c.App.Writer, format: outputFormat(c), palette: palette(c)}
	if p.palette.Enabled() && c.App.Writer == os.Stdout {
		p.w = output.Stdout()
	}
	return p
}

func (p *envelopePrinter) Print(env domain.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.format {
	case output.FormatJSON:
		_ = (&output.JSONFormatter{Compact: true}).Format(p.w, env)
	case output.FormatYAML:
		fmt.Fprintln(p.w, "---")
		_ = (&output.YAMLFormatter{}).Format(p.w, env)
	default:
		fmt.Fprintln(p.w, p.palette.Line(env))
	}
}

func listenAction(c *cli.Context) error {
	kinds, err := parseKinds(c.StringSlice("kind"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cctx, cancel := requestContext(c)
	sess, err := EnsureConnected(cctx, c)
	cancel()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.ErrWriter, "listening as %s\n", sess.Node())

	lctx, done := context.WithCancel(ctx)
	defer done()

	printer := newEnvelopePrinter(c)
	limit := c.Int("count")
	var mu sync.Mutex
	seen := 0

	return sess.Listen(lctx, kinds, func(env domain.Envelope) {
		mu.Lock()
		seen++
		last := limit > 0 && seen >= limit
		over := limit > 0 && seen > limit
		mu.Unlock()
		if over {
			return
		}

		printer.Print(env)
		if m, ok := env.(*domain.Message); ok && c.Bool("ack") {
			if err := sess.Notify(lctx, m, domain.EventConsumed); err != nil {
				PrintError("acknowledge %s: %v", m.ID, err)
			}
		}
		if last {
			done()
		}
	})
}
