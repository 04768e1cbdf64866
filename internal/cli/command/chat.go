package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/lime-go/internal/cli/repl"
	"github.com/yndnr/lime-go/internal/core/domain"
)

// ChatCommand returns the chat command.
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive session (type help for commands)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "to",
				Usage: "Initial destination of send (the server when empty)",
			},
		},
		Action: chatAction,
	}
}

func chatAction(c *cli.Context) error {
	to, err := parseDestination(c.String("to"))
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

	historyFile := GetConfig(c).HistoryFile
	if historyFile == "" {
		historyFile = repl.DefaultHistoryFile()
	}
	history := repl.NewHistory(historyFile)
	if err := history.Load(); err != nil {
		PrintError("load history: %v", err)
	}

	in := c.App.Reader
	if in == nil {
		in = os.Stdin
	}
	r := repl.New(in, c.App.Writer, repl.WithPrompt(sess.Node().Name+"> "), repl.WithHistory(history))
	pal := palette(c)

	request := func(ctx context.Context) (context.Context, context.CancelFunc) {
		return context.WithTimeout(ctx, c.Duration("timeout"))
	}

	r.Handle("to", "to [NODE]: show or change the destination of send", func(_ context.Context, args []string) error {
		if len(args) > 0 {
			n, err := parseDestination(args[0])
			if err != nil {
				return err
			}
			to = n
		}
		r.Printf("destination: %s\n", destinationName(to, sess.Remote()))
		return nil
	})
	r.Handle("send", "send TEXT...: send a text message", func(ctx context.Context, args []string) error {
		if len(args) == 0 {
			return errors.New("usage: send TEXT...")
		}
		rctx, cancel := request(ctx)
		defer cancel()
		m, err := sess.Send(rctx, to, domain.NewPlainText(strings.Join(args, " ")))
		if err != nil {
			return err
		}
		r.Printf("sent %s to %s\n", m.ID, destinationName(to, sess.Remote()))
		return nil
	})
	r.Handle("get", "get URI: fetch a resource", func(ctx context.Context, args []string) error {
		if len(args) != 1 {
			return errors.New("usage: get URI")
		}
		rctx, cancel := request(ctx)
		defer cancel()
		doc, err := sess.Get(rctx, args[0])
		if err != nil {
			return err
		}
		value, err := domain.DocumentString(doc)
		if err != nil {
			return err
		}
		r.Printf("%s (%s): %s\n", args[0], doc.MediaType(), value)
		return nil
	})
	r.Handle("set", "set URI VALUE...: store a text resource", func(ctx context.Context, args []string) error {
		if len(args) < 2 {
			return errors.New("usage: set URI VALUE...")
		}
		rctx, cancel := request(ctx)
		defer cancel()
		if err := sess.Set(rctx, args[0], domain.NewPlainText(strings.Join(args[1:], " "))); err != nil {
			return err
		}
		r.Printf("%s stored\n", args[0])
		return nil
	})
	r.Handle("delete", "delete URI: remove a resource", func(ctx context.Context, args []string) error {
		if len(args) != 1 {
			return errors.New("usage: delete URI")
		}
		rctx, cancel := request(ctx)
		defer cancel()
		if err := sess.Delete(rctx, args[0]); err != nil {
			return err
		}
		r.Printf("%s deleted\n", args[0])
		return nil
	})
	r.Handle("who", "who: show this session", func(context.Context, []string) error {
		r.Printf("%s (session %s) on %s\n", sess.Node(), sess.ID(), sess.Remote())
		return nil
	})

	lctx, done := context.WithCancel(ctx)
	defer done()
	go func() {
		err := sess.Listen(lctx, []domain.Kind{domain.KindMessage, domain.KindNotification}, func(env domain.Envelope) {
			r.Printf("%s\n", pal.Line(env))
		})
		if err != nil && lctx.Err() == nil {
			r.Printf("session ended: %v\n", err)
			done()
		}
	}()

	r.Printf("connected as %s, type help for commands\n", sess.Node())
	runErr := r.Run(lctx)
	if err := history.Save(); err != nil {
		PrintError("save history: %v", err)
	}
	return runErr
}

func destinationName(to *domain.Node, server domain.Node) string {
	if to == nil {
		return server.String()
	}
	return to.String()
}
