package command

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/lime-go/internal/core/domain"
)

// ResourceResult is printed by get, set and delete.
type ResourceResult struct {
	URI    string `json:"uri"`
	Type   string `json:"type,omitempty"`
	Value  string `json:"value,omitempty"`
	Status string `json:"status"`
}

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch a resource from the server",
		ArgsUsage: "URI",
		Action: func(c *cli.Context) error {
			uri, err := requireURI(c)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(c)
			defer cancel()
			sess, err := EnsureConnected(ctx, c)
			if err != nil {
				return err
			}

			doc, err := sess.Get(ctx, uri)
			if err != nil {
				return err
			}
			value, err := domain.DocumentString(doc)
			if err != nil {
				return err
			}
			return printResult(c, ResourceResult{
				URI:    uri,
				Type:   doc.MediaType().String(),
				Value:  value,
				Status: string(domain.StatusSuccess),
			})
		},
	}
}

// SetCommand returns the set command.
func SetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Store a resource on the server",
		ArgsUsage: "URI [VALUE...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "type",
				Usage: "Media type of the resource",
				Value: domain.MediaTypeTextPlain,
			},
			&cli.StringFlag{
				Name:  "value",
				Usage: "Resource value (\"-\" reads stdin); defaults to the remaining arguments",
			},
		},
		Action: func(c *cli.Context) error {
			uri, err := requireURI(c)
			if err != nil {
				return err
			}
			value, err := resourceValue(c)
			if err != nil {
				return err
			}
			doc, err := parseContent(c.String("type"), value)
			if err != nil {
				return err
			}

			ctx, cancel := requestContext(c)
			defer cancel()
			sess, err := EnsureConnected(ctx, c)
			if err != nil {
				return err
			}
			if err := sess.Set(ctx, uri, doc); err != nil {
				return err
			}
			return printResult(c, ResourceResult{
				URI:    uri,
				Type:   doc.MediaType().String(),
				Value:  value,
				Status: string(domain.StatusSuccess),
			})
		},
	}
}

// DeleteCommand returns the delete command.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Remove a resource from the server",
		ArgsUsage: "URI",
		Action: func(c *cli.Context) error {
			uri, err := requireURI(c)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(c)
			defer cancel()
			sess, err := EnsureConnected(ctx, c)
			if err != nil {
				return err
			}
			if err := sess.Delete(ctx, uri); err != nil {
				return err
			}
			return printResult(c, ResourceResult{URI: uri, Status: string(domain.StatusSuccess)})
		},
	}
}

func requireURI(c *cli.Context) (string, error) {
	uri := c.Args().First()
	if uri == "" {
		return "", fmt.Errorf("resource URI required")
	}
	return uri, nil
}

func resourceValue(c *cli.Context) (string, error) {
	value := c.String("value")
	switch {
	case value == "-":
		in := c.App.Reader
		if in == nil {
			in = os.Stdin
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	case value != "":
		return value, nil
	case c.NArg() > 1:
		return strings.Join(c.Args().Tail(), " "), nil
	default:
		return "", fmt.Errorf("resource value required (--value or arguments)")
	}
}
