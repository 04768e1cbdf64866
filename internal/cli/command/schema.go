package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/lime-go/internal/cli/output"
)

// The types below describe the JSON form of each envelope kind. They
// exist for schema generation only; the domain types marshal themselves.

type envelopeHeaderSchema struct {
	ID       string            `json:"id,omitempty" jsonschema:"description=Envelope identifier"`
	From     string            `json:"from,omitempty" jsonschema:"description=Originator node (name@domain/instance)"`
	To       string            `json:"to,omitempty" jsonschema:"description=Destination node (name@domain/instance)"`
	Pp       string            `json:"pp,omitempty" jsonschema:"description=Node acting on behalf of the originator"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type reasonSchema struct {
	Code        int    `json:"code" jsonschema:"required"`
	Description string `json:"description,omitempty"`
}

type messageSchema struct {
	envelopeHeaderSchema
	Type    string `json:"type" jsonschema:"required,description=MIME media type of the content,example=text/plain"`
	Content any    `json:"content" jsonschema:"required,description=Document; a JSON string for non-JSON media types"`
}

type notificationSchema struct {
	envelopeHeaderSchema
	Event  string        `json:"event" jsonschema:"required,enum=accepted,enum=validated,enum=authorized,enum=dispatched,enum=received,enum=consumed,enum=failed"`
	Reason *reasonSchema `json:"reason,omitempty"`
}

type commandSchema struct {
	envelopeHeaderSchema
	Method   string        `json:"method" jsonschema:"required,enum=get,enum=set,enum=delete,enum=merge,enum=observe,enum=subscribe"`
	URI      string        `json:"uri,omitempty" jsonschema:"example=/presence"`
	Type     string        `json:"type,omitempty"`
	Resource any           `json:"resource,omitempty"`
	Status   string        `json:"status,omitempty" jsonschema:"enum=success,enum=failure"`
	Reason   *reasonSchema `json:"reason,omitempty"`
}

type sessionSchema struct {
	envelopeHeaderSchema
	State              string        `json:"state" jsonschema:"required,enum=new,enum=negotiating,enum=authenticating,enum=established,enum=finishing,enum=finished,enum=failed"`
	EncryptionOptions  []string      `json:"encryptionOptions,omitempty"`
	Encryption         string        `json:"encryption,omitempty" jsonschema:"enum=none,enum=tls"`
	CompressionOptions []string      `json:"compressionOptions,omitempty"`
	Compression        string        `json:"compression,omitempty" jsonschema:"enum=none,enum=gzip"`
	SchemeOptions      []string      `json:"schemeOptions,omitempty"`
	Scheme             string        `json:"scheme,omitempty" jsonschema:"enum=guest,enum=plain,enum=key,enum=transport"`
	Authentication     any           `json:"authentication,omitempty"`
	Reason             *reasonSchema `json:"reason,omitempty"`
}

var envelopeSchemas = map[string]any{
	"message":      new(messageSchema),
	"notification": new(notificationSchema),
	"command":      new(commandSchema),
	"session":      new(sessionSchema),
}

// EnvelopeSchema returns the JSON schema of an envelope kind.
func EnvelopeSchema(kind string) (*jsonschema.Schema, error) {
	v, ok := envelopeSchemas[strings.ToLower(kind)]
	if !ok {
		return nil, fmt.Errorf("unknown envelope kind %q (want %s)", kind, strings.Join(envelopeKinds(), ", "))
	}
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true, Anonymous: true}
	s := r.Reflect(v)
	s.Title = "LIME " + strings.ToLower(kind) + " envelope"
	return s, nil
}

func envelopeKinds() []string {
	kinds := make([]string, 0, len(envelopeSchemas))
	for k := range envelopeSchemas {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// SchemaCommand returns the schema command.
func SchemaCommand() *cli.Command {
	return &cli.Command{
		Name:      "schema",
		Usage:     "Print the JSON schema of an envelope kind (all kinds when omitted)",
		ArgsUsage: "[message|notification|command|session]",
		Action: func(c *cli.Context) error {
			kinds := envelopeKinds()
			if c.NArg() > 0 {
				kinds = c.Args().Slice()
			}

			out := make(map[string]*jsonschema.Schema, len(kinds))
			for _, kind := range kinds {
				s, err := EnvelopeSchema(kind)
				if err != nil {
					return err
				}
				out[strings.ToLower(kind)] = s
			}
			var data any = out
			if len(out) == 1 {
				data = out[strings.ToLower(kinds[0])]
			}
			if outputFormat(c) == output.FormatYAML {
				return (&output.YAMLFormatter{}).Format(c.App.Writer, data)
			}
			return (&output.JSONFormatter{}).Format(c.App.Writer, data)
		},
	}
}
