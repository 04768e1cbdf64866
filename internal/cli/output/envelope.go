package output

import (
	"fmt"
	"strings"

	"github.com/yndnr/lime-go/internal/core/domain"
)

// EnvelopeRow is the table form of an envelope.
type EnvelopeRow struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Pp     string `json:"pp" table:"wide"`
	Detail string `json:"detail"`
}

// Summarize flattens env into a row.
func Summarize(env domain.Envelope) EnvelopeRow {
	h := env.Header()
	row := EnvelopeRow{
		Kind: env.Kind().String(),
		ID:   h.ID,
		From: nodeString(h.From),
		To:   nodeString(h.To),
		Pp:   nodeString(h.Pp),
	}

	switch e := env.(type) {
	case *domain.Message:
		row.Detail = e.Type.String() + " " + documentText(e.Content)
	case *domain.Notification:
		row.Detail = string(e.Event)
		if e.Reason != nil {
			row.Detail += ": " + e.Reason.String()
		}
	case *domain.Command:
		parts := []string{string(e.Method), e.URI}
		if e.Status != domain.StatusPending {
			parts = append(parts, string(e.Status))
		}
		if e.Reason != nil {
			parts = append(parts, e.Reason.String())
		}
		if e.Resource != nil {
			parts = append(parts, documentText(e.Resource))
		}
		row.Detail = strings.Join(parts, " ")
	case *domain.Session:
		row.Detail = e.State.String()
		if e.Reason != nil {
			row.Detail += ": " + e.Reason.String()
		}
	}
	return row
}

// Line renders env on one line, colored by kind.
func (p Palette) Line(env domain.Envelope) string {
	row := Summarize(env)
	kind := p.Paint(kindColor(env), fmt.Sprintf("%-12s", row.Kind))
	detail := row.Detail
	if n, ok := env.(*domain.Notification); ok && n.Event == domain.EventFailed {
		detail = p.Paint(ColorRed, detail)
	}
	return fmt.Sprintf("%s %s %s -> %s %s", kind, orDash(row.ID), orDash(row.From), orDash(row.To), detail)
}

func kindColor(env domain.Envelope) Color {
	switch env.Kind() {
	case domain.KindMessage:
		return ColorGreen
	case domain.KindNotification:
		return ColorYellow
	case domain.KindCommand:
		return ColorCyan
	default:
		return ColorMagenta
	}
}

func nodeString(n *domain.Node) string {
	if n == nil {
		return ""
	}
	return n.String()
}

func documentText(doc domain.Document) string {
	if doc == nil {
		return ""
	}
	s, err := domain.DocumentString(doc)
	if err != nil {
		return "<" + doc.MediaType().String() + ">"
	}
	return s
}
