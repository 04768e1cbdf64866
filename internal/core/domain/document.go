package domain

import (
	"encoding/json"
	"strings"
	"sync"
)

// Well-known media types.
const (
	MediaTypeTextPlain = "text/plain"
	MediaTypeJSON      = "application/json"
	MediaTypePing      = "application/vnd.lime.ping+json"
)

// MediaType is a MIME type with an optional structured syntax suffix,
// e.g. application/vnd.lime.ping+json.
type MediaType struct {
	Type    string
	Subtype string
	Suffix  string
}

// ParseMediaType parses type/subtype[+suffix]. Parameters are discarded.
func ParseMediaType(s string) (MediaType, error) {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	s = strings.ToLower(strings.TrimSpace(s))
	typ, sub, ok := strings.Cut(s, "/")
	if !ok || typ == "" || sub == "" {
		return MediaType{}, NewArgumentError("mediaType", "invalid media type '"+s+"'")
	}
	mt := MediaType{Type: typ, Subtype: sub}
	if i := strings.LastIndexByte(sub, '+'); i >= 0 {
		mt.Subtype, mt.Suffix = sub[:i], sub[i+1:]
	}
	return mt, nil
}

// MustParseMediaType is like ParseMediaType but panics on error.
func MustParseMediaType(s string) MediaType {
	mt, err := ParseMediaType(s)
	if err != nil {
		panic(err)
	}
	return mt
}

// String implements fmt.Stringer.
func (m MediaType) String() string {
	if m.Suffix != "" {
		return m.Type + "/" + m.Subtype + "+" + m.Suffix
	}
	return m.Type + "/" + m.Subtype
}

// IsZero reports whether the media type is unset.
func (m MediaType) IsZero() bool {
	return m == MediaType{}
}

// IsJSON reports whether documents of this type are JSON encoded.
func (m MediaType) IsJSON() bool {
	return m.Suffix == "json" || m.Subtype == "json"
}

// MarshalText implements encoding.TextMarshaler.
func (m MediaType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MediaType) UnmarshalText(text []byte) error {
	parsed, err := ParseMediaType(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Document is the payload of messages and commands.
type Document interface {
	MediaType() MediaType
}

// PlainDocument is a non-JSON document carried as a JSON string.
type PlainDocument struct {
	Type  MediaType
	Value string
}

// NewPlainText builds a text/plain document.
func NewPlainText(s string) *PlainDocument {
	return &PlainDocument{Type: MustParseMediaType(MediaTypeTextPlain), Value: s}
}

// MediaType implements Document.
func (d *PlainDocument) MediaType() MediaType { return d.Type }

// String implements fmt.Stringer.
func (d *PlainDocument) String() string { return d.Value }

// MarshalJSON implements json.Marshaler.
func (d *PlainDocument) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *PlainDocument) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Value)
}

// JSONDocument is a JSON document with no registered Go type.
type JSONDocument struct {
	Type  MediaType
	Value map[string]any
}

// NewJSONDocument builds a generic JSON document.
func NewJSONDocument(mediaType string, value map[string]any) *JSONDocument {
	return &JSONDocument{Type: MustParseMediaType(mediaType), Value: value}
}

// MediaType implements Document.
func (d *JSONDocument) MediaType() MediaType { return d.Type }

// MarshalJSON implements json.Marshaler.
func (d *JSONDocument) MarshalJSON() ([]byte, error) {
	if d.Value == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *JSONDocument) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Value)
}

// Ping is the application/vnd.lime.ping+json document.
type Ping struct{}

// MediaType implements Document.
func (Ping) MediaType() MediaType { return MustParseMediaType(MediaTypePing) }

// ============================================================================
// Document registry
// ============================================================================

// DocumentFactory returns an empty document ready to be unmarshaled into.
type DocumentFactory func() Document

var (
	documentsMu sync.RWMutex
	documents   = make(map[string]DocumentFactory)
)

func init() {
	RegisterDocument(MediaTypeTextPlain, func() Document { return NewPlainText("") })
	RegisterDocument(MediaTypePing, func() Document { return &Ping{} })
}

// RegisterDocument associates a media type with a document constructor.
// Later registrations replace earlier ones.
func RegisterDocument(mediaType string, factory DocumentFactory) {
	mt := MustParseMediaType(mediaType)
	documentsMu.Lock()
	documents[mt.String()] = factory
	documentsMu.Unlock()
}

// RegisteredMediaTypes returns the media types with a registered constructor.
func RegisteredMediaTypes() []string {
	documentsMu.RLock()
	defer documentsMu.RUnlock()
	out := make([]string, 0, len(documents))
	for k := range documents {
		out = append(out, k)
	}
	return out
}

// DecodeDocument builds a document of the given media type from its JSON
// representation. Unregistered JSON types decode into a JSONDocument, any
// other type into a PlainDocument.
func DecodeDocument(mt MediaType, raw json.RawMessage) (Document, error) {
	documentsMu.RLock()
	factory, ok := documents[mt.String()]
	documentsMu.RUnlock()

	var doc Document
	switch {
	case ok:
		doc = factory()
	case mt.IsJSON():
		doc = &JSONDocument{Type: mt}
	default:
		doc = &PlainDocument{Type: mt}
	}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, ErrMalformedEnvelope.WithDetails("document of type " + mt.String()).WithCause(err)
	}
	return doc, nil
}

// DocumentFromString builds a document from a raw textual payload, as used
// at the HTTP boundary where bodies are not JSON-quoted.
func DocumentFromString(mt MediaType, s string) (Document, error) {
	if mt.IsJSON() {
		return DecodeDocument(mt, json.RawMessage(s))
	}
	doc, err := DecodeDocument(mt, nil)
	if err != nil {
		return nil, err
	}
	if p, ok := doc.(*PlainDocument); ok {
		p.Value = s
		return p, nil
	}
	return &PlainDocument{Type: mt, Value: s}, nil
}

// DocumentString renders a document as its textual payload.
func DocumentString(doc Document) (string, error) {
	if p, ok := doc.(*PlainDocument); ok {
		return p.Value, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
