package domain

import (
	"encoding/json"
)

// Kind identifies the variant of an envelope.
type Kind uint8

// Envelope kinds.
const (
	KindMessage Kind = iota
	KindNotification
	KindCommand
	KindSession
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindNotification:
		return "notification"
	case KindCommand:
		return "command"
	case KindSession:
		return "session"
	default:
		return "unknown"
	}
}

// EnvelopeHeader holds the fields shared by every envelope kind.
type EnvelopeHeader struct {
	ID       string            `json:"id,omitempty"`
	From     *Node             `json:"from,omitempty"`
	To       *Node             `json:"to,omitempty"`
	Pp       *Node             `json:"pp,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Envelope is implemented by Message, Notification, Command and Session only.
type Envelope interface {
	Kind() Kind
	Header() *EnvelopeHeader
	isEnvelope()
}

// ============================================================================
// Message
// ============================================================================

// Message carries a content document between nodes.
type Message struct {
	EnvelopeHeader
	Type    MediaType
	Content Document
}

// NewMessage builds a message with a fresh id addressed to to.
func NewMessage(to *Node, content Document) *Message {
	return &Message{
		EnvelopeHeader: EnvelopeHeader{ID: NewID(), To: to},
		Type:           content.MediaType(),
		Content:        content,
	}
}

// Kind implements Envelope.
func (*Message) Kind() Kind { return KindMessage }

// Header implements Envelope.
func (m *Message) Header() *EnvelopeHeader { return &m.EnvelopeHeader }

func (*Message) isEnvelope() {}

type messageWire struct {
	EnvelopeHeader
	Type    *MediaType      `json:"type,omitempty"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON implements json.Marshaler.
func (m *Message) MarshalJSON() ([]byte, error) {
	w := messageWire{EnvelopeHeader: m.EnvelopeHeader}
	mt := m.Type
	if mt.IsZero() && m.Content != nil {
		mt = m.Content.MediaType()
	}
	if !mt.IsZero() {
		w.Type = &mt
	}
	raw, err := json.Marshal(m.Content)
	if err != nil {
		return nil, err
	}
	w.Content = raw
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.EnvelopeHeader = w.EnvelopeHeader
	if w.Type == nil {
		return ErrMalformedEnvelope.WithDetails("message without type")
	}
	m.Type = *w.Type
	doc, err := DecodeDocument(m.Type, w.Content)
	if err != nil {
		return err
	}
	m.Content = doc
	return nil
}

// ============================================================================
// Notification
// ============================================================================

// Event is the lifecycle event reported by a notification.
type Event string

// Notification events.
const (
	EventAccepted   Event = "accepted"
	EventValidated  Event = "validated"
	EventAuthorized Event = "authorized"
	EventDispatched Event = "dispatched"
	EventReceived   Event = "received"
	EventConsumed   Event = "consumed"
	EventFailed     Event = "failed"
)

// Notification reports the progress of a message.
type Notification struct {
	EnvelopeHeader
	Event  Event   `json:"event"`
	Reason *Reason `json:"reason,omitempty"`
}

// NewNotification builds a notification for the message with the given id.
func NewNotification(id string, event Event) *Notification {
	return &Notification{EnvelopeHeader: EnvelopeHeader{ID: id}, Event: event}
}

// Kind implements Envelope.
func (*Notification) Kind() Kind { return KindNotification }

// Header implements Envelope.
func (n *Notification) Header() *EnvelopeHeader { return &n.EnvelopeHeader }

func (*Notification) isEnvelope() {}

// ============================================================================
// Command
// ============================================================================

// CommandMethod is the action requested by a command.
type CommandMethod string

// Command methods.
const (
	MethodGet       CommandMethod = "get"
	MethodSet       CommandMethod = "set"
	MethodDelete    CommandMethod = "delete"
	MethodMerge     CommandMethod = "merge"
	MethodObserve   CommandMethod = "observe"
	MethodSubscribe CommandMethod = "subscribe"
)

// CommandStatus is the outcome of a command.
type CommandStatus string

// Command statuses. Requests carry StatusPending (omitted on the wire).
const (
	StatusPending CommandStatus = ""
	StatusSuccess CommandStatus = "success"
	StatusFailure CommandStatus = "failure"
)

// Command is a request/response envelope over a resource URI.
type Command struct {
	EnvelopeHeader
	Method   CommandMethod
	URI      string
	Type     MediaType
	Resource Document
	Status   CommandStatus
	Reason   *Reason
}

// Kind implements Envelope.
func (*Command) Kind() Kind { return KindCommand }

// Header implements Envelope.
func (c *Command) Header() *EnvelopeHeader { return &c.EnvelopeHeader }

func (*Command) isEnvelope() {}

// Response builds a response to c echoing its id and swapping from/to.
func (c *Command) Response(status CommandStatus) *Command {
	return &Command{
		EnvelopeHeader: EnvelopeHeader{ID: c.ID, From: c.To, To: c.From},
		Method:         c.Method,
		Status:         status,
	}
}

// FailureResponse builds a failed response to c.
func (c *Command) FailureResponse(reason *Reason) *Command {
	resp := c.Response(StatusFailure)
	resp.Reason = reason
	return resp
}

type commandWire struct {
	EnvelopeHeader
	Method   CommandMethod   `json:"method"`
	URI      string          `json:"uri,omitempty"`
	Type     *MediaType      `json:"type,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Status   CommandStatus   `json:"status,omitempty"`
	Reason   *Reason         `json:"reason,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c *Command) MarshalJSON() ([]byte, error) {
	w := commandWire{
		EnvelopeHeader: c.EnvelopeHeader,
		Method:         c.Method,
		URI:            c.URI,
		Status:         c.Status,
		Reason:         c.Reason,
	}
	if c.Resource != nil {
		mt := c.Type
		if mt.IsZero() {
			mt = c.Resource.MediaType()
		}
		w.Type = &mt
		raw, err := json.Marshal(c.Resource)
		if err != nil {
			return nil, err
		}
		w.Resource = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Command) UnmarshalJSON(data []byte) error {
	var w commandWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.EnvelopeHeader = w.EnvelopeHeader
	c.Method = w.Method
	c.URI = w.URI
	c.Status = w.Status
	c.Reason = w.Reason
	c.Type = MediaType{}
	c.Resource = nil
	if w.Type != nil {
		c.Type = *w.Type
		doc, err := DecodeDocument(c.Type, w.Resource)
		if err != nil {
			return err
		}
		c.Resource = doc
	}
	return nil
}

// ============================================================================
// Session
// ============================================================================

// SessionState is a state of the session state machine. States are ordered;
// Failed is reachable from any non-terminal state.
type SessionState uint8

// Session states.
const (
	SessionNew SessionState = iota
	SessionNegotiating
	SessionAuthenticating
	SessionEstablished
	SessionFinishing
	SessionFinished
	SessionFailed
)

var sessionStateNames = [...]string{
	SessionNew:            "new",
	SessionNegotiating:    "negotiating",
	SessionAuthenticating: "authenticating",
	SessionEstablished:    "established",
	SessionFinishing:      "finishing",
	SessionFinished:       "finished",
	SessionFailed:         "failed",
}

// String implements fmt.Stringer.
func (s SessionState) String() string {
	if int(s) < len(sessionStateNames) {
		return sessionStateNames[s]
	}
	return "unknown"
}

// IsTerminal reports whether no further transition is possible.
func (s SessionState) IsTerminal() bool {
	return s == SessionFinished || s == SessionFailed
}

// MarshalText implements encoding.TextMarshaler.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SessionState) UnmarshalText(text []byte) error {
	for i, name := range sessionStateNames {
		if name == string(text) {
			*s = SessionState(i)
			return nil
		}
	}
	return ErrMalformedEnvelope.WithDetails("unknown session state '" + string(text) + "'")
}

// SessionCompression is a transport compression option.
type SessionCompression string

// Compression options.
const (
	CompressionNone SessionCompression = "none"
	CompressionGzip SessionCompression = "gzip"
)

// SessionEncryption is a transport encryption option.
type SessionEncryption string

// Encryption options.
const (
	EncryptionNone SessionEncryption = "none"
	EncryptionTLS  SessionEncryption = "tls"
)

// Session negotiates, authenticates and terminates a channel.
type Session struct {
	EnvelopeHeader
	State              SessionState
	CompressionOptions []SessionCompression
	Compression        SessionCompression
	EncryptionOptions  []SessionEncryption
	Encryption         SessionEncryption
	SchemeOptions      []AuthenticationScheme
	Scheme             AuthenticationScheme
	Authentication     Authentication
	Reason             *Reason
}

// Kind implements Envelope.
func (*Session) Kind() Kind { return KindSession }

// Header implements Envelope.
func (s *Session) Header() *EnvelopeHeader { return &s.EnvelopeHeader }

func (*Session) isEnvelope() {}

type sessionWire struct {
	EnvelopeHeader
	State              SessionState           `json:"state"`
	EncryptionOptions  []SessionEncryption    `json:"encryptionOptions,omitempty"`
	Encryption         SessionEncryption      `json:"encryption,omitempty"`
	CompressionOptions []SessionCompression   `json:"compressionOptions,omitempty"`
	Compression        SessionCompression     `json:"compression,omitempty"`
	SchemeOptions      []AuthenticationScheme `json:"schemeOptions,omitempty"`
	Scheme             AuthenticationScheme   `json:"scheme,omitempty"`
	Authentication     json.RawMessage        `json:"authentication,omitempty"`
	Reason             *Reason                `json:"reason,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s *Session) MarshalJSON() ([]byte, error) {
	w := sessionWire{
		EnvelopeHeader:     s.EnvelopeHeader,
		State:              s.State,
		EncryptionOptions:  s.EncryptionOptions,
		Encryption:         s.Encryption,
		CompressionOptions: s.CompressionOptions,
		Compression:        s.Compression,
		SchemeOptions:      s.SchemeOptions,
		Scheme:             s.Scheme,
		Reason:             s.Reason,
	}
	if s.Authentication != nil {
		if w.Scheme == "" {
			w.Scheme = s.Authentication.Scheme()
		}
		raw, err := json.Marshal(s.Authentication)
		if err != nil {
			return nil, err
		}
		w.Authentication = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Session) UnmarshalJSON(data []byte) error {
	var w sessionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Session{
		EnvelopeHeader:     w.EnvelopeHeader,
		State:              w.State,
		EncryptionOptions:  w.EncryptionOptions,
		Encryption:         w.Encryption,
		CompressionOptions: w.CompressionOptions,
		Compression:        w.Compression,
		SchemeOptions:      w.SchemeOptions,
		Scheme:             w.Scheme,
		Reason:             w.Reason,
	}
	if len(w.Authentication) > 0 && w.Scheme != "" {
		auth, err := DecodeAuthentication(w.Scheme, w.Authentication)
		if err != nil {
			return err
		}
		s.Authentication = auth
	}
	return nil
}
