package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeEnvelope_InfersKind(t *testing.T) {
	tests := []struct {
		name string
		data string
		kind Kind
	}{
		{"session", `{"id":"s1","state":"new"}`, KindSession},
		{"command", `{"id":"c1","method":"get","uri":"/ping"}`, KindCommand},
		{"notification", `{"id":"m1","event":"received"}`, KindNotification},
		{"message", `{"id":"m1","type":"text/plain","content":"hi"}`, KindMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(tt.data))
			if err != nil {
				t.Fatalf("DecodeEnvelope() error = %v", err)
			}
			if env.Kind() != tt.kind {
				t.Errorf("Kind() = %v, want %v", env.Kind(), tt.kind)
			}
		})
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	for _, data := range []string{`not json`, `{"id":"x"}`, `{"id":"x","state":"bogus"}`} {
		if _, err := DecodeEnvelope([]byte(data)); !errors.Is(err, ErrMalformedEnvelope) {
			t.Errorf("DecodeEnvelope(%s) error = %v, want ErrMalformedEnvelope", data, err)
		}
	}
}

func TestMessage_PlainText(t *testing.T) {
	msg := NewMessage(NodePtr(MustParseNode("bob@example.com")), NewPlainText("hello"))

	data, err := EncodeEnvelope(msg)
	if err != nil {
		t.Fatalf("EncodeEnvelope() error = %v", err)
	}
	if !strings.Contains(string(data), `"type":"text/plain"`) || !strings.Contains(string(data), `"content":"hello"`) {
		t.Errorf("EncodeEnvelope() = %s", data)
	}

	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	got := env.(*Message)
	if got.ID != msg.ID {
		t.Errorf("ID = %q, want %q", got.ID, msg.ID)
	}
	text, ok := got.Content.(*PlainDocument)
	if !ok || text.Value != "hello" {
		t.Errorf("Content = %#v", got.Content)
	}
}

func TestMessage_UnregisteredJSON(t *testing.T) {
	data := `{"id":"1","type":"application/x-order+json","content":{"total":10}}`
	env, err := DecodeEnvelope([]byte(data))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	doc, ok := env.(*Message).Content.(*JSONDocument)
	if !ok {
		t.Fatalf("Content = %T, want *JSONDocument", env.(*Message).Content)
	}
	if doc.Value["total"] != float64(10) {
		t.Errorf("Value = %v", doc.Value)
	}
}

func TestCommand_ResourceRoundTrip(t *testing.T) {
	cmd := &Command{
		EnvelopeHeader: EnvelopeHeader{ID: "c1"},
		Method:         MethodSet,
		URI:            "/greeting",
		Resource:       NewPlainText("hi"),
	}

	data, err := EncodeEnvelope(cmd)
	if err != nil {
		t.Fatalf("EncodeEnvelope() error = %v", err)
	}
	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	got := env.(*Command)
	if got.Method != MethodSet || got.URI != "/greeting" || got.Status != StatusPending {
		t.Errorf("got %+v", got)
	}
	if s, _ := DocumentString(got.Resource); s != "hi" {
		t.Errorf("Resource = %q", s)
	}
}

func TestCommand_FailureResponse(t *testing.T) {
	req := &Command{
		EnvelopeHeader: EnvelopeHeader{
			ID:   "c1",
			From: NodePtr(MustParseNode("a@x/1")),
			To:   NodePtr(MustParseNode("b@x/2")),
		},
		Method: MethodGet,
		URI:    "/missing",
	}
	resp := req.FailureResponse(NewReason(ReasonCommandResourceNotFound, "missing"))

	if resp.ID != req.ID || resp.Status != StatusFailure {
		t.Errorf("got %+v", resp)
	}
	if NodeValue(resp.To) != NodeValue(req.From) {
		t.Errorf("To = %v, want %v", resp.To, req.From)
	}
}

func TestSession_Authentication(t *testing.T) {
	s := &Session{
		EnvelopeHeader: EnvelopeHeader{ID: "s1"},
		State:          SessionAuthenticating,
		Authentication: NewPlainAuthentication("secret"),
	}

	data, err := EncodeEnvelope(s)
	if err != nil {
		t.Fatalf("EncodeEnvelope() error = %v", err)
	}
	if !strings.Contains(string(data), `"scheme":"plain"`) {
		t.Errorf("EncodeEnvelope() = %s", data)
	}

	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	got := env.(*Session)
	if got.State != SessionAuthenticating {
		t.Errorf("State = %v", got.State)
	}
	plain, ok := got.Authentication.(*PlainAuthentication)
	if !ok {
		t.Fatalf("Authentication = %T", got.Authentication)
	}
	if pw, _ := plain.DecodedPassword(); pw != "secret" {
		t.Errorf("DecodedPassword() = %q", pw)
	}
}

func TestSession_UnknownScheme(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"state":"authenticating","scheme":"kerberos","authentication":{}}`))
	if !errors.Is(err, ErrUnknownScheme) {
		t.Errorf("error = %v, want ErrUnknownScheme", err)
	}
}

func TestRegisterDocument(t *testing.T) {
	RegisterDocument("application/x-test-order+json", func() Document { return &testOrder{} })

	doc, err := DecodeDocument(MustParseMediaType("application/x-test-order+json"), []byte(`{"total":3}`))
	if err != nil {
		t.Fatalf("DecodeDocument() error = %v", err)
	}
	if o, ok := doc.(*testOrder); !ok || o.Total != 3 {
		t.Errorf("DecodeDocument() = %#v", doc)
	}
}

type testOrder struct {
	Total int `json:"total"`
}

func (*testOrder) MediaType() MediaType { return MustParseMediaType("application/x-test-order+json") }

func TestParseMediaType(t *testing.T) {
	mt, err := ParseMediaType("Application/vnd.lime.ping+json; charset=utf-8")
	if err != nil {
		t.Fatalf("ParseMediaType() error = %v", err)
	}
	if mt.Type != "application" || mt.Subtype != "vnd.lime.ping" || mt.Suffix != "json" {
		t.Errorf("ParseMediaType() = %+v", mt)
	}
	if !mt.IsJSON() {
		t.Error("IsJSON() should be true")
	}
	if _, err := ParseMediaType("nonsense"); err == nil {
		t.Error("ParseMediaType(nonsense) should fail")
	}
}
