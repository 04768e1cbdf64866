package httpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/yosida95/uritemplate/v3"

	"github.com/yndnr/lime-go/internal/core/domain"
)

var (
	textMediaType  = contenttype.NewMediaType(domain.MediaTypeTextPlain)
	jsonMediaType  = contenttype.NewMediaType(domain.MediaTypeJSON)
	listMediaTypes = []contenttype.MediaType{textMediaType, jsonMediaType}
)

// DefaultProcessors returns the built-in message, notification and command
// processors.
func DefaultProcessors() []Processor {
	return []Processor{
		NewProcessor("/messages", sendMessage, http.MethodPost),
		NewProcessor("/messages", listMessages, http.MethodGet),
		NewProcessor("/messages/{id}", getMessage, http.MethodGet),
		NewProcessor("/messages/{id}", deleteMessage, http.MethodDelete),
		NewProcessor("/notifications", sendNotification, http.MethodPost),
		NewProcessor("/notifications", listNotifications, http.MethodGet),
		NewProcessor("/notifications/{id}", getNotification, http.MethodGet),
		NewProcessor("/commands/{+path}", processCommand, http.MethodGet, http.MethodPost, http.MethodDelete),
	}
}

// NewDefaultRegistry returns a registry holding DefaultProcessors.
func NewDefaultRegistry() *Registry {
	return NewRegistry(DefaultProcessors()...)
}

// asHTTPRequest exposes the headers of req to content negotiation.
func asHTTPRequest(req *Request) *http.Request {
	return &http.Request{Method: req.Method, URL: req.URL, Header: req.Header}
}

// requestMediaType returns the media type of the request body, defaulting
// to fallback when the request has no Content-Type.
func requestMediaType(req *Request, fallback string) (domain.MediaType, error) {
	if req.Header.Get("Content-Type") == "" {
		return domain.ParseMediaType(fallback)
	}
	ct, err := contenttype.GetMediaType(asHTTPRequest(req))
	if err != nil {
		return domain.MediaType{}, domain.NewArgumentError("content-type", err.Error())
	}
	return domain.ParseMediaType(ct.Type + "/" + ct.Subtype)
}

func badRequest(req *Request, err error) *Response {
	return NewTextResponse(req, http.StatusBadRequest, err.Error())
}

// readHeader fills the envelope fields carried by headers or query
// parameters.
func readHeader(req *Request, h *domain.EnvelopeHeader) error {
	h.ID = req.Param(HeaderID, QueryID)
	nodes := []struct {
		header, query string
		dst           **domain.Node
	}{
		{HeaderFrom, QueryFrom, &h.From},
		{HeaderTo, QueryTo, &h.To},
		{HeaderPp, QueryPp, &h.Pp},
	}
	for _, n := range nodes {
		v := req.Param(n.header, n.query)
		if v == "" {
			continue
		}
		node, err := domain.ParseNode(v)
		if err != nil {
			return err
		}
		*n.dst = domain.NodePtr(node)
	}
	return nil
}

// writeHeader copies the envelope fields into the response headers.
func writeHeader(resp *Response, h *domain.EnvelopeHeader) {
	if h.ID != "" {
		resp.Header.Set(HeaderID, h.ID)
	}
	if h.From != nil {
		resp.Header.Set(HeaderFrom, h.From.String())
	}
	if h.To != nil {
		resp.Header.Set(HeaderTo, h.To.String())
	}
	if h.Pp != nil {
		resp.Header.Set(HeaderPp, h.Pp.String())
	}
}

// idList answers with ids as a JSON array or one id per line, as the client
// accepts.
func idList(req *Request, ids []string) (*Response, error) {
	mt, _, err := contenttype.GetAcceptableMediaType(asHTTPRequest(req), listMediaTypes)
	if err != nil {
		return NewTextResponse(req, http.StatusNotAcceptable, err.Error()), nil
	}
	if mt.Subtype == jsonMediaType.Subtype {
		body, err := json.Marshal(ids)
		if err != nil {
			return nil, err
		}
		resp := NewResponse(req, http.StatusOK)
		resp.Header.Set("Content-Type", domain.MediaTypeJSON)
		resp.Body = body
		return resp, nil
	}
	if len(ids) == 0 {
		return NewResponse(req, http.StatusOK), nil
	}
	return NewTextResponse(req, http.StatusOK, strings.Join(ids, "\n")), nil
}

func sendMessage(ctx context.Context, req *Request, _ uritemplate.Values, s Session) (*Response, error) {
	mt, err := requestMediaType(req, domain.MediaTypeTextPlain)
	if err != nil {
		return badRequest(req, err), nil
	}
	content, err := domain.DocumentFromString(mt, string(req.Body))
	if err != nil {
		return badRequest(req, err), nil
	}
	m := &domain.Message{Type: mt, Content: content}
	if err := readHeader(req, &m.EnvelopeHeader); err != nil {
		return badRequest(req, err), nil
	}
	if m.ID == "" {
		m.ID = domain.NewID()
	}

	if err := s.SendMessage(ctx, m); err != nil {
		return nil, err
	}

	waitUntil := req.URL.Query().Get(QueryWaitUntil)
	if waitUntil == "" {
		resp := NewResponse(req, http.StatusAccepted)
		resp.Header.Set(HeaderID, m.ID)
		return resp, nil
	}

	n, err := s.WaitNotification(ctx, m.ID, domain.Event(strings.ToLower(waitUntil)))
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return badRequest(req, err), nil
	case domain.IsTimeout(err):
		resp := NewTextResponse(req, http.StatusRequestTimeout, "notification '"+waitUntil+"' not received")
		resp.Header.Set(HeaderID, m.ID)
		return resp, nil
	case err != nil:
		return nil, err
	}

	if n.Event == domain.EventFailed {
		resp := NewResponse(req, http.StatusBadRequest)
		resp.Header.Set(HeaderID, m.ID)
		resp.SetReason(n.Reason)
		return resp, nil
	}
	resp := NewResponse(req, http.StatusCreated)
	resp.Header.Set(HeaderID, m.ID)
	return resp, nil
}

func listMessages(_ context.Context, req *Request, _ uritemplate.Values, s Session) (*Response, error) {
	return idList(req, s.MessageIDs())
}

func getMessage(_ context.Context, req *Request, params uritemplate.Values, s Session) (*Response, error) {
	m, ok := s.TakeMessage(params.Get("id").String())
	if !ok {
		return NewResponse(req, http.StatusNotFound), nil
	}
	body, err := domain.DocumentString(m.Content)
	if err != nil {
		return nil, err
	}
	resp := NewResponse(req, http.StatusOK)
	writeHeader(resp, &m.EnvelopeHeader)
	resp.Header.Set("Content-Type", m.Type.String())
	resp.Body = []byte(body)
	return resp, nil
}

func deleteMessage(_ context.Context, req *Request, params uritemplate.Values, s Session) (*Response, error) {
	if _, ok := s.TakeMessage(params.Get("id").String()); !ok {
		return NewResponse(req, http.StatusNotFound), nil
	}
	return NewResponse(req, http.StatusOK), nil
}

func sendNotification(ctx context.Context, req *Request, _ uritemplate.Values, s Session) (*Response, error) {
	n := &domain.Notification{Event: domain.Event(strings.ToLower(strings.TrimSpace(string(req.Body))))}
	if err := readHeader(req, &n.EnvelopeHeader); err != nil {
		return badRequest(req, err), nil
	}
	if n.ID == "" {
		return badRequest(req, domain.NewArgumentError("id", "must not be empty")), nil
	}
	if _, ok := eventRank[n.Event]; !ok && n.Event != domain.EventFailed {
		return badRequest(req, domain.NewArgumentError("event", "unknown event '"+string(n.Event)+"'")), nil
	}
	if code := req.Header.Get(HeaderReasonCode); code != "" {
		c, err := strconv.Atoi(code)
		if err != nil {
			return badRequest(req, domain.NewArgumentError("reason code", err.Error())), nil
		}
		n.Reason = domain.NewReason(c, req.Header.Get(HeaderReasonDescription))
	}

	if err := s.SendNotification(ctx, n); err != nil {
		return nil, err
	}
	return NewResponse(req, http.StatusAccepted), nil
}

func listNotifications(_ context.Context, req *Request, _ uritemplate.Values, s Session) (*Response, error) {
	return idList(req, s.NotificationIDs())
}

func getNotification(_ context.Context, req *Request, params uritemplate.Values, s Session) (*Response, error) {
	n, ok := s.TakeNotification(params.Get("id").String())
	if !ok {
		return NewResponse(req, http.StatusNotFound), nil
	}
	resp := NewTextResponse(req, http.StatusOK, string(n.Event))
	writeHeader(resp, &n.EnvelopeHeader)
	resp.SetReason(n.Reason)
	return resp, nil
}

var commandMethods = map[string]domain.CommandMethod{
	http.MethodGet:    domain.MethodGet,
	http.MethodPost:   domain.MethodSet,
	http.MethodDelete: domain.MethodDelete,
}

func processCommand(ctx context.Context, req *Request, params uritemplate.Values, s Session) (*Response, error) {
	cmd := &domain.Command{
		Method: commandMethods[req.Method],
		URI:    "/" + strings.TrimPrefix(params.Get("path").String(), "/"),
	}
	if err := readHeader(req, &cmd.EnvelopeHeader); err != nil {
		return badRequest(req, err), nil
	}
	if cmd.ID == "" {
		cmd.ID = domain.NewID()
	}
	if cmd.Method == domain.MethodSet {
		mt, err := requestMediaType(req, domain.MediaTypeJSON)
		if err != nil {
			return badRequest(req, err), nil
		}
		doc, err := domain.DocumentFromString(mt, string(req.Body))
		if err != nil {
			return badRequest(req, err), nil
		}
		cmd.Type, cmd.Resource = mt, doc
	}

	result, err := s.ProcessCommand(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if result.Status != domain.StatusSuccess {
		if result.Reason == nil {
			return nil, domain.ErrInvalidCommandResponse
		}
		status := http.StatusBadRequest
		if result.Reason.Code == domain.ReasonCommandResourceNotFound {
			status = http.StatusNotFound
		}
		resp := NewResponse(req, status)
		resp.Header.Set(HeaderID, result.ID)
		resp.SetReason(result.Reason)
		return resp, nil
	}

	if result.Resource == nil {
		resp := NewResponse(req, http.StatusOK)
		resp.Header.Set(HeaderID, result.ID)
		return resp, nil
	}
	body, err := domain.DocumentString(result.Resource)
	if err != nil {
		return nil, err
	}
	resp := NewResponse(req, http.StatusOK)
	resp.Header.Set(HeaderID, result.ID)
	resp.Header.Set("Content-Type", result.Type.String())
	resp.Body = []byte(body)
	return resp, nil
}
