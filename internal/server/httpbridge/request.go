package httpbridge

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/yndnr/lime-go/internal/core/domain"
)

// Headers and query parameters understood by the bridge.
const (
	HeaderSession           = "X-Session"
	HeaderSessionID         = "X-Session-Id"
	HeaderSessionExpiration = "X-Session-Expiration"
	HeaderID                = "X-Id"
	HeaderFrom              = "X-From"
	HeaderTo                = "X-To"
	HeaderPp                = "X-Pp"
	HeaderReasonCode        = "X-Reason-Code"
	HeaderReasonDescription = "X-Reason-Description"

	QueryID        = "id"
	QueryFrom      = "from"
	QueryTo        = "to"
	QueryPp        = "pp"
	QueryWaitUntil = "waitUntil"

	SessionKeepAlive = "Keep-Alive"
	SessionClose     = "Close"
)

// Principal is the authenticated HTTP caller.
type Principal struct {
	// Identity is the caller's node; the instance is optional.
	Identity domain.Node

	// Scheme selects the LIME authentication used for the session: plain
	// when Secret is a password, transport when the HTTP layer already
	// verified the caller.
	Scheme domain.AuthenticationScheme

	Secret string
}

// Authentication builds the LIME authentication for the principal.
func (p Principal) Authentication() domain.Authentication {
	switch p.Scheme {
	case domain.SchemePlain:
		return domain.NewPlainAuthentication(p.Secret)
	case domain.SchemeKey:
		return domain.NewKeyAuthentication(p.Secret)
	case domain.SchemeTransport:
		return &domain.TransportAuthentication{}
	default:
		return &domain.GuestAuthentication{}
	}
}

// Request is an HTTP request accepted by a Server.
type Request struct {
	// CorrelatorID pairs the request with its response.
	CorrelatorID string

	Method     string
	URL        *url.URL
	Header     http.Header
	Body       []byte
	RemoteAddr string
	Principal  Principal
}

// Param returns a value from the header, or the query parameter when the
// header is absent.
func (r *Request) Param(header, query string) string {
	if v := r.Header.Get(header); v != "" {
		return v
	}
	if r.URL != nil {
		return r.URL.Query().Get(query)
	}
	return ""
}

// KeepSession reports whether the session transport outlives the request.
func (r *Request) KeepSession() bool {
	return !strings.EqualFold(r.Header.Get(HeaderSession), SessionClose)
}

// Response is the answer to a Request.
type Response struct {
	CorrelatorID string
	Status       int
	Header       http.Header
	Body         []byte
}

// NewResponse builds an empty response to req.
func NewResponse(req *Request, status int) *Response {
	return &Response{CorrelatorID: req.CorrelatorID, Status: status, Header: make(http.Header)}
}

// NewTextResponse builds a text/plain response to req.
func NewTextResponse(req *Request, status int, body string) *Response {
	resp := NewResponse(req, status)
	if body != "" {
		resp.Header.Set("Content-Type", domain.MediaTypeTextPlain)
		resp.Body = []byte(body)
	}
	return resp
}

// SetReason writes reason into the X-Reason-* headers.
func (r *Response) SetReason(reason *domain.Reason) {
	if reason == nil {
		return
	}
	r.Header.Set(HeaderReasonCode, strconv.Itoa(reason.Code))
	r.Header.Set(HeaderReasonDescription, reason.Description)
}

// Server is the HTTP front end the bridge consumes. Requests are queued by
// the server and answered asynchronously through SubmitResponse.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	AcceptRequest(ctx context.Context) (*Request, error)
	SubmitResponse(resp *Response) error
}
