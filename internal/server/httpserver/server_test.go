package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/lime-go/internal/server/httpbridge"
	"github.com/yndnr/lime-go/internal/telemetry/metric"
	"github.com/yndnr/lime-go/internal/transport"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	cfg.Logger = discardLogger()
	if cfg.Metrics == nil {
		cfg.Metrics = metric.NewRegistry()
	}
	s := New(cfg, newTestResolver(t, PrincipalConfig{Domain: "example.org"}))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

// echo answers every accepted request with the caller identity and path.
func echo(ctx context.Context, s *Server) {
	for {
		req, err := s.AcceptRequest(ctx)
		if err != nil {
			return
		}
		resp := httpbridge.NewTextResponse(req, http.StatusOK, req.Principal.Identity.String()+" "+req.Method+" "+req.URL.Path+" "+string(req.Body))
		resp.Header.Set(httpbridge.HeaderID, "42")
		_ = s.SubmitResponse(resp)
	}
}

func TestServer_RoundTrip(t *testing.T) {
	s := newTestServer(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go echo(ctx, s)

	req, _ := http.NewRequest(http.MethodPost, "http://"+s.Addr().String()+"/messages", strings.NewReader("hello"))
	req.SetBasicAuth("alice", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	if got, want := string(body), "alice@example.org POST /messages hello"; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if resp.Header.Get(httpbridge.HeaderID) != "42" {
		t.Errorf("X-Id = %q", resp.Header.Get(httpbridge.HeaderID))
	}
	if resp.Header.Get(HeaderRequestID) == "" {
		t.Error("X-Request-ID missing")
	}
}

func TestServer_Unauthorized(t *testing.T) {
	s := newTestServer(t, Config{})

	resp, err := http.Get("http://" + s.Addr().String() + "/messages")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestServer_RequestTimeout(t *testing.T) {
	s := New(Config{RequestTimeout: 50 * time.Millisecond, Logger: discardLogger()}, nil)
	req := httptest.NewRequest("GET", "/messages", nil)
	req = req.WithContext(context.WithValue(req.Context(), ContextKeyPrincipal, httpbridge.Principal{}))
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
	if s.pending.Count() != 0 {
		t.Error("pending response should be released")
	}
}

func TestServer_BodyTooLarge(t *testing.T) {
	s := New(Config{MaxBodyBytes: 4, Logger: discardLogger()}, nil)
	req := httptest.NewRequest("POST", "/messages", strings.NewReader("too large"))
	req = req.WithContext(context.WithValue(req.Context(), ContextKeyPrincipal, httpbridge.Principal{}))
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestServer_SubmitResponse(t *testing.T) {
	s := New(Config{Logger: discardLogger()}, nil)

	if err := s.SubmitResponse(&httpbridge.Response{CorrelatorID: "missing"}); !errors.Is(err, ErrUnknownCorrelator) {
		t.Errorf("SubmitResponse() error = %v, want ErrUnknownCorrelator", err)
	}
	if err := s.SubmitResponse(nil); err == nil {
		t.Error("SubmitResponse(nil) should fail")
	}
}

func TestServer_Stop(t *testing.T) {
	s := New(Config{Logger: discardLogger()}, nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	_, err := s.AcceptRequest(context.Background())
	if !errors.Is(err, transport.ErrClosed) {
		t.Errorf("AcceptRequest() error = %v, want ErrClosed", err)
	}

	req := httptest.NewRequest("GET", "/messages", nil)
	req = req.WithContext(context.WithValue(req.Context(), ContextKeyPrincipal, httpbridge.Principal{}))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	s := New(Config{Logger: discardLogger()}, nil)
	rec := httptest.NewRecorder()

	NewRouter(s).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
}

func TestRouter_Metrics(t *testing.T) {
	s := New(Config{
		Logger:           discardLogger(),
		Metrics:          metric.NewRegistry(),
		MetricsAllowList: []string{"10.0.0.0/8"},
	}, nil)
	router := NewRouter(s)

	allowed := httptest.NewRequest("GET", "/metrics", nil)
	allowed.RemoteAddr = "10.1.1.1:9000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, allowed)
	if rec.Code != http.StatusOK {
		t.Errorf("allowed status = %d, want 200", rec.Code)
	}

	denied := httptest.NewRequest("GET", "/metrics", nil)
	denied.RemoteAddr = "192.0.2.1:9000"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, denied)
	if rec.Code != http.StatusForbidden {
		t.Errorf("denied status = %d, want 403", rec.Code)
	}
}
