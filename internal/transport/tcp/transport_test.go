package tcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/transport"
)

func startListener(t *testing.T) *Listener {
	t.Helper()
	l := NewListener(&Config{Address: "127.0.0.1:0"}, nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = l.Stop(context.Background()) })
	return l
}

func TestTransport_RoundTrip(t *testing.T) {
	l := startListener(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, "net.tcp://"+l.Addr().String(), Options{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close(ctx)

	server, err := l.AcceptConnection(ctx)
	if err != nil {
		t.Fatalf("AcceptConnection() error = %v", err)
	}
	defer server.Close(ctx)

	sent := &domain.Session{EnvelopeHeader: domain.EnvelopeHeader{ID: "s1"}, State: domain.SessionNew}
	if err := client.Send(ctx, sent); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, err := server.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	s, ok := got.(*domain.Session)
	if !ok || s.ID != "s1" || s.State != domain.SessionNew {
		t.Errorf("Receive() = %#v", got)
	}
}

func TestTransport_ReceiveCancelled(t *testing.T) {
	l := startListener(t)
	ctx := context.Background()

	client, err := Dial(ctx, "net.tcp://"+l.Addr().String(), Options{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close(ctx)

	rctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := client.Receive(rctx); !domain.IsTimeout(err) {
		t.Errorf("Receive() error = %v, want timeout", err)
	}
}

func TestTransport_PeerClose(t *testing.T) {
	l := startListener(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, "net.tcp://"+l.Addr().String(), Options{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	server, err := l.AcceptConnection(ctx)
	if err != nil {
		t.Fatalf("AcceptConnection() error = %v", err)
	}

	_ = client.Close(ctx)
	if _, err := server.Receive(ctx); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Receive() error = %v, want ErrClosed", err)
	}
	if server.IsConnected() {
		t.Error("IsConnected() should be false after peer close")
	}
	if err := client.Close(ctx); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestListener_StateErrors(t *testing.T) {
	l := NewListener(&Config{Address: "127.0.0.1:0"}, nil)
	ctx := context.Background()

	if _, err := l.AcceptConnection(ctx); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("AcceptConnection() before Start error = %v", err)
	}
	if err := l.Stop(ctx); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("Stop() before Start error = %v", err)
	}
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := l.Start(ctx); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("second Start() error = %v", err)
	}
	if err := l.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"net.tcp://localhost:1234", "localhost:1234", false},
		{"net.tcp://localhost", "localhost:" + DefaultPort, false},
		{"tcp://10.0.0.1:9", "10.0.0.1:9", false},
		{"http://localhost:80", "", true},
		{"localhost:80", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := parseAddress(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAddress() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}
