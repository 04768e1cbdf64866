package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/transport"
)

var (
	serverNode = domain.MustParseNode("postmaster@example.com/server")
	clientNode = domain.MustParseNode("alice@example.com/home")
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newServerPair(t *testing.T, cfg Config) (*ServerChannel, *transport.PipeTransport) {
	t.Helper()
	local, peer := transport.Pipe(16)
	ch := NewServerChannel("session-1", serverNode, local, cfg)
	t.Cleanup(func() { _ = ch.Close(context.Background()) })
	return ch, peer
}

func establishedServer(t *testing.T, cfg Config) (*ServerChannel, *transport.PipeTransport) {
	t.Helper()
	ch, peer := newServerPair(t, cfg)
	ctx := testContext(t)
	if err := ch.SendEstablishedSession(ctx, clientNode); err != nil {
		t.Fatalf("SendEstablishedSession() error = %v", err)
	}
	if _, err := peer.Receive(ctx); err != nil {
		t.Fatalf("peer Receive() error = %v", err)
	}
	return ch, peer
}

func TestServerChannel_WrongStateLeavesStateUnchanged(t *testing.T) {
	ctx := testContext(t)

	t.Run("new", func(t *testing.T) {
		ch, _ := newServerPair(t, Config{})
		calls := map[string]func() error{
			"ReceiveFinishingSession": func() error { _, err := ch.ReceiveFinishingSession(ctx); return err },
			"SendNegotiatingSession": func() error {
				return ch.SendNegotiatingSession(ctx, domain.CompressionNone, domain.EncryptionNone)
			},
			"AuthenticateSessionRoundtrip": func() error {
				_, err := ch.AuthenticateSessionRoundtrip(ctx, &domain.GuestAuthentication{})
				return err
			},
			"SendMessage": func() error { return ch.SendMessage(ctx, domain.NewMessage(nil, domain.NewPlainText("x"))) },
		}
		for name, call := range calls {
			err := call()
			var ise *domain.InvalidStateError
			if !errors.As(err, &ise) {
				t.Errorf("%s error = %v, want InvalidStateError", name, err)
				continue
			}
			if ise.Current != "new" {
				t.Errorf("%s Current = %q, want new", name, ise.Current)
			}
			if ch.State() != domain.SessionNew {
				t.Errorf("%s changed state to %v", name, ch.State())
			}
		}
	})

	t.Run("established", func(t *testing.T) {
		ch, _ := establishedServer(t, Config{})
		calls := map[string]func() error{
			"ReceiveNewSession": func() error { _, err := ch.ReceiveNewSession(ctx); return err },
			"NegotiateSession": func() error {
				_, err := ch.NegotiateSession(ctx, []domain.SessionCompression{domain.CompressionNone}, []domain.SessionEncryption{domain.EncryptionNone})
				return err
			},
			"AuthenticateSession": func() error {
				_, err := ch.AuthenticateSession(ctx, []domain.AuthenticationScheme{domain.SchemeGuest})
				return err
			},
			"SendEstablishedSession": func() error { return ch.SendEstablishedSession(ctx, clientNode) },
		}
		for name, call := range calls {
			if err := call(); !errors.Is(err, domain.ErrInvalidState) {
				t.Errorf("%s error = %v, want ErrInvalidState", name, err)
			}
			if ch.State() != domain.SessionEstablished {
				t.Errorf("%s changed state to %v", name, ch.State())
			}
		}
	})
}

func TestServerChannel_NegotiateEmptyOptions(t *testing.T) {
	ctx := testContext(t)
	ch, _ := newServerPair(t, Config{})

	tests := []struct {
		name string
		comp []domain.SessionCompression
		enc  []domain.SessionEncryption
	}{
		{"empty compression", nil, []domain.SessionEncryption{domain.EncryptionNone}},
		{"empty encryption", []domain.SessionCompression{domain.CompressionNone}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ch.NegotiateSession(ctx, tt.comp, tt.enc)
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("NegotiateSession() error = %v, want ErrInvalidArgument", err)
			}
			if ch.State() != domain.SessionNew {
				t.Errorf("State() = %v, want new", ch.State())
			}
		})
	}
}

func TestServerChannel_SessionIDGuard(t *testing.T) {
	ctx := testContext(t)
	ch, peer := newServerPair(t, Config{})

	forged := &domain.Session{EnvelopeHeader: domain.EnvelopeHeader{ID: "other-session"}, State: domain.SessionAuthenticating}
	if err := peer.Send(ctx, forged); err != nil {
		t.Fatalf("peer Send() error = %v", err)
	}

	_, err := ch.ReceiveNewSession(ctx)
	if !errors.Is(err, domain.ErrSessionProtocol) {
		t.Fatalf("ReceiveNewSession() error = %v, want ErrSessionProtocol", err)
	}

	env, err := peer.Receive(ctx)
	if err != nil {
		t.Fatalf("peer Receive() error = %v", err)
	}
	failed, ok := env.(*domain.Session)
	if !ok || failed.State != domain.SessionFailed {
		t.Fatalf("peer received %#v, want failed session", env)
	}
	if failed.Reason == nil || failed.Reason.Code != domain.ReasonSessionError || failed.Reason.Description != "Invalid session id" {
		t.Errorf("Reason = %v", failed.Reason)
	}
	if ch.Transport().IsConnected() {
		t.Error("transport should be closed")
	}
	if ch.State() != domain.SessionFailed {
		t.Errorf("State() = %v, want failed", ch.State())
	}
}

func TestServerChannel_NewSessionWithForeignIDAccepted(t *testing.T) {
	ctx := testContext(t)
	ch, peer := newServerPair(t, Config{})

	_ = peer.Send(ctx, &domain.Session{EnvelopeHeader: domain.EnvelopeHeader{ID: "client-chosen"}, State: domain.SessionNew})
	s, err := ch.ReceiveNewSession(ctx)
	if err != nil {
		t.Fatalf("ReceiveNewSession() error = %v", err)
	}
	if s.State != domain.SessionNew {
		t.Errorf("State = %v", s.State)
	}
}

func TestChannel_ConcurrentReceiveSameKind(t *testing.T) {
	ctx := testContext(t)
	ch, peer := establishedServer(t, Config{})

	firstCtx, cancelFirst := context.WithCancel(ctx)
	firstDone := make(chan error, 1)
	go func() {
		_, err := ch.ReceiveMessage(firstCtx)
		firstDone <- err
	}()

	var err error
	for i := 0; i < 200; i++ {
		shortCtx, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
		_, err = ch.ReceiveMessage(shortCtx)
		cancel()
		if errors.Is(err, domain.ErrConcurrentReceive) {
			break
		}
	}
	if !errors.Is(err, domain.ErrConcurrentReceive) {
		t.Fatalf("second ReceiveMessage() error = %v, want ErrConcurrentReceive", err)
	}

	// A receive of another kind is independent.
	_ = peer.Send(ctx, domain.NewNotification("m1", domain.EventReceived))
	if _, err := ch.ReceiveNotification(ctx); err != nil {
		t.Errorf("ReceiveNotification() error = %v", err)
	}

	cancelFirst()
	if err := <-firstDone; !domain.IsTimeout(err) {
		t.Errorf("first ReceiveMessage() error = %v, want timeout", err)
	}

	// The slot is free again once the pending receive returned.
	_ = peer.Send(ctx, domain.NewMessage(nil, domain.NewPlainText("hi")))
	if _, err := ch.ReceiveMessage(ctx); err != nil {
		t.Errorf("ReceiveMessage() after cancel error = %v", err)
	}
}

func TestChannel_ReceiveAfterClose(t *testing.T) {
	ctx := testContext(t)
	ch, peer := establishedServer(t, Config{})

	_ = peer.Close(ctx)
	if _, err := ch.ReceiveMessage(ctx); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("ReceiveMessage() error = %v, want ErrClosed", err)
	}
}

func TestServerChannel_SendFailedSessionRequiresReason(t *testing.T) {
	ctx := testContext(t)
	ch, _ := newServerPair(t, Config{})

	if err := ch.SendFailedSession(ctx, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("SendFailedSession(nil) error = %v", err)
	}
	if ch.State() != domain.SessionNew {
		t.Errorf("State() = %v, want new", ch.State())
	}
}

func TestServerChannel_AuthenticationRoundtripLimit(t *testing.T) {
	ctx := testContext(t)
	ch, peer := newServerPair(t, Config{MaxAuthenticationRoundtrips: 1})

	answer := func() {
		if _, err := peer.Receive(ctx); err != nil {
			t.Errorf("peer Receive() error = %v", err)
			return
		}
		_ = peer.Send(ctx, &domain.Session{
			EnvelopeHeader: domain.EnvelopeHeader{ID: "session-1"},
			State:          domain.SessionAuthenticating,
			Authentication: domain.NewPlainAuthentication("pw"),
		})
	}

	go answer()
	if _, err := ch.AuthenticateSession(ctx, []domain.AuthenticationScheme{domain.SchemePlain}); err != nil {
		t.Fatalf("AuthenticateSession() error = %v", err)
	}

	go answer()
	if _, err := ch.AuthenticateSessionRoundtrip(ctx, &domain.PlainAuthentication{}); err != nil {
		t.Fatalf("first roundtrip error = %v", err)
	}

	_, err := ch.AuthenticateSessionRoundtrip(ctx, &domain.PlainAuthentication{})
	if !errors.Is(err, domain.ErrAuthRoundtripsExceeded) {
		t.Fatalf("second roundtrip error = %v, want ErrAuthRoundtripsExceeded", err)
	}
	if ch.State() != domain.SessionFailed {
		t.Errorf("State() = %v, want failed", ch.State())
	}
}

func TestServerChannel_RoundtripLimitLogsSendFailure(t *testing.T) {
	ctx := testContext(t)
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ch, peer := newServerPair(t, Config{MaxAuthenticationRoundtrips: 1, Logger: log})

	go func() {
		if _, err := peer.Receive(ctx); err != nil {
			return
		}
		_ = peer.Send(ctx, &domain.Session{
			EnvelopeHeader: domain.EnvelopeHeader{ID: "session-1"},
			State:          domain.SessionAuthenticating,
			Authentication: domain.NewPlainAuthentication("pw"),
		})
	}()
	if _, err := ch.AuthenticateSession(ctx, []domain.AuthenticationScheme{domain.SchemePlain}); err != nil {
		t.Fatalf("AuthenticateSession() error = %v", err)
	}
	ch.roundtrips.Store(1)
	_ = peer.Close(ctx)

	_, err := ch.AuthenticateSessionRoundtrip(ctx, &domain.PlainAuthentication{})
	if !errors.Is(err, domain.ErrAuthRoundtripsExceeded) {
		t.Fatalf("AuthenticateSessionRoundtrip() error = %v, want ErrAuthRoundtripsExceeded", err)
	}
	if !strings.Contains(logs.String(), "failed to send failed session") {
		t.Errorf("logs = %q, want the send failure", logs.String())
	}
}

func TestEstablishAndFinish(t *testing.T) {
	ctx := testContext(t)
	serverEnd, clientEnd := transport.Pipe(16)
	server := NewServerChannel("session-42", serverNode, serverEnd, Config{})
	client := NewClientChannel(clientEnd, Config{})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- func() error {
			if _, err := server.ReceiveNewSession(ctx); err != nil {
				return err
			}
			if _, err := server.NegotiateSession(ctx,
				[]domain.SessionCompression{domain.CompressionNone, domain.CompressionGzip},
				[]domain.SessionEncryption{domain.EncryptionNone}); err != nil {
				return err
			}
			if err := server.SendNegotiatingSession(ctx, domain.CompressionNone, domain.EncryptionNone); err != nil {
				return err
			}
			s, err := server.AuthenticateSession(ctx, []domain.AuthenticationScheme{domain.SchemePlain})
			if err != nil {
				return err
			}
			plain, ok := s.Authentication.(*domain.PlainAuthentication)
			if !ok {
				return errors.New("expected plain authentication")
			}
			if pw, _ := plain.DecodedPassword(); pw != "secret" {
				return errors.New("wrong password")
			}
			if err := server.SendEstablishedSession(ctx, domain.NodeValue(s.From)); err != nil {
				return err
			}
			if _, err := server.ReceiveFinishingSession(ctx); err != nil {
				return err
			}
			return server.SendFinishedSession(ctx)
		}()
	}()

	s, err := client.EstablishSession(ctx, nil, nil, clientNode.Identity(),
		func([]domain.AuthenticationScheme, domain.Authentication) domain.Authentication {
			return domain.NewPlainAuthentication("secret")
		}, "home")
	if err != nil {
		t.Fatalf("EstablishSession() error = %v", err)
	}
	if s.State != domain.SessionEstablished {
		t.Fatalf("EstablishSession() state = %v", s.State)
	}
	if client.SessionID() != "session-42" {
		t.Errorf("client SessionID() = %q", client.SessionID())
	}
	if client.LocalNode() != clientNode {
		t.Errorf("client LocalNode() = %v, want %v", client.LocalNode(), clientNode)
	}
	if server.RemoteNode() != clientNode {
		t.Errorf("server RemoteNode() = %v, want %v", server.RemoteNode(), clientNode)
	}

	if err := client.Finish(ctx); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("server flow error = %v", err)
	}
	if client.State() != domain.SessionFinished || server.State() != domain.SessionFinished {
		t.Errorf("states = %v / %v, want finished", client.State(), server.State())
	}
}

func TestClientChannel_AuthenticationFailed(t *testing.T) {
	ctx := testContext(t)
	serverEnd, clientEnd := transport.Pipe(16)
	server := NewServerChannel("session-7", serverNode, serverEnd, Config{})
	client := NewClientChannel(clientEnd, Config{})

	go func() {
		if _, err := server.ReceiveNewSession(ctx); err != nil {
			return
		}
		if _, err := server.AuthenticateSession(ctx, []domain.AuthenticationScheme{domain.SchemePlain}); err != nil {
			return
		}
		_ = server.SendFailedSession(ctx, domain.NewReason(domain.ReasonSessionAuthenticationFailed, "bad credentials"))
	}()

	s, err := client.EstablishSession(ctx, nil, nil, clientNode,
		func([]domain.AuthenticationScheme, domain.Authentication) domain.Authentication {
			return domain.NewPlainAuthentication("wrong")
		}, "home")
	if err != nil {
		t.Fatalf("EstablishSession() error = %v", err)
	}
	if s.State != domain.SessionFailed || s.Reason == nil || s.Reason.Description != "bad credentials" {
		t.Errorf("EstablishSession() = %+v", s)
	}
	if client.Transport().IsConnected() {
		t.Error("client transport should be closed after failure")
	}
}

func TestChannel_FullQueueDoesNotStallOtherKinds(t *testing.T) {
	ctx := testContext(t)
	var drops atomic.Int32
	ch, peer := establishedServer(t, Config{
		ReceiveBuffer: 4,
		OnDrop: func(kind domain.Kind) {
			if kind == domain.KindCommand {
				drops.Add(1)
			}
		},
	})

	const commands = 100
	sent := make(chan error, 1)
	go func() {
		for i := 0; i < commands; i++ {
			cmd := &domain.Command{
				EnvelopeHeader: domain.EnvelopeHeader{ID: fmt.Sprintf("cmd-%d", i)},
				Method:         domain.MethodGet,
				URI:            "/x",
			}
			if err := peer.Send(ctx, cmd); err != nil {
				sent <- err
				return
			}
		}
		finishing := &domain.Session{EnvelopeHeader: domain.EnvelopeHeader{ID: "session-1"}, State: domain.SessionFinishing}
		sent <- peer.Send(ctx, finishing)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s, err := ch.ReceiveFinishingSession(waitCtx)
	if err != nil {
		t.Fatalf("ReceiveFinishingSession() error = %v", err)
	}
	if s.State != domain.SessionFinishing {
		t.Errorf("State = %v, want finishing", s.State)
	}
	if err := <-sent; err != nil {
		t.Fatalf("peer Send() error = %v", err)
	}

	if got := ch.Dropped(); got != commands-4 {
		t.Errorf("Dropped() = %d, want %d", got, commands-4)
	}
	if got := drops.Load(); got != commands-4 {
		t.Errorf("OnDrop calls = %d, want %d", got, commands-4)
	}
}
