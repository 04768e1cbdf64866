package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/transport"
)

// echoPeer answers commands with echo semantics over a map of resources.
func echoPeer(ctx context.Context, peer *transport.PipeTransport) {
	resources := make(map[string]domain.Document)
	for {
		env, err := peer.Receive(ctx)
		if err != nil {
			return
		}
		cmd, ok := env.(*domain.Command)
		if !ok {
			continue
		}
		var resp *domain.Command
		switch cmd.Method {
		case domain.MethodSet:
			resources[cmd.URI] = cmd.Resource
			resp = cmd.Response(domain.StatusSuccess)
		case domain.MethodGet:
			doc, ok := resources[cmd.URI]
			if !ok {
				resp = cmd.FailureResponse(domain.NewReason(domain.ReasonCommandResourceNotFound, "Resource not found"))
				break
			}
			resp = cmd.Response(domain.StatusSuccess)
			resp.Resource = doc
		case domain.MethodDelete:
			delete(resources, cmd.URI)
			resp = cmd.Response(domain.StatusSuccess)
		default:
			resp = cmd.Response(domain.StatusFailure)
		}
		if err := peer.Send(ctx, resp); err != nil {
			return
		}
	}
}

func TestCorrelator_SetThenGet(t *testing.T) {
	ctx := testContext(t)
	ch, peer := establishedServer(t, Config{})
	go echoPeer(ctx, peer)

	c := NewCorrelator(ch)
	if err := c.SetResource(ctx, "/greeting", domain.NewPlainText("first"), nil); err != nil {
		t.Fatalf("SetResource() error = %v", err)
	}
	if err := c.SetResource(ctx, "/greeting", domain.NewPlainText("second"), nil); err != nil {
		t.Fatalf("SetResource() error = %v", err)
	}
	doc, err := c.GetResource(ctx, "/greeting", nil)
	if err != nil {
		t.Fatalf("GetResource() error = %v", err)
	}
	if s, _ := domain.DocumentString(doc); s != "second" {
		t.Errorf("GetResource() = %q, want second", s)
	}

	if err := c.DeleteResource(ctx, "/greeting", nil); err != nil {
		t.Fatalf("DeleteResource() error = %v", err)
	}
	_, err = c.GetResource(ctx, "/greeting", nil)
	var remote *domain.RemoteFailureError
	if !errors.As(err, &remote) {
		t.Fatalf("GetResource() after delete error = %v, want RemoteFailureError", err)
	}
	if remote.Code != domain.ReasonCommandResourceNotFound || remote.Description != "Resource not found" {
		t.Errorf("RemoteFailureError = %+v", remote)
	}
}

func TestCorrelator_FailureWithoutReason(t *testing.T) {
	ctx := testContext(t)
	ch, peer := establishedServer(t, Config{})
	go echoPeer(ctx, peer)

	c := NewCorrelator(ch)
	_, err := c.ProcessCommand(ctx, &domain.Command{Method: domain.MethodObserve, URI: "/x"})
	if err != nil {
		t.Fatalf("ProcessCommand() error = %v", err)
	}

	resp := &domain.Command{Status: domain.StatusFailure}
	if err := checkResponse(resp); !errors.Is(err, domain.ErrInvalidCommandResponse) {
		t.Errorf("checkResponse() error = %v, want ErrInvalidCommandResponse", err)
	}
}

func TestCorrelator_ArgumentValidation(t *testing.T) {
	ctx := testContext(t)
	ch, _ := establishedServer(t, Config{})
	c := NewCorrelator(ch)

	tests := []struct {
		name string
		call func() error
	}{
		{"nil command", func() error { _, err := c.ProcessCommand(ctx, nil); return err }},
		{"get empty uri", func() error { _, err := c.GetResource(ctx, "", nil); return err }},
		{"set nil resource", func() error { return c.SetResource(ctx, "/x", nil, nil) }},
		{"delete blank uri", func() error { return c.DeleteResource(ctx, "  ", nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestCorrelator_Mismatch(t *testing.T) {
	ctx := testContext(t)
	ch, peer := establishedServer(t, Config{})

	go func() {
		env, err := peer.Receive(ctx)
		if err != nil {
			return
		}
		resp := env.(*domain.Command).Response(domain.StatusSuccess)
		resp.ID = "someone-else"
		_ = peer.Send(ctx, resp)
	}()

	_, err := NewCorrelator(ch).ProcessCommand(ctx, &domain.Command{Method: domain.MethodGet, URI: "/x"})
	if !errors.Is(err, domain.ErrCorrelationMismatch) {
		t.Errorf("ProcessCommand() error = %v, want ErrCorrelationMismatch", err)
	}
}

func TestCorrelator_ConcurrentCallersNeverCrossDeliver(t *testing.T) {
	ctx := testContext(t)
	ch, peer := establishedServer(t, Config{})
	go echoPeer(ctx, peer)

	c := NewCorrelator(ch)
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := &domain.Command{
				EnvelopeHeader: domain.EnvelopeHeader{ID: fmt.Sprintf("req-%d", i)},
				Method:         domain.MethodDelete,
				URI:            "/x",
			}
			resp, err := c.ProcessCommand(ctx, req)
			if err != nil {
				errs <- err
				return
			}
			if resp.ID != req.ID {
				errs <- fmt.Errorf("request %s received response %s", req.ID, resp.ID)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCorrelator_ReleasesLockOnCancel(t *testing.T) {
	ctx := testContext(t)
	ch, _ := establishedServer(t, Config{})
	c := NewCorrelator(ch)

	if err := ch.CommandLock().Acquire(ctx, 1); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := c.ProcessCommand(waitCtx, &domain.Command{Method: domain.MethodGet, URI: "/x"})
	if !domain.IsTimeout(err) {
		t.Errorf("ProcessCommand() while locked error = %v, want timeout", err)
	}
	ch.CommandLock().Release(1)

	// No response ever arrives: the round trip times out and releases the lock.
	waitCtx2, cancel2 := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel2()
	if _, err := c.ProcessCommand(waitCtx2, &domain.Command{Method: domain.MethodGet, URI: "/x"}); !domain.IsTimeout(err) {
		t.Errorf("ProcessCommand() without response error = %v, want timeout", err)
	}
	if !ch.CommandLock().TryAcquire(1) {
		t.Fatal("lock should be free after cancelled round trip")
	}
	ch.CommandLock().Release(1)
}

func TestCommandLockScope(t *testing.T) {
	a, _ := newServerPair(t, Config{})
	b, _ := newServerPair(t, Config{})
	if a.CommandLock() == b.CommandLock() {
		t.Error("channels should not share a command lock by default")
	}

	g1, _ := newServerPair(t, Config{GlobalCommandLock: true})
	g2, _ := newServerPair(t, Config{GlobalCommandLock: true})
	if g1.CommandLock() != g2.CommandLock() {
		t.Error("GlobalCommandLock channels should share one lock")
	}
}
