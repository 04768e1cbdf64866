package channel

import (
	"context"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/yndnr/lime-go/internal/core/domain"
)

// CommandChannel is the part of a channel the correlator needs.
type CommandChannel interface {
	SendCommand(ctx context.Context, cmd *domain.Command) error
	ReceiveCommand(ctx context.Context) (*domain.Command, error)
	CommandLock() *semaphore.Weighted
}

// Correlator sends commands and awaits their responses. One round trip is in
// flight per lock at a time, so concurrent callers never observe each
// other's responses.
type Correlator struct {
	ch CommandChannel
}

// NewCorrelator creates a correlator over ch.
func NewCorrelator(ch CommandChannel) *Correlator {
	return &Correlator{ch: ch}
}

// ProcessCommand sends req and returns the next command received. A response
// whose id differs from the request id fails with ErrCorrelationMismatch.
// The lock is released on every exit path, including cancellation while
// waiting for it.
func (c *Correlator) ProcessCommand(ctx context.Context, req *domain.Command) (*domain.Command, error) {
	if req == nil {
		return nil, domain.NewArgumentError("command", "must not be nil")
	}
	if req.ID == "" {
		req.ID = domain.NewID()
	}

	lock := c.ch.CommandLock()
	if err := lock.Acquire(ctx, 1); err != nil {
		return nil, domain.NewTimeoutError("acquire command lock", err)
	}
	defer lock.Release(1)

	if err := c.ch.SendCommand(ctx, req); err != nil {
		return nil, err
	}
	resp, err := c.ch.ReceiveCommand(ctx)
	if err != nil {
		return nil, err
	}
	if resp.ID != req.ID {
		return nil, domain.ErrCorrelationMismatch.WithDetails("expected '" + req.ID + "', received '" + resp.ID + "'")
	}
	return resp, nil
}

// GetResource fetches the resource at uri.
func (c *Correlator) GetResource(ctx context.Context, uri string, from *domain.Node) (domain.Document, error) {
	if err := validateURI(uri); err != nil {
		return nil, err
	}
	resp, err := c.ProcessCommand(ctx, newCommand(domain.MethodGet, uri, nil, from))
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return resp.Resource, nil
}

// SetResource stores resource at uri.
func (c *Correlator) SetResource(ctx context.Context, uri string, resource domain.Document, from *domain.Node) error {
	if err := validateURI(uri); err != nil {
		return err
	}
	if resource == nil {
		return domain.NewArgumentError("resource", "must not be nil")
	}
	resp, err := c.ProcessCommand(ctx, newCommand(domain.MethodSet, uri, resource, from))
	if err != nil {
		return err
	}
	return checkResponse(resp)
}

// DeleteResource removes the resource at uri.
func (c *Correlator) DeleteResource(ctx context.Context, uri string, from *domain.Node) error {
	if err := validateURI(uri); err != nil {
		return err
	}
	resp, err := c.ProcessCommand(ctx, newCommand(domain.MethodDelete, uri, nil, from))
	if err != nil {
		return err
	}
	return checkResponse(resp)
}

func newCommand(method domain.CommandMethod, uri string, resource domain.Document, from *domain.Node) *domain.Command {
	cmd := &domain.Command{
		EnvelopeHeader: domain.EnvelopeHeader{ID: domain.NewID(), From: from},
		Method:         method,
		URI:            uri,
		Resource:       resource,
	}
	if resource != nil {
		cmd.Type = resource.MediaType()
	}
	return cmd
}

func validateURI(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return domain.NewArgumentError("uri", "must not be empty")
	}
	return nil
}

// checkResponse translates a failed response into an error.
func checkResponse(resp *domain.Command) error {
	switch {
	case resp.Status == domain.StatusSuccess:
		return nil
	case resp.Reason != nil:
		return domain.NewRemoteFailureError(resp.Reason)
	default:
		return domain.ErrInvalidCommandResponse.WithDetails("status '" + string(resp.Status) + "'")
	}
}
