// Package handshake brings a peer connection up through a manual exchange of
// session descriptors between an initiator and a responder.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// ErrAlreadyRun is returned when a coordinator is asked to run twice.
// Descriptors are never re-sent or reused.
var ErrAlreadyRun = errors.New("handshake already performed")

// Negotiator is the transport side of the handshake.
type Negotiator interface {
	// CreateOffer returns the complete local offer.
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	// CreateAnswer applies the remote offer and returns the complete local answer.
	CreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// AcceptAnswer applies the remote answer.
	AcceptAnswer(answer webrtc.SessionDescription) error
}

// Coordinator drives one descriptor exchange for a fixed role.
type Coordinator struct {
	role       Role
	negotiator Negotiator
	signaler   Signaler
	ran        atomic.Bool
}

func NewCoordinator(role Role, negotiator Negotiator, signaler Signaler) *Coordinator {
	return &Coordinator{
		role:       role,
		negotiator: negotiator,
		signaler:   signaler,
	}
}

// Run performs the exchange and then waits until open is closed, which the
// caller does when the transport reports the channel as open. No timeout is
// applied here; bound ctx to enforce one.
func (c *Coordinator) Run(ctx context.Context, open <-chan struct{}) error {
	if !c.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	var err error
	switch c.role {
	case Initiator:
		err = c.runInitiator(ctx)
	case Responder:
		err = c.runResponder(ctx)
	default:
		err = fmt.Errorf("unknown role %v", c.role)
	}
	if err != nil {
		return err
	}

	slog.Info("Descriptors exchanged, waiting for channel to open", "role", c.role)
	select {
	case <-open:
		slog.Info("Channel open", "role", c.role)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) runInitiator(ctx context.Context) error {
	offer, err := c.negotiator.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := c.publish(ctx, offer); err != nil {
		return err
	}

	answer, err := c.await(ctx)
	if err != nil {
		return err
	}
	if err := c.negotiator.AcceptAnswer(answer); err != nil {
		return fmt.Errorf("failed to apply answer: %w", err)
	}
	return nil
}

func (c *Coordinator) runResponder(ctx context.Context) error {
	offer, err := c.await(ctx)
	if err != nil {
		return err
	}
	answer, err := c.negotiator.CreateAnswer(ctx, offer)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	return c.publish(ctx, answer)
}

func (c *Coordinator) publish(ctx context.Context, desc webrtc.SessionDescription) error {
	if want := c.role.LocalType(); desc.Type != want {
		return fmt.Errorf("%w: %s must publish %s, got %s", ErrUnexpectedType, c.role, want, desc.Type)
	}
	encoded, err := Encode(desc)
	if err != nil {
		return err
	}
	slog.Info("Publishing local descriptor", "type", desc.Type.String(), "bytes", len(encoded))
	if err := c.signaler.Publish(ctx, desc.Type, encoded); err != nil {
		return fmt.Errorf("failed to publish %s: %w", desc.Type, err)
	}
	return nil
}

func (c *Coordinator) await(ctx context.Context) (webrtc.SessionDescription, error) {
	want := c.role.RemoteType()
	text, err := c.signaler.Await(ctx, want)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to read remote %s: %w", want, err)
	}
	desc, err := Decode(text, want)
	if err != nil {
		slog.Error("Rejected remote descriptor", "error", err)
		return webrtc.SessionDescription{}, err
	}
	return desc, nil
}
