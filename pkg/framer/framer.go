// Package framer owns all traffic on the open data channel. Inbound messages
// are classified into units and handed to a single dispatch loop; outbound
// units from concurrent callers are serialized onto the channel one at a time.
package framer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/rescp17/peerlink/pkg/transfer"
)

var (
	// ErrChannelClosed is returned by every operation once the channel is gone.
	ErrChannelClosed = errors.New("channel closed")
	// ErrChatLooksLikeControl rejects chat text the peer would read as a file announcement.
	ErrChatLooksLikeControl = errors.New("chat text would be read as a file announcement")
	// ErrEmptyChat rejects empty chat lines.
	ErrEmptyChat = errors.New("empty chat message")
)

// DefaultInboundQueue is the number of inbound messages buffered ahead of the
// dispatch loop before the transport's read side is made to wait.
const DefaultInboundQueue = 64

// Channel is the subset of *webrtc.DataChannel the framer relies on. The
// channel must deliver messages reliably and in order: chunks carry no
// sequence numbers.
type Channel interface {
	Send(data []byte) error
	SendText(s string) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(th uint64)
	OnBufferedAmountLow(f func())
}

var _ Channel = (*webrtc.DataChannel)(nil)

// Framer classifies inbound messages and serializes outbound units.
type Framer struct {
	ch            Channel
	highWaterMark uint64

	sendMu sync.Mutex
	// low receives a token whenever the channel drains below the low water mark.
	low chan struct{}

	inbound   chan webrtc.DataChannelMessage
	closed    chan struct{}
	closeOnce sync.Once
}

// New wraps ch. Chunk sends pause while more than highWaterMark bytes are
// queued and resume once the channel drains below lowWaterMark.
func New(ch Channel, highWaterMark, lowWaterMark uint64) *Framer {
	f := &Framer{
		ch:            ch,
		highWaterMark: highWaterMark,
		low:           make(chan struct{}, 1),
		inbound:       make(chan webrtc.DataChannelMessage, DefaultInboundQueue),
		closed:        make(chan struct{}),
	}
	ch.SetBufferedAmountLowThreshold(lowWaterMark)
	ch.OnBufferedAmountLow(func() {
		select {
		case f.low <- struct{}{}:
		default:
		}
	})
	return f
}

// NewFromConfig wraps ch using the pacing thresholds of config.
func NewFromConfig(ch Channel, config *transfer.Config) *Framer {
	return New(ch, config.HighWaterMark, config.LowWaterMark)
}

// Deliver queues a raw message for the dispatch loop. It is meant to be
// installed as the channel's message callback and blocks while the queue is
// full, pushing back on the transport.
func (f *Framer) Deliver(msg webrtc.DataChannelMessage) {
	select {
	case f.inbound <- msg:
	case <-f.closed:
		slog.Debug("Dropping message delivered after close", "bytes", len(msg.Data))
	}
}

// Run is the single dispatch point: it classifies queued messages and calls
// handle for each, in arrival order, until ctx is done or the framer closes.
func (f *Framer) Run(ctx context.Context, handle func(Unit)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.closed:
			return ErrChannelClosed
		case msg := <-f.inbound:
			handle(Classify(msg))
		}
	}
}

// Close marks the channel as gone. Blocked senders and the dispatch loop return.
func (f *Framer) Close() {
	f.closeOnce.Do(func() {
		close(f.closed)
	})
}

// Done is closed once the framer is closed.
func (f *Framer) Done() <-chan struct{} {
	return f.closed
}

// SendControl sends a file announcement as a text message.
func (f *Framer) SendControl(msg transfer.ControlMessage) error {
	data, err := transfer.MarshalControl(msg)
	if err != nil {
		return fmt.Errorf("failed to encode control message: %w", err)
	}
	return f.sendText(string(data))
}

// SendChat sends a chat line. Text that would parse as a file announcement
// on the other side is refused.
func (f *Framer) SendChat(text string) error {
	if text == "" {
		return ErrEmptyChat
	}
	if _, ok := transfer.ParseControl([]byte(text)); ok {
		return ErrChatLooksLikeControl
	}
	return f.sendText(text)
}

// SendChunk sends a binary message once the channel's queue is below the
// high water mark. The send lock is not held while waiting so chat and
// control messages keep flowing.
func (f *Framer) SendChunk(ctx context.Context, data []byte) error {
	if err := f.waitForCapacity(ctx); err != nil {
		return err
	}

	f.sendMu.Lock()
	defer f.sendMu.Unlock()
	if f.isClosed() {
		return ErrChannelClosed
	}
	if err := f.ch.Send(data); err != nil {
		return fmt.Errorf("failed to send chunk: %w", err)
	}
	return nil
}

func (f *Framer) sendText(text string) error {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()
	if f.isClosed() {
		return ErrChannelClosed
	}
	if err := f.ch.SendText(text); err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}
	return nil
}

func (f *Framer) waitForCapacity(ctx context.Context) error {
	for f.ch.BufferedAmount() > f.highWaterMark {
		select {
		case <-f.low:
		case <-ctx.Done():
			return ctx.Err()
		case <-f.closed:
			return ErrChannelClosed
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (f *Framer) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}
