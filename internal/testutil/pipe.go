// Package testutil provides an in-memory stand-in for a WebRTC data channel.
package testutil

import (
	"io"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Endpoint is one side of an ordered, reliable in-memory message pipe. It
// tracks the bytes queued towards the peer the way a data channel reports its
// buffered amount, and fires the low threshold callback when that amount
// drops below the threshold.
type Endpoint struct {
	mu        sync.Mutex
	peer      *Endpoint
	queue     chan webrtc.DataChannelMessage
	buffered  uint64
	threshold uint64
	onLow     func()
	onMessage func(webrtc.DataChannelMessage)
	onClose   func()

	done      chan struct{}
	closeOnce *sync.Once
}

// NewPipe returns two connected endpoints. capacity bounds the number of
// messages in flight per direction before Send blocks.
func NewPipe(capacity int) (*Endpoint, *Endpoint) {
	done := make(chan struct{})
	once := &sync.Once{}
	a := &Endpoint{queue: make(chan webrtc.DataChannelMessage, capacity), done: done, closeOnce: once}
	b := &Endpoint{queue: make(chan webrtc.DataChannelMessage, capacity), done: done, closeOnce: once}
	a.peer, b.peer = b, a
	go a.deliver()
	go b.deliver()
	return a, b
}

func (e *Endpoint) Send(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	return e.enqueue(webrtc.DataChannelMessage{Data: buf})
}

func (e *Endpoint) SendText(s string) error {
	return e.enqueue(webrtc.DataChannelMessage{IsString: true, Data: []byte(s)})
}

func (e *Endpoint) BufferedAmount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffered
}

func (e *Endpoint) SetBufferedAmountLowThreshold(th uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threshold = th
}

func (e *Endpoint) OnBufferedAmountLow(f func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onLow = f
}

// OnMessage registers the handler for messages sent by the peer.
func (e *Endpoint) OnMessage(f func(webrtc.DataChannelMessage)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onMessage = f
}

// OnClose registers a callback run once when the pipe closes.
func (e *Endpoint) OnClose(f func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClose = f
}

// Close shuts both directions down and runs both close callbacks.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		for _, end := range []*Endpoint{e, e.peer} {
			end.mu.Lock()
			f := end.onClose
			end.mu.Unlock()
			if f != nil {
				go f()
			}
		}
	})
	return nil
}

func (e *Endpoint) enqueue(msg webrtc.DataChannelMessage) error {
	select {
	case <-e.done:
		return io.ErrClosedPipe
	default:
	}

	e.mu.Lock()
	e.buffered += uint64(len(msg.Data))
	e.mu.Unlock()

	select {
	case e.queue <- msg:
		return nil
	case <-e.done:
		return io.ErrClosedPipe
	}
}

// deliver hands queued messages to the peer's handler in order.
func (e *Endpoint) deliver() {
	for {
		select {
		case <-e.done:
			return
		case msg := <-e.queue:
			e.peer.mu.Lock()
			handler := e.peer.onMessage
			e.peer.mu.Unlock()
			if handler != nil {
				handler(msg)
			}

			e.mu.Lock()
			before := e.buffered
			e.buffered -= uint64(len(msg.Data))
			crossed := before >= e.threshold && e.buffered < e.threshold
			onLow := e.onLow
			e.mu.Unlock()
			if crossed && onLow != nil {
				onLow()
			}
		}
	}
}
