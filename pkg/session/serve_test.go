package session

import (
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/peerlink/internal/events"
	"github.com/rescp17/peerlink/internal/testutil"
	"github.com/rescp17/peerlink/pkg/chat"
	"github.com/rescp17/peerlink/pkg/concurrency"
	"github.com/rescp17/peerlink/pkg/framer"
	"github.com/rescp17/peerlink/pkg/handshake"
	"github.com/rescp17/peerlink/pkg/transfer"
)

const waitTimeout = 10 * time.Second

// recorder keeps every event a session emits, in order. When forward is set,
// published descriptors are copied to it, playing the operator who pastes
// them into the other peer.
type recorder struct {
	ch      chan events.Msg
	forward chan<- string
	mu      sync.Mutex
	msgs    []events.Msg
}

func newRecorder() *recorder {
	return newRelayRecorder(nil)
}

func newRelayRecorder(forward chan<- string) *recorder {
	r := &recorder{ch: make(chan events.Msg, 16), forward: forward}
	go func() {
		for msg := range r.ch {
			if desc, ok := msg.(events.DescriptorMsg); ok && r.forward != nil {
				r.forward <- desc.Text
			}
			r.mu.Lock()
			r.msgs = append(r.msgs, msg)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *recorder) index(match func(events.Msg) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, msg := range r.msgs {
		if match(msg) {
			return i
		}
	}
	return -1
}

func (r *recorder) waitFor(t *testing.T, what string, match func(events.Msg) bool) int {
	t.Helper()
	idx := -1
	require.Eventually(t, func() bool {
		idx = r.index(match)
		return idx >= 0
	}, waitTimeout, 5*time.Millisecond, "waiting for %s", what)
	return idx
}

func chatFrom(text string) func(events.Msg) bool {
	return func(msg events.Msg) bool {
		m, ok := msg.(events.ChatMsg)
		return ok && m.Label == chat.RemoteLabel && m.Text == text
	}
}

func completed(dir events.Direction) func(events.Msg) bool {
	return func(msg events.Msg) bool {
		m, ok := msg.(events.TransferCompleteMsg)
		return ok && m.Direction == dir
	}
}

func started(dir events.Direction) func(events.Msg) bool {
	return func(msg events.Msg) bool {
		m, ok := msg.(events.TransferStartedMsg)
		return ok && m.Direction == dir
	}
}

func errorIs(target error) func(events.Msg) bool {
	return func(msg events.Msg) bool {
		m, ok := msg.(events.ErrorMsg)
		return ok && errors.Is(m.Err, target)
	}
}

type peer struct {
	session *Session
	framer  *framer.Framer
	lines   chan string
	events  *recorder
	done    chan error
}

// newPeer binds a session to one end of an in-memory channel. A positive
// delay slows down delivery of every binary message to this peer.
func newPeer(t *testing.T, ep *testutil.Endpoint, config Config, delay time.Duration) *peer {
	t.Helper()
	p := &peer{
		lines:  make(chan string),
		events: newRecorder(),
		done:   make(chan error, 1),
	}
	p.session = New(config, p.lines, p.events.ch)
	p.framer = framer.NewFromConfig(ep, config.Transfer)
	ep.OnMessage(func(msg webrtc.DataChannelMessage) {
		if delay > 0 && !msg.IsString {
			time.Sleep(delay)
		}
		p.framer.Deliver(msg)
	})
	ep.OnClose(p.framer.Close)
	return p
}

func (p *peer) start(ctx context.Context) {
	go func() {
		p.done <- p.session.serve(ctx, p.framer)
	}()
}

func (p *peer) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-p.done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("session did not stop")
		return nil
	}
}

func testConfig(t *testing.T, role handshake.Role) Config {
	t.Helper()
	config := DefaultConfig(role)
	config.Transfer.OutputDir = t.TempDir()
	config.Transfer.HighWaterMark = 64 * 1024
	config.Transfer.LowWaterMark = 16 * 1024
	return config
}

func writeRandomFile(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

func TestNewSession(t *testing.T) {
	s := New(Config{Role: handshake.Responder}, nil, nil)

	assert.Equal(t, StateCreated, s.State())
	_, err := uuid.Parse(s.ID())
	assert.NoError(t, err)
	assert.NotEqual(t, s.ID(), New(Config{}, nil, nil).ID())
	assert.Equal(t, DefaultLabel, s.config.Label)
	require.NotNil(t, s.config.Transfer)
	assert.Equal(t, transfer.DefaultChunkSize, s.config.Transfer.ChunkSize)
	assert.Equal(t, "Handshaking", StateHandshaking.String())
}

func TestServeSendsFileOnOpen(t *testing.T) {
	path, data := writeRandomFile(t, "report.bin", 1024*1024)

	a, b := testutil.NewPipe(64)
	configA := testConfig(t, handshake.Initiator)
	configA.FilePath = path
	configB := testConfig(t, handshake.Responder)

	sender := newPeer(t, a, configA, 0)
	receiver := newPeer(t, b, configB, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender.start(ctx)
	receiver.start(ctx)

	receiver.events.waitFor(t, "greeting", chatFrom(DefaultGreeting))
	sender.events.waitFor(t, "greeting", chatFrom(DefaultGreeting))
	receiver.events.waitFor(t, "incoming transfer complete", completed(events.Incoming))
	sender.events.waitFor(t, "outgoing transfer complete", completed(events.Outgoing))

	got, err := os.ReadFile(filepath.Join(configB.Transfer.OutputDir, "received_report.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	cancel()
	assert.NoError(t, sender.wait(t))
	assert.NoError(t, receiver.wait(t))
}

func TestServeChatInterleavesWithTransfer(t *testing.T) {
	path, data := writeRandomFile(t, "big.bin", 10*1024*1024)

	a, b := testutil.NewPipe(64)
	configB := testConfig(t, handshake.Responder)
	sender := newPeer(t, a, testConfig(t, handshake.Initiator), 0)
	receiver := newPeer(t, b, configB, 500*time.Microsecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender.start(ctx)
	receiver.start(ctx)

	sender.lines <- "/send " + path
	sender.events.waitFor(t, "outgoing transfer start", started(events.Outgoing))

	sender.lines <- "hello during transfer"
	sender.lines <- "/send " + path
	sender.events.waitFor(t, "second transfer rejected", errorIs(concurrency.ErrBusy))

	chatIdx := receiver.events.waitFor(t, "chat line", chatFrom("hello during transfer"))
	doneIdx := receiver.events.waitFor(t, "incoming transfer complete", completed(events.Incoming))
	assert.Less(t, chatIdx, doneIdx, "chat must not wait for the transfer to finish")

	got, err := os.ReadFile(filepath.Join(configB.Transfer.OutputDir, "received_big.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestServeEndsWhenChannelCloses(t *testing.T) {
	path, _ := writeRandomFile(t, "big.bin", 4*1024*1024)

	a, b := testutil.NewPipe(64)
	configA := testConfig(t, handshake.Initiator)
	configA.FilePath = path
	sender := newPeer(t, a, configA, 0)
	receiver := newPeer(t, b, testConfig(t, handshake.Responder), time.Millisecond)
	sender.start(context.Background())
	receiver.start(context.Background())

	receiver.events.waitFor(t, "incoming transfer start", started(events.Incoming))
	require.NoError(t, a.Close())

	assert.ErrorIs(t, sender.wait(t), ErrTransportClosed)
	assert.ErrorIs(t, receiver.wait(t), ErrTransportClosed)
	assert.Equal(t, -1, receiver.events.index(completed(events.Incoming)))
}

func TestServeSurvivesProtocolViolation(t *testing.T) {
	raw, b := testutil.NewPipe(16)
	raw.OnMessage(func(webrtc.DataChannelMessage) {})
	config := testConfig(t, handshake.Responder)
	config.Greeting = ""
	p := newPeer(t, b, config, 0)
	ctx, cancel := context.WithCancel(context.Background())
	p.start(ctx)

	require.NoError(t, raw.Send([]byte{1, 2, 3}))
	p.events.waitFor(t, "violation report", errorIs(transfer.ErrNoActiveTransfer))

	require.NoError(t, raw.SendText("still here"))
	p.events.waitFor(t, "chat after violation", chatFrom("still here"))

	cancel()
	assert.NoError(t, p.wait(t))
}

func TestServeByeStopsChatOnly(t *testing.T) {
	a, b := testutil.NewPipe(16)
	left := newPeer(t, a, testConfig(t, handshake.Initiator), 0)
	right := newPeer(t, b, testConfig(t, handshake.Responder), 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	left.start(ctx)
	right.start(ctx)

	left.lines <- "bye"
	right.events.waitFor(t, "farewell", chatFrom(chat.FarewellMessage))

	select {
	case err := <-left.done:
		t.Fatalf("session stopped after bye: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	right.lines <- "are you still there?"
	left.events.waitFor(t, "chat after bye", chatFrom("are you still there?"))

	cancel()
	assert.NoError(t, left.wait(t))
	assert.NoError(t, right.wait(t))
}

func TestServeReportsMissingFile(t *testing.T) {
	raw, b := testutil.NewPipe(16)
	var mu sync.Mutex
	var received []webrtc.DataChannelMessage
	raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	config := testConfig(t, handshake.Initiator)
	config.Greeting = ""
	p := newPeer(t, b, config, 0)
	ctx, cancel := context.WithCancel(context.Background())
	p.start(ctx)

	p.lines <- "/send " + filepath.Join(t.TempDir(), "missing.bin")
	p.events.waitFor(t, "send failure", func(msg events.Msg) bool {
		_, ok := msg.(events.ErrorMsg)
		return ok
	})

	cancel()
	assert.NoError(t, p.wait(t))
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, received, "nothing may be announced for an unreadable file")
}

func TestServeTreatsIncompleteAnnouncementAsChat(t *testing.T) {
	raw, b := testutil.NewPipe(16)
	raw.OnMessage(func(webrtc.DataChannelMessage) {})
	config := testConfig(t, handshake.Responder)
	config.Greeting = ""
	p := newPeer(t, b, config, 0)
	ctx, cancel := context.WithCancel(context.Background())
	p.start(ctx)

	for _, text := range []string{
		`{"kind":"file-meta","filename":"x.bin"}`,
		`{"kind":"file-meta","filename":"y.bin","size":null}`,
	} {
		require.NoError(t, raw.SendText(text))
		p.events.waitFor(t, "chat line", chatFrom(text))
	}

	cancel()
	assert.NoError(t, p.wait(t))
	assert.Equal(t, -1, p.events.index(started(events.Incoming)))
	entries, err := os.ReadDir(config.Transfer.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no file may be created for an incomplete announcement")
}
