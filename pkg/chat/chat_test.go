package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/peerlink/internal/events"
	"github.com/rescp17/peerlink/pkg/framer"
)

type mockOutbound struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *mockOutbound) SendChat(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, text)
	return nil
}

func runWithLines(t *testing.T, s *Session, lines ...string) error {
	t.Helper()
	ch := make(chan string, len(lines))
	for _, l := range lines {
		ch <- l
	}
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.Run(ctx, ch)
}

func TestSession_SendsOperatorLines(t *testing.T) {
	out := &mockOutbound{}
	s := New(out, nil)

	require.NoError(t, runWithLines(t, s, "hello", "   ", "", "  how are you?  "))
	assert.Equal(t, []string{"hello", "how are you?"}, out.sent)
}

func TestSession_Bye(t *testing.T) {
	out := &mockOutbound{}
	uiMessages := make(chan events.Msg, 10)
	s := New(out, uiMessages)

	require.NoError(t, runWithLines(t, s, "first", "BYE", "never sent"))
	assert.Equal(t, []string{"first", FarewellMessage}, out.sent)

	msg := <-uiMessages
	status, ok := msg.(events.StatusMsg)
	require.True(t, ok)
	assert.Contains(t, status.Message, "Goodbye")
}

func TestSession_SendCommand(t *testing.T) {
	out := &mockOutbound{}
	var requested []string
	s := New(out, nil, WithFileSender(func(path string) {
		requested = append(requested, path)
	}))

	require.NoError(t, runWithLines(t, s, "/send ./report.bin", "/sendmail is chat", "/send   spaced name.txt  "))
	assert.Equal(t, []string{"./report.bin", "spaced name.txt"}, requested)
	assert.Equal(t, []string{"/sendmail is chat"}, out.sent)
}

func TestSession_SendCommandErrors(t *testing.T) {
	uiMessages := make(chan events.Msg, 10)

	s := New(&mockOutbound{}, uiMessages)
	require.NoError(t, runWithLines(t, s, "/send x", "/send"))
	require.Len(t, uiMessages, 2)
	for i := 0; i < 2; i++ {
		_, ok := (<-uiMessages).(events.ErrorMsg)
		assert.True(t, ok)
	}
}

func TestSession_SendFailures(t *testing.T) {
	t.Run("reported_and_continues", func(t *testing.T) {
		out := &mockOutbound{err: framer.ErrChatLooksLikeControl}
		uiMessages := make(chan events.Msg, 10)
		s := New(out, uiMessages)

		require.NoError(t, runWithLines(t, s, "one", "two"))
		assert.Len(t, uiMessages, 2)
	})

	t.Run("channel_closed_stops", func(t *testing.T) {
		out := &mockOutbound{err: framer.ErrChannelClosed}
		s := New(out, nil)

		err := runWithLines(t, s, "one", "two")
		assert.True(t, errors.Is(err, framer.ErrChannelClosed))
	})
}

func TestSession_StopsOnContext(t *testing.T) {
	s := New(&mockOutbound{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, make(chan string))
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSession_Receive(t *testing.T) {
	uiMessages := make(chan events.Msg, 1)
	New(&mockOutbound{}, uiMessages).Receive("hi from afar")

	msg, ok := (<-uiMessages).(events.ChatMsg)
	require.True(t, ok)
	assert.Equal(t, RemoteLabel, msg.Label)
	assert.Equal(t, "hi from afar", msg.Text)
}
