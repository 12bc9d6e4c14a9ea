// Package chat exchanges free-text lines with the remote peer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rescp17/peerlink/internal/events"
	"github.com/rescp17/peerlink/pkg/framer"
)

const (
	// RemoteLabel prefixes every line received from the peer.
	RemoteLabel = "Peer"

	// ByeCommand ends chat input and tells the peer we left.
	ByeCommand      = "bye"
	FarewellMessage = "Peer has left the chat."

	// SendCommand starts a file transfer: "/send <path>".
	SendCommand = "/send"
)

// Outbound is the part of the channel framer chat writes to.
type Outbound interface {
	SendChat(text string) error
}

// Session reads operator lines and sends them as chat, and displays chat
// received from the peer.
type Session struct {
	out        Outbound
	uiMessages chan<- events.Msg
	sendFile   func(path string)
}

type Option func(*Session)

// WithFileSender enables the /send command.
func WithFileSender(f func(path string)) Option {
	return func(s *Session) {
		s.sendFile = f
	}
}

func New(out Outbound, uiMessages chan<- events.Msg, opts ...Option) *Session {
	s := &Session{
		out:        out,
		uiMessages: uiMessages,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run consumes operator lines until ctx is done, the input ends or the
// operator says bye. A failed send is reported and input continues, unless
// the channel itself is gone.
func (s *Session) Run(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				slog.Info("Operator input closed, chat input stopped")
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			done, err := s.handleLine(line)
			if err != nil {
				if errors.Is(err, framer.ErrChannelClosed) {
					return err
				}
				slog.Warn("Chat send failed", "error", err)
				events.Emit(s.uiMessages, events.ErrorMsg{Err: err})
			}
			if done {
				return nil
			}
		}
	}
}

func (s *Session) handleLine(line string) (bool, error) {
	if strings.EqualFold(line, ByeCommand) {
		events.Emit(s.uiMessages, events.StatusMsg{Message: "Ending chat. Goodbye!"})
		return true, s.out.SendChat(FarewellMessage)
	}

	if path, ok := strings.CutPrefix(line, SendCommand); ok && (path == "" || path[0] == ' ') {
		path = strings.TrimSpace(path)
		if path == "" {
			return false, fmt.Errorf("usage: %s <path>", SendCommand)
		}
		if s.sendFile == nil {
			return false, errors.New("file sending is not available in this session")
		}
		s.sendFile(path)
		return false, nil
	}

	return false, s.out.SendChat(line)
}

// Receive displays a chat line from the peer.
func (s *Session) Receive(text string) {
	slog.Debug("Chat received", "bytes", len(text))
	events.Emit(s.uiMessages, events.ChatMsg{Label: RemoteLabel, Text: text})
}
