package handshake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/rescp17/peerlink/internal/events"
)

// ErrNoInput is returned when operator input ends before a descriptor arrives.
var ErrNoInput = errors.New("input closed before a session descriptor was entered")

// Signaler moves encoded descriptors between the peers. It decouples the
// handshake from the out-of-band path (terminal copy/paste, a file, a chat app).
type Signaler interface {
	// Publish hands the local descriptor to the operator for transmission.
	Publish(ctx context.Context, sdpType webrtc.SDPType, encoded string) error
	// Await blocks until the remote descriptor text is supplied.
	Await(ctx context.Context, sdpType webrtc.SDPType) (string, error)
}

// ConsoleSignaler prints descriptors to the operator console and reads the
// remote one from operator input lines.
type ConsoleSignaler struct {
	lines      <-chan string
	uiMessages chan<- events.Msg
}

func NewConsoleSignaler(lines <-chan string, uiMessages chan<- events.Msg) *ConsoleSignaler {
	return &ConsoleSignaler{
		lines:      lines,
		uiMessages: uiMessages,
	}
}

func (s *ConsoleSignaler) Publish(ctx context.Context, sdpType webrtc.SDPType, encoded string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	events.Emit(s.uiMessages, events.DescriptorMsg{Type: sdpType.String(), Text: encoded})
	return nil
}

// Await prompts for the remote descriptor and returns the first non-blank line.
func (s *ConsoleSignaler) Await(ctx context.Context, sdpType webrtc.SDPType) (string, error) {
	events.Emit(s.uiMessages, events.PromptMsg{
		Prompt: fmt.Sprintf("Paste the %s from the other peer and press Enter:", strings.ToUpper(sdpType.String())),
	})
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				return "", ErrNoInput
			}
			if line = strings.TrimSpace(line); line != "" {
				return line, nil
			}
		}
	}
}
