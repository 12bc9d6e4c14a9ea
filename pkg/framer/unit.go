package framer

import (
	"github.com/pion/webrtc/v4"

	"github.com/rescp17/peerlink/pkg/transfer"
)

// Unit is one classified message from the channel. It is exactly one of
// Chunk, Control or Chat; the decision is made once in Classify.
type Unit interface {
	isUnit()
}

// Chunk is a slice of file bytes. It arrives as a binary message.
type Chunk []byte

// Control is a file-meta announcement. It arrives as a text message.
type Control struct {
	transfer.ControlMessage
}

// Chat is a text line typed by the remote operator.
type Chat string

func (Chunk) isUnit()   {}
func (Control) isUnit() {}
func (Chat) isUnit()    {}

// Classify decides the unit kind of a raw channel message. Binary messages
// are always chunks and are never inspected. Text messages are control
// messages when they decode as a file-meta announcement, chat otherwise.
func Classify(msg webrtc.DataChannelMessage) Unit {
	if !msg.IsString {
		return Chunk(msg.Data)
	}
	if ctrl, ok := transfer.ParseControl(msg.Data); ok {
		return Control{ControlMessage: ctrl}
	}
	return Chat(msg.Data)
}
