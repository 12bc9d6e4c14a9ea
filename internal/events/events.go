// Package events defines the messages the session components send to the
// operator console.
package events

// Msg is a marker interface for messages sent from the session components to
// the console. The unexported method keeps foreign types out; embed UIMessage
// to satisfy it.
type Msg interface {
	isUIMessage()
}

// UIMessage is embedded by every message type.
type UIMessage struct{}

func (UIMessage) isUIMessage() {}

// Direction tells whether a transfer message concerns a file being sent or received.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// StatusMsg is a free-form progress note.
type StatusMsg struct {
	UIMessage
	Message string
}

// ErrorMsg reports a failure the operator should see.
type ErrorMsg struct {
	UIMessage
	Err error
}

// DescriptorMsg carries a local session descriptor that the operator must
// copy to the remote peer verbatim.
type DescriptorMsg struct {
	UIMessage
	Type string // "offer" or "answer"
	Text string
}

// PromptMsg asks the operator for input.
type PromptMsg struct {
	UIMessage
	Prompt string
}

// ChatMsg is a chat line received from the remote peer.
type ChatMsg struct {
	UIMessage
	Label string
	Text  string
}

type TransferStartedMsg struct {
	UIMessage
	Direction Direction
	FileName  string
	Size      int64
	Path      string // destination path for incoming transfers
}

type ProgressMsg struct {
	UIMessage
	Direction Direction
	FileName  string
	Done      int64
	Total     int64
}

type TransferCompleteMsg struct {
	UIMessage
	Direction Direction
	FileName  string
	Size      int64
	Path      string
}

var (
	_ Msg = StatusMsg{}
	_ Msg = ErrorMsg{}
	_ Msg = DescriptorMsg{}
	_ Msg = PromptMsg{}
	_ Msg = ChatMsg{}
	_ Msg = TransferStartedMsg{}
	_ Msg = ProgressMsg{}
	_ Msg = TransferCompleteMsg{}
)

// Emit sends msg on ch. A nil channel drops the message so components can run
// without a console attached.
func Emit(ch chan<- Msg, msg Msg) {
	if ch == nil {
		return
	}
	ch <- msg
}
