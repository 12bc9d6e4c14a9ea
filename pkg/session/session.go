// Package session ties the handshake, the channel framer, file transfer and
// chat together for one peer-to-peer connection.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/rescp17/peerlink/internal/events"
	"github.com/rescp17/peerlink/pkg/framer"
	"github.com/rescp17/peerlink/pkg/handshake"
	"github.com/rescp17/peerlink/pkg/transfer"
	webrtcPkg "github.com/rescp17/peerlink/pkg/webrtc"
)

// ErrTransportClosed is returned when the channel or the peer connection goes away.
var ErrTransportClosed = errors.New("transport closed")

const (
	DefaultLabel    = "p2p-data-channel"
	DefaultGreeting = "Test message from this peer."
)

type State int32

const (
	StateCreated State = iota
	StateHandshaking
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateHandshaking:
		return "Handshaking"
	case StateOpen:
		return "Open"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type Config struct {
	Role handshake.Role
	// FilePath is sent as soon as the channel opens when set.
	FilePath string
	Label    string
	// Greeting is sent once the channel opens. Empty disables it.
	Greeting string

	Transfer *transfer.Config
	WebRTC   webrtcPkg.Config
}

func DefaultConfig(role handshake.Role) Config {
	return Config{
		Role:     role,
		Label:    DefaultLabel,
		Greeting: DefaultGreeting,
		Transfer: transfer.DefaultConfig(),
		WebRTC:   webrtcPkg.DefaultConfig(),
	}
}

// Session is the context object for one connection. All tasks of the
// session share it; it is torn down as a unit.
type Session struct {
	id         string
	config     Config
	lines      <-chan string
	uiMessages chan<- events.Msg
	logger     *slog.Logger

	state atomic.Int32
}

// New creates a session. lines carries operator input, first for the
// descriptor exchange and then for chat.
func New(config Config, lines <-chan string, uiMessages chan<- events.Msg) *Session {
	if config.Label == "" {
		config.Label = DefaultLabel
	}
	if config.Transfer == nil {
		config.Transfer = transfer.DefaultConfig()
	}
	id := uuid.NewString()
	return &Session{
		id:         id,
		config:     config,
		lines:      lines,
		uiMessages: uiMessages,
		logger:     slog.With("session", id, "role", config.Role.String()),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	s.logger.Info("Session state changed", "from", prev, "to", next)
}

// Run performs the handshake and serves the open channel until ctx is done or
// the transport closes. It returns nil when ctx ends the session and
// ErrTransportClosed when the peer went away.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateClosed)

	api := webrtcPkg.NewWebRTCAPI(s.config.WebRTC)
	conn, err := api.NewConnection()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			s.logger.Warn("Failed to close peer connection", "error", cerr)
		}
	}()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	conn.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.logger.Info("Peer connection state changed", "state", st.String())
		if st == webrtc.PeerConnectionStateFailed || st == webrtc.PeerConnectionStateClosed {
			cancel(ErrTransportClosed)
		}
	})

	var (
		channel  *framer.Framer
		open     = make(chan struct{})
		openOnce sync.Once
	)
	bind := func(dc *webrtc.DataChannel) {
		f := framer.NewFromConfig(dc, s.config.Transfer)
		dc.OnMessage(f.Deliver)
		dc.OnClose(func() {
			s.logger.Info("Data channel closed", "label", dc.Label())
			f.Close()
			cancel(ErrTransportClosed)
		})
		dc.OnOpen(func() {
			openOnce.Do(func() {
				channel = f
				close(open)
			})
		})
	}

	if s.config.Role == handshake.Initiator {
		dc, err := conn.CreateDataChannel(s.config.Label)
		if err != nil {
			return err
		}
		bind(dc)
	} else {
		conn.OnDataChannel(func(dc *webrtc.DataChannel) {
			s.logger.Info("Data channel created by remote", "label", dc.Label())
			events.Emit(s.uiMessages, events.StatusMsg{Message: fmt.Sprintf("DataChannel created by remote with label %s", dc.Label())})
			bind(dc)
		})
	}

	s.setState(StateHandshaking)
	coordinator := handshake.NewCoordinator(s.config.Role, conn, handshake.NewConsoleSignaler(s.lines, s.uiMessages))
	if err := coordinator.Run(ctx, open); err != nil {
		return s.endErr(ctx, err)
	}

	s.setState(StateOpen)
	events.Emit(s.uiMessages, events.StatusMsg{Message: "Data channel is open! You can start chatting or send a file."})
	events.Emit(s.uiMessages, events.StatusMsg{Message: "Connection established. Press Ctrl+C to stop."})
	return s.endErr(ctx, s.serve(ctx, channel))
}

// endErr maps the end of the session to its cause: the transport, the
// caller's context or a genuine failure.
func (s *Session) endErr(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrTransportClosed) || errors.Is(err, ErrTransportClosed) {
		s.logger.Info("Session ended by transport")
		return ErrTransportClosed
	}
	if ctx.Err() != nil {
		s.logger.Info("Session ended", "cause", context.Cause(ctx))
		return nil
	}
	if err != nil {
		s.logger.Error("Session failed", "error", err)
	}
	return err
}

var _ handshake.Negotiator = (*webrtcPkg.Connection)(nil)
