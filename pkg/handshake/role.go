package handshake

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// Role decides the order of the descriptor exchange.
type Role int

const (
	// Initiator publishes an offer first, then waits for the answer.
	Initiator Role = iota
	// Responder waits for the offer, then publishes an answer.
	Responder
)

// ParseRole accepts the CLI spellings "offer"/"answer" as well as the role names.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "offer", "initiator":
		return Initiator, nil
	case "answer", "responder":
		return Responder, nil
	default:
		return 0, fmt.Errorf("unknown role %q: want offer or answer", s)
	}
}

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// LocalType is the descriptor type this role publishes.
func (r Role) LocalType() webrtc.SDPType {
	if r == Initiator {
		return webrtc.SDPTypeOffer
	}
	return webrtc.SDPTypeAnswer
}

// RemoteType is the descriptor type this role expects from the peer.
func (r Role) RemoteType() webrtc.SDPType {
	if r == Initiator {
		return webrtc.SDPTypeAnswer
	}
	return webrtc.SDPTypeOffer
}
