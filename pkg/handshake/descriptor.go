package handshake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

var (
	// ErrMalformedDescriptor is returned for input that is not a session descriptor.
	ErrMalformedDescriptor = errors.New("malformed session descriptor")
	// ErrUnexpectedType is returned when the peer pasted the wrong kind of descriptor.
	ErrUnexpectedType = errors.New("unexpected session descriptor type")
)

// wireDescriptor is the single-line JSON form exchanged out of band.
type wireDescriptor struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Encode renders desc as one line of JSON. Line breaks inside the SDP are
// escaped so the whole descriptor can be pasted as a single input line.
func Encode(desc webrtc.SessionDescription) (string, error) {
	if desc.Type != webrtc.SDPTypeOffer && desc.Type != webrtc.SDPTypeAnswer {
		return "", fmt.Errorf("%w: cannot encode type %s", ErrMalformedDescriptor, desc.Type)
	}
	data, err := json.Marshal(wireDescriptor{Type: desc.Type.String(), SDP: desc.SDP})
	if err != nil {
		return "", fmt.Errorf("failed to encode session descriptor: %w", err)
	}
	return string(data), nil
}

// Decode parses descriptor text produced by Encode on the remote side and
// checks that it is of the expected type and carries a well-formed SDP body.
func Decode(text string, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: empty input", ErrMalformedDescriptor)
	}

	var wire wireDescriptor
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}

	got := webrtc.NewSDPType(wire.Type)
	if got == webrtc.SDPTypeUnknown {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: type %q", ErrMalformedDescriptor, wire.Type)
	}
	if got != want {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedType, got, want)
	}

	if strings.TrimSpace(wire.SDP) == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: missing sdp", ErrMalformedDescriptor)
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(wire.SDP)); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: invalid sdp: %v", ErrMalformedDescriptor, err)
	}

	return webrtc.SessionDescription{Type: got, SDP: wire.SDP}, nil
}
