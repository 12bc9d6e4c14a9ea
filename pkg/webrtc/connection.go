// Package webrtc builds the peer connection and its data channel on top of pion.
package webrtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

const (
	MTU uint = 1400

	// DefaultSTUNServer is used when no ICE servers are configured.
	DefaultSTUNServer = "stun:stun.l.google.com:19302"
)

// ErrNoLocalDescription is returned if gathering finished without a local description.
var ErrNoLocalDescription = errors.New("local description not available")

// Config holds the configuration for creating a new Connection.
type Config struct {
	// ICEServers defaults to DefaultSTUNServer unless LocalOnly is set.
	ICEServers []webrtc.ICEServer
	// MulticastDNS enables mDNS host candidates so LAN addresses stay private.
	MulticastDNS bool
	// IncludeLoopback offers 127.0.0.1 candidates. Useful when both peers
	// run on the same machine.
	IncludeLoopback bool
	// LocalOnly skips the default STUN server, producing host candidates only.
	LocalOnly bool
}

func DefaultConfig() Config {
	return Config{MulticastDNS: true}
}

type WebRTCAPI struct {
	api    *webrtc.API
	config Config
}

func NewWebRTCAPI(config Config) *WebRTCAPI {
	settings := webrtc.SettingEngine{}
	if config.MulticastDNS {
		settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryAndGather)
	} else {
		settings.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}
	settings.SetReceiveMTU(MTU)
	settings.SetIncludeLoopbackCandidate(config.IncludeLoopback)
	settings.LoggerFactory = NewLoggerFactory(slog.Default())

	// Using NewAPI is crucial for managing multiple PeerConnections in one application.
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settings))
	return &WebRTCAPI{
		api:    api,
		config: config,
	}
}

func (a *WebRTCAPI) iceServers() []webrtc.ICEServer {
	if len(a.config.ICEServers) > 0 {
		return a.config.ICEServers
	}
	if a.config.LocalOnly {
		return nil
	}
	return []webrtc.ICEServer{{URLs: []string{DefaultSTUNServer}}}
}

// Connection wraps a single WebRTC peer connection. Candidates are gathered
// before a description is returned, so each descriptor is complete on its own
// and no candidates are exchanged afterwards.
type Connection struct {
	peerConnection *webrtc.PeerConnection
}

func (a *WebRTCAPI) NewConnection() (*Connection, error) {
	pc, err := a.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: a.iceServers(),
	})
	if err != nil {
		err = fmt.Errorf("failed to create peer connection: %w", err)
		slog.Error("NewConnection", "error", err)
		return nil, err
	}
	return &Connection{peerConnection: pc}, nil
}

// CreateDataChannel opens an ordered, reliable channel. Chunks carry no
// sequence numbers, so the channel must never be unordered.
func (c *Connection) CreateDataChannel(label string) (*webrtc.DataChannel, error) {
	ordered := true
	dc, err := c.peerConnection.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("failed to create data channel %q: %w", label, err)
	}
	return dc, nil
}

func (c *Connection) OnDataChannel(f func(*webrtc.DataChannel)) {
	c.peerConnection.OnDataChannel(f)
}

func (c *Connection) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	c.peerConnection.OnConnectionStateChange(f)
}

// CreateOffer creates the local offer and returns it once ICE gathering has completed.
func (c *Connection) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	offer, err := c.peerConnection.CreateOffer(nil)
	if err != nil {
		err = fmt.Errorf("failed to create offer: %w", err)
		slog.Error("CreateOffer", "error", err)
		return webrtc.SessionDescription{}, err
	}
	return c.setLocalAndGather(ctx, offer)
}

// CreateAnswer applies the remote offer and returns the local answer once ICE
// gathering has completed.
func (c *Connection) CreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.peerConnection.SetRemoteDescription(offer); err != nil {
		err = fmt.Errorf("failed to set remote description: %w", err)
		slog.Error("CreateAnswer", "error", err)
		return webrtc.SessionDescription{}, err
	}

	answer, err := c.peerConnection.CreateAnswer(nil)
	if err != nil {
		err = fmt.Errorf("failed to create answer: %w", err)
		slog.Error("CreateAnswer", "error", err)
		return webrtc.SessionDescription{}, err
	}
	return c.setLocalAndGather(ctx, answer)
}

// AcceptAnswer applies the remote answer on the offering side.
func (c *Connection) AcceptAnswer(answer webrtc.SessionDescription) error {
	if err := c.peerConnection.SetRemoteDescription(answer); err != nil {
		err = fmt.Errorf("failed to set remote answer: %w", err)
		slog.Error("AcceptAnswer", "error", err)
		return err
	}
	return nil
}

func (c *Connection) setLocalAndGather(ctx context.Context, desc webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	gathered := webrtc.GatheringCompletePromise(c.peerConnection)
	if err := c.peerConnection.SetLocalDescription(desc); err != nil {
		err = fmt.Errorf("failed to set local %s: %w", desc.Type, err)
		slog.Error("SetLocalDescription", "error", err)
		return webrtc.SessionDescription{}, err
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return webrtc.SessionDescription{}, ctx.Err()
	}

	local := c.peerConnection.LocalDescription()
	if local == nil {
		return webrtc.SessionDescription{}, ErrNoLocalDescription
	}
	slog.Debug("ICE gathering complete", "type", local.Type.String())
	return *local, nil
}

// Close gracefully shuts down the WebRTC connection.
func (c *Connection) Close() error {
	if c.peerConnection != nil {
		slog.Info("Closing webrtc connection")
		return c.peerConnection.Close()
	}
	return nil
}
