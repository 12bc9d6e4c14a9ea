package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/rescp17/peerlink/internal/console"
	"github.com/rescp17/peerlink/internal/events"
	"github.com/rescp17/peerlink/pkg/handshake"
	"github.com/rescp17/peerlink/pkg/session"
	"github.com/rescp17/peerlink/pkg/transfer"
	webrtcPkg "github.com/rescp17/peerlink/pkg/webrtc"
)

type options struct {
	file      string
	chunkSize int
	outDir    string
	stun      []string
	noMDNS    bool
	loopback  bool
	localOnly bool
	greeting  string
	noVerify  bool
	logFile   string
	verbose   bool
	role      string
}

func main() {
	if err := fang.Execute(context.Background(), newRootCmd()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&options{})
}

// buildRootCmd binds every flag to opts.
func buildRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peerlink",
		Short: "Peer-to-peer chat and file transfer over a WebRTC data channel",
		Long: "peerlink connects two peers directly. One side runs 'offer', the other 'answer';\n" +
			"the session descriptors are exchanged by copy and paste.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.role == "" {
				return cmd.Help()
			}
			role, err := handshake.ParseRole(opts.role)
			if err != nil {
				return err
			}
			return run(cmd.Context(), role, opts)
		},
	}
	cmd.Flags().StringVar(&opts.role, "role", "", "Role of this peer: offer or answer (same as the subcommands)")

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.file, "file", "", "File to send as soon as the channel opens")
	flags.IntVar(&opts.chunkSize, "chunk-size", transfer.DefaultChunkSize, "Maximum bytes per file chunk")
	flags.StringVar(&opts.outDir, "out-dir", ".", "Directory where received files are written")
	flags.StringSliceVar(&opts.stun, "stun", nil, "STUN/TURN server URLs (default "+webrtcPkg.DefaultSTUNServer+")")
	flags.BoolVar(&opts.noMDNS, "no-mdns", false, "Disable mDNS host candidates")
	flags.BoolVar(&opts.loopback, "loopback", false, "Offer loopback candidates, for two peers on one machine")
	flags.BoolVar(&opts.localOnly, "local-only", false, "Do not use a STUN server")
	flags.StringVar(&opts.greeting, "greeting", session.DefaultGreeting, "Chat line sent when the channel opens (empty disables)")
	flags.BoolVar(&opts.noVerify, "no-verify", false, "Skip sha256 announcement and verification")
	flags.StringVar(&opts.logFile, "log-file", "peerlink.log", "Log file path")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	offerCmd := &cobra.Command{
		Use:   "offer",
		Short: "Start as the initiator: print an offer, then paste the answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), handshake.Initiator, opts)
		},
	}

	answerCmd := &cobra.Command{
		Use:   "answer",
		Short: "Start as the responder: paste the offer, then print an answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), handshake.Responder, opts)
		},
	}

	cmd.AddCommand(offerCmd)
	cmd.AddCommand(answerCmd)
	return cmd
}

func (o *options) sessionConfig(role handshake.Role) (session.Config, error) {
	config := session.DefaultConfig(role)
	config.FilePath = o.file
	config.Greeting = o.greeting

	config.Transfer.ChunkSize = o.chunkSize
	config.Transfer.OutputDir = o.outDir
	config.Transfer.VerifyChecksum = !o.noVerify
	if err := config.Transfer.Validate(); err != nil {
		return session.Config{}, fmt.Errorf("invalid transfer settings: %w", err)
	}

	config.WebRTC.MulticastDNS = !o.noMDNS
	config.WebRTC.IncludeLoopback = o.loopback
	config.WebRTC.LocalOnly = o.localOnly
	if len(o.stun) > 0 {
		config.WebRTC.ICEServers = []webrtc.ICEServer{{URLs: o.stun}}
	}
	return config, nil
}

func setupLogging(path string, verbose bool) (func(), error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})))
	return func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}, nil
}

func run(ctx context.Context, role handshake.Role, opts *options) error {
	closeLog, err := setupLogging(opts.logFile, opts.verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	config, err := opts.sessionConfig(role)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	term := console.New(os.Stdin, os.Stdout)
	renderCtx, stopRender := context.WithCancel(context.Background())
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		term.Render(renderCtx)
	}()

	s := session.New(config, term.Lines(), term.Events())
	slog.Info("Starting session", "session", s.ID(), "role", role.String())

	err = s.Run(ctx)
	switch {
	case errors.Is(err, session.ErrTransportClosed):
		events.Emit(term.Events(), events.StatusMsg{Message: "Peer disconnected."})
		err = nil
	case err == nil:
		events.Emit(term.Events(), events.StatusMsg{Message: "Connection closed."})
	}

	stopRender()
	<-rendered
	return err
}
