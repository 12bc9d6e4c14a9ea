package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rescp17/peerlink/internal/events"
	"github.com/rescp17/peerlink/pkg/fileInfo"
)

// Outbound is the part of the channel framer the sender writes to.
type Outbound interface {
	SendControl(msg ControlMessage) error
	// SendChunk may block until the channel has drained enough to accept more data.
	SendChunk(ctx context.Context, data []byte) error
}

// Sender streams local files to the peer: one announcement followed by the
// file bytes in bounded chunks.
type Sender struct {
	out        Outbound
	config     *Config
	uiMessages chan<- events.Msg
}

func NewSender(out Outbound, config *Config, uiMessages chan<- events.Msg) *Sender {
	return &Sender{
		out:        out,
		config:     config,
		uiMessages: uiMessages,
	}
}

// SendFile announces and streams the file at path. Nothing is sent when the
// file cannot be opened.
func (s *Sender) SendFile(ctx context.Context, path string) error {
	node, err := fileInfo.CreateNode(path, s.config.VerifyChecksum)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", path, err)
	}
	if node.IsDir {
		return fmt.Errorf("%s: %w", path, ErrIsDir)
	}

	chunker, err := NewChunker(path, s.config.ChunkSize)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if err := chunker.Close(); err != nil {
			slog.Warn("failed to close source file", "path", path, "error", err)
		}
	}()

	meta := NewFileMeta(node.Name, chunker.Size())
	meta.MimeType = node.MimeType
	meta.Checksum = node.Checksum

	slog.Info("Sending file", "fileName", meta.Filename, "size", meta.Size, "mime", meta.MimeType)
	if err := s.out.SendControl(meta); err != nil {
		return fmt.Errorf("failed to announce %s: %w", meta.Filename, err)
	}
	events.Emit(s.uiMessages, events.TransferStartedMsg{
		Direction: events.Outgoing,
		FileName:  meta.Filename,
		Size:      meta.Size,
	})

	progress := newProgressTracker(meta.Size, s.config.ProgressStep)
	var sent int64
	for {
		data, err := chunker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read %s after %d bytes: %w", path, sent, err)
		}
		if err := s.out.SendChunk(ctx, data); err != nil {
			return fmt.Errorf("failed to send chunk of %s at offset %d: %w", meta.Filename, sent, err)
		}
		sent += int64(len(data))
		if progress.advance(sent) {
			events.Emit(s.uiMessages, events.ProgressMsg{
				Direction: events.Outgoing,
				FileName:  meta.Filename,
				Done:      sent,
				Total:     meta.Size,
			})
		}
	}

	slog.Info("File sent", "fileName", meta.Filename, "bytes", sent)
	events.Emit(s.uiMessages, events.TransferCompleteMsg{
		Direction: events.Outgoing,
		FileName:  meta.Filename,
		Size:      sent,
		Path:      path,
	})
	return nil
}

// progressTracker reports when a transfer crosses the next step boundary.
type progressTracker struct {
	total    int64
	step     int
	reported int
}

func newProgressTracker(total int64, step int) *progressTracker {
	if step <= 0 {
		step = DefaultProgressStep
	}
	return &progressTracker{total: total, step: step}
}

func (p *progressTracker) advance(done int64) bool {
	if p.total <= 0 {
		return false
	}
	pct := int(done * 100 / p.total)
	if pct/p.step > p.reported/p.step {
		p.reported = pct
		return true
	}
	return false
}
