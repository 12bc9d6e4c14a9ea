package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rescp17/peerlink/internal/events"
)

// State is the receiver side transfer state.
type State int

const (
	StateIdle State = iota
	StateReceiving
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// reception tracks the file currently being reassembled.
type reception struct {
	meta         ControlMessage
	fileName     string
	outputPath   string
	file         *os.File
	hasher       hash.Hash
	bytesWritten int64
	// writeErr is set once the destination failed; remaining chunks are
	// counted but dropped so the stream stays in sync.
	writeErr error
	progress *progressTracker
}

// Receiver reassembles incoming files from an announcement followed by chunks.
// It is driven by the single inbound dispatch loop and is not safe for
// concurrent use.
type Receiver struct {
	config     *Config
	uiMessages chan<- events.Msg
	state      State
	current    *reception
}

func NewReceiver(config *Config, uiMessages chan<- events.Msg) *Receiver {
	return &Receiver{
		config:     config,
		uiMessages: uiMessages,
		state:      StateIdle,
	}
}

// State returns the current transfer state.
func (r *Receiver) State() State {
	return r.state
}

// BytesWritten returns the bytes accepted for the current reception.
func (r *Receiver) BytesWritten() int64 {
	if r.current == nil {
		return 0
	}
	return r.current.bytesWritten
}

// HandleControl starts a new reception. An announcement that arrives while a
// reception is still running aborts it, leaving the partial file on disk.
func (r *Receiver) HandleControl(msg ControlMessage) error {
	if !msg.IsFileMeta() {
		return r.violation(fmt.Errorf("%w: kind %q", ErrInvalidControl, msg.Kind))
	}
	name, err := SanitizeFilename(msg.Filename)
	if err != nil {
		return r.violation(fmt.Errorf("%w: filename %q", err, msg.Filename))
	}
	if msg.Size < 0 {
		return r.violation(fmt.Errorf("%w: negative size %d", ErrInvalidControl, msg.Size))
	}

	if r.state == StateReceiving {
		prev := r.current
		r.abort()
		r.report(fmt.Errorf("transfer of %s interrupted by a new announcement after %d of %d bytes",
			prev.fileName, prev.bytesWritten, prev.meta.Size))
	}

	outputPath := filepath.Join(r.config.OutputDir, r.config.ReceivedPrefix+name)
	rec := &reception{
		meta:       msg,
		fileName:   name,
		outputPath: outputPath,
		hasher:     sha256.New(),
		progress:   newProgressTracker(msg.Size, r.config.ProgressStep),
	}

	// os.Create truncates: the last announcement for a name wins
	file, err := os.Create(outputPath)
	if err != nil {
		rec.writeErr = err
		r.report(fmt.Errorf("failed to create output file %s: %w", outputPath, err))
	} else {
		rec.file = file
	}

	r.current = rec
	r.state = StateReceiving
	slog.Info("Started receiving file", "fileName", name, "totalSize", msg.Size, "path", outputPath)
	events.Emit(r.uiMessages, events.TransferStartedMsg{
		Direction: events.Incoming,
		FileName:  name,
		Size:      msg.Size,
		Path:      outputPath,
	})

	if msg.Size == 0 {
		r.complete()
	}
	return nil
}

// HandleChunk appends data to the current reception. Chunks without an active
// reception and bytes past the announced size are dropped and reported.
func (r *Receiver) HandleChunk(data []byte) error {
	if r.state != StateReceiving || r.current == nil {
		return r.violation(fmt.Errorf("%w: dropped %d bytes", ErrNoActiveTransfer, len(data)))
	}
	rec := r.current

	var excess int
	if remaining := rec.meta.Size - rec.bytesWritten; int64(len(data)) > remaining {
		excess = len(data) - int(remaining)
		data = data[:remaining]
	}

	if rec.writeErr == nil {
		if _, err := rec.file.Write(data); err != nil {
			rec.writeErr = err
			r.report(fmt.Errorf("failed to write %s at offset %d: %w", rec.outputPath, rec.bytesWritten, err))
		} else {
			rec.hasher.Write(data)
		}
	}
	rec.bytesWritten += int64(len(data))

	if rec.progress.advance(rec.bytesWritten) && rec.bytesWritten < rec.meta.Size {
		events.Emit(r.uiMessages, events.ProgressMsg{
			Direction: events.Incoming,
			FileName:  rec.fileName,
			Done:      rec.bytesWritten,
			Total:     rec.meta.Size,
		})
	}

	if rec.bytesWritten == rec.meta.Size {
		r.complete()
	}
	if excess > 0 {
		return r.violation(fmt.Errorf("%w: dropped %d bytes past %d for %s", ErrOverrun, excess, rec.meta.Size, rec.fileName))
	}
	return nil
}

// Abort closes a reception in progress. Used when the channel goes away; the
// partial file stays on disk.
func (r *Receiver) Abort() {
	if r.state != StateReceiving {
		return
	}
	rec := r.current
	slog.Warn("Abandoning incomplete reception", "fileName", rec.fileName,
		"received", rec.bytesWritten, "expected", rec.meta.Size)
	r.abort()
}

func (r *Receiver) abort() {
	if rec := r.current; rec != nil && rec.file != nil {
		if err := rec.file.Close(); err != nil {
			slog.Warn("failed to close partial file", "path", rec.outputPath, "error", err)
		}
	}
	r.current = nil
	r.state = StateIdle
}

// complete finalizes the current reception and returns to Idle.
func (r *Receiver) complete() {
	rec := r.current
	r.state = StateComplete

	if rec.file != nil {
		if err := rec.file.Close(); err != nil && rec.writeErr == nil {
			rec.writeErr = err
			r.report(fmt.Errorf("failed to close %s: %w", rec.outputPath, err))
		}
	}

	switch {
	case rec.writeErr != nil:
		slog.Error("File reception failed", "fileName", rec.fileName, "error", rec.writeErr)
	case r.config.VerifyChecksum && rec.meta.Checksum != "" &&
		hex.EncodeToString(rec.hasher.Sum(nil)) != rec.meta.Checksum:
		r.report(fmt.Errorf("%w: %s", ErrChecksumMismatch, rec.outputPath))
	default:
		slog.Info("File reception completed", "fileName", rec.fileName, "bytes", rec.bytesWritten)
		events.Emit(r.uiMessages, events.TransferCompleteMsg{
			Direction: events.Incoming,
			FileName:  rec.fileName,
			Size:      rec.bytesWritten,
			Path:      rec.outputPath,
		})
	}

	r.current = nil
	r.state = StateIdle
}

// violation reports a protocol violation and hands it back to the caller.
func (r *Receiver) violation(err error) error {
	slog.Warn("Protocol violation", "error", err)
	events.Emit(r.uiMessages, events.ErrorMsg{Err: err})
	return err
}

func (r *Receiver) report(err error) {
	slog.Error("Reception error", "error", err)
	events.Emit(r.uiMessages, events.ErrorMsg{Err: err})
}
