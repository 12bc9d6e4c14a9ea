package transfer

import (
	"errors"
	"path/filepath"
	"strings"
)

// KindFileMeta tags the control message that announces an incoming file.
const KindFileMeta = "file-meta"

// MaxFileNameLength bounds announced names to typical filesystem limits.
const MaxFileNameLength = 255

var (
	// ErrInvalidControl marks a file-meta announcement that cannot start a reception.
	ErrInvalidControl = errors.New("invalid file-meta announcement")
	// ErrNoActiveTransfer marks a chunk that arrived without a preceding announcement.
	ErrNoActiveTransfer = errors.New("chunk received with no active transfer")
	// ErrOverrun marks chunk bytes beyond the announced size.
	ErrOverrun = errors.New("chunk data exceeds announced size")
	// ErrIsDir is returned when asked to send a directory.
	ErrIsDir = errors.New("cannot send a directory")
	// ErrChecksumMismatch is reported when a completed file does not match the announced sha256.
	ErrChecksumMismatch = errors.New("received file checksum mismatch")
)

// ControlMessage announces a file transfer. It is sent as a text unit right
// before the first chunk. Mime type and checksum are optional extensions.
type ControlMessage struct {
	Kind     string
	Filename string
	Size     int64
	MimeType string
	Checksum string
}

// NewFileMeta builds the announcement for a file of size bytes. Only the base
// name of filename is announced.
func NewFileMeta(filename string, size int64) ControlMessage {
	return ControlMessage{
		Kind:     KindFileMeta,
		Filename: filepath.Base(filename),
		Size:     size,
	}
}

// IsFileMeta reports whether the message carries the file-meta tag.
func (m ControlMessage) IsFileMeta() bool {
	return m.Kind == KindFileMeta
}

var defaultSerializer Serializer = NewJSONSerializer()

// ParseControl decodes a text unit as a file-meta announcement. Anything that
// is not a JSON object tagged with the file-meta kind and carrying both a
// filename and a size yields false.
func ParseControl(data []byte) (ControlMessage, bool) {
	msg, err := defaultSerializer.Unmarshal(data)
	if err != nil || !msg.IsFileMeta() {
		return ControlMessage{}, false
	}
	return msg, true
}

// MarshalControl encodes msg with the wire serializer.
func MarshalControl(msg ControlMessage) ([]byte, error) {
	return defaultSerializer.Marshal(msg)
}

// SanitizeFilename reduces an announced name to a bare file name so it can
// never address anything outside the output directory.
func SanitizeFilename(name string) (string, error) {
	// treat both separators alike regardless of the local platform
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	switch {
	case name == "", name == ".", name == "..":
		return "", ErrInvalidControl
	case len(name) > MaxFileNameLength:
		return "", ErrInvalidControl
	case strings.ContainsRune(name, 0):
		return "", ErrInvalidControl
	}
	return name, nil
}
