package transfer

import (
	"encoding/json"
	"fmt"
)

// Serializer converts control messages to and from their wire text form.
type Serializer interface {
	Marshal(message ControlMessage) ([]byte, error)
	Unmarshal(data []byte) (ControlMessage, error)
}

type JSONSerializer struct{}

func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

type jsonControlMessage struct {
	Kind     string `json:"kind"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime,omitempty"`
	Checksum string `json:"sha256,omitempty"`
}

func (j *JSONSerializer) Marshal(msg ControlMessage) ([]byte, error) {
	return json.Marshal(jsonControlMessage{
		Kind:     msg.Kind,
		Filename: msg.Filename,
		Size:     msg.Size,
		MimeType: msg.MimeType,
		Checksum: msg.Checksum,
	})
}

// wireControlMessage tells absent and null fields apart from zero values.
type wireControlMessage struct {
	Kind     *string `json:"kind"`
	Filename *string `json:"filename"`
	Size     *int64  `json:"size"`
	MimeType string  `json:"mime"`
	Checksum string  `json:"sha256"`
}

// Unmarshal requires kind, filename and size to be present and non-null.
func (j *JSONSerializer) Unmarshal(data []byte) (ControlMessage, error) {
	var wire wireControlMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return ControlMessage{}, err
	}
	switch {
	case wire.Kind == nil:
		return ControlMessage{}, fmt.Errorf("%w: missing kind", ErrInvalidControl)
	case wire.Filename == nil:
		return ControlMessage{}, fmt.Errorf("%w: missing filename", ErrInvalidControl)
	case wire.Size == nil:
		return ControlMessage{}, fmt.Errorf("%w: missing size", ErrInvalidControl)
	}
	return ControlMessage{
		Kind:     *wire.Kind,
		Filename: *wire.Filename,
		Size:     *wire.Size,
		MimeType: wire.MimeType,
		Checksum: wire.Checksum,
	}, nil
}
