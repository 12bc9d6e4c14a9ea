package transfer

import (
	"errors"
	"fmt"
	"os"
)

// Chunk size bounds. Data channel messages above 64KiB are not portable
// across WebRTC implementations.
const (
	DefaultChunkSize = 16 * 1024
	MaxChunkSize     = 64 * 1024
	MinChunkSize     = 1024
)

// Send pacing thresholds on the channel's buffered amount.
const (
	DefaultHighWaterMark uint64 = 1024 * 1024
	DefaultLowWaterMark  uint64 = 256 * 1024
)

const (
	DefaultReceivedPrefix = "received_"
	DefaultProgressStep   = 5
)

// Config holds the tunables of the file transfer engine.
type Config struct {
	// ChunkSize is the maximum payload of one binary unit.
	ChunkSize int `json:"chunk_size"`

	// Sending pauses while more than HighWaterMark bytes are queued on the
	// channel and resumes once it drains below LowWaterMark.
	HighWaterMark uint64 `json:"high_water_mark"`
	LowWaterMark  uint64 `json:"low_water_mark"`

	// Received files are written to OutputDir as ReceivedPrefix + name.
	OutputDir      string `json:"output_dir"`
	ReceivedPrefix string `json:"received_prefix"`

	// VerifyChecksum announces a sha256 when sending and checks it when the
	// announcement carries one.
	VerifyChecksum bool `json:"verify_checksum"`

	// ProgressStep is the percentage between two progress events.
	ProgressStep int `json:"progress_step"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:      DefaultChunkSize,
		HighWaterMark:  DefaultHighWaterMark,
		LowWaterMark:   DefaultLowWaterMark,
		OutputDir:      ".",
		ReceivedPrefix: DefaultReceivedPrefix,
		VerifyChecksum: true,
		ProgressStep:   DefaultProgressStep,
	}
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if c.ChunkSize < MinChunkSize || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("chunk_size must be between %d and %d", MinChunkSize, MaxChunkSize)
	}
	if c.HighWaterMark == 0 {
		return errors.New("high_water_mark must be positive")
	}
	if c.LowWaterMark >= c.HighWaterMark {
		return errors.New("low_water_mark must be below high_water_mark")
	}
	if c.ProgressStep <= 0 || c.ProgressStep > 100 {
		return errors.New("progress_step must be between 1 and 100")
	}
	if c.OutputDir == "" {
		return errors.New("output_dir cannot be empty")
	}
	info, err := os.Stat(c.OutputDir)
	if err != nil {
		return fmt.Errorf("output_dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output_dir %s is not a directory", c.OutputDir)
	}
	return nil
}
