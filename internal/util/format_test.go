package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		expected string
	}{
		{"Zero bytes", 0, "0 B"},
		{"Max bytes", 1023, "1023 B"},
		{"Exact 1 KB", 1024, "1 KB"},
		{"1.5 KB", 1536, "1.5 KB"},
		{"1.25 KB", 1280, "1.25 KB"},
		{"1.125 KB", 1152, "1.125 KB"},
		{"Chunk size", 16384, "16 KB"},
		{"Max KB", 1048575, "1023.999 KB"},
		{"Exact 1 MB", 1048576, "1 MB"},
		{"10 MB", 10 * 1048576, "10 MB"},
		{"Exact 1 GB", 1073741824, "1 GB"},
		{"Exact 1 PB", 1125899906842624, "1 PB"},
		{"Max int64", 9223372036854775807, "8191.999 PB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatSize(tt.size))
		})
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 1.0, Percent(0, 0), "empty transfers are complete")
	assert.Equal(t, 0.5, Percent(512, 1024))
	assert.Equal(t, 1.0, Percent(2048, 1024), "overrun is clamped")
	assert.Equal(t, 0.0, Percent(-1, 1024))
}

func BenchmarkFormatSize(b *testing.B) {
	for i := 0; i < b.N; i++ {
		FormatSize(1048576 + int64(i))
	}
}
