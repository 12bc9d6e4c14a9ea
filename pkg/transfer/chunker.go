package transfer

import (
	"fmt"
	"io"
	"os"
)

// Chunker reads a file as a sequence of bounded slices. It stops after the
// size observed when it was opened even if the file keeps growing.
type Chunker struct {
	file          *os.File
	chunkSize     int
	totalByteSize int64
	bytesRead     int64
	buffer        []byte
}

// NewChunker opens path for chunked reading. Directories are rejected so the
// caller fails before announcing anything.
func NewChunker(path string, chunkSize int) (*Chunker, error) {
	if chunkSize < MinChunkSize || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("chunk size must be between %d and %d", MinChunkSize, MaxChunkSize)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, ErrIsDir
	}

	return &Chunker{
		file:          file,
		chunkSize:     chunkSize,
		totalByteSize: info.Size(),
		buffer:        make([]byte, chunkSize),
	}, nil
}

// Size is the number of bytes the chunker will produce.
func (c *Chunker) Size() int64 {
	return c.totalByteSize
}

// Next returns a copy of the next slice, or io.EOF once Size bytes were read.
// A file that shrank underneath us yields io.ErrUnexpectedEOF.
func (c *Chunker) Next() ([]byte, error) {
	remaining := c.totalByteSize - c.bytesRead
	if remaining <= 0 {
		return nil, io.EOF
	}

	want := c.chunkSize
	if remaining < int64(want) {
		want = int(remaining)
	}
	n, err := io.ReadFull(c.file, c.buffer[:want])
	if n > 0 {
		c.bytesRead += int64(n)
		data := make([]byte, n)
		copy(data, c.buffer[:n])
		return data, nil
	}
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	return nil, err
}

func (c *Chunker) Close() error {
	return c.file.Close()
}
