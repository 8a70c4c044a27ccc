package chunkuploader

import (
	"fmt"
)

// PayloadChunkProvider serves consecutive slices of an in-memory payload.
// The payload is never copied, callers must not modify it during an upload.
type PayloadChunkProvider struct {
	payload      []byte
	maxChunkSize int64
	numChunks    int
}

// NewPayloadChunkProvider creates a ChunkProvider that splits payload into parts of at most maxChunkSize bytes.
func NewPayloadChunkProvider(payload []byte, maxChunkSize int64) (*PayloadChunkProvider, error) {
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size: %d", maxChunkSize)
	}

	return &PayloadChunkProvider{
		payload:      payload,
		maxChunkSize: maxChunkSize,
		numChunks:    ChunkCount(int64(len(payload)), maxChunkSize),
	}, nil
}

// NumChunks returns the total number of chunks.
func (p *PayloadChunkProvider) NumChunks() int {
	return p.numChunks
}

// ChunkSize returns the size of the chunk at the given index.
func (p *PayloadChunkProvider) ChunkSize(index int) int64 {
	if index < 0 || index >= p.numChunks {
		return 0
	}
	start, end := p.bounds(index)
	return end - start
}

// GetChunk returns the chunk at the given index.
func (p *PayloadChunkProvider) GetChunk(index int) ([]byte, error) {
	if index < 0 || index >= p.numChunks {
		return nil, fmt.Errorf("chunk index %d out of range [0, %d)", index, p.numChunks)
	}
	start, end := p.bounds(index)
	return p.payload[start:end:end], nil
}

func (p *PayloadChunkProvider) bounds(index int) (int64, int64) {
	start := int64(index) * p.maxChunkSize
	end := start + p.maxChunkSize
	if size := int64(len(p.payload)); end > size {
		end = size
	}
	return start, end
}
