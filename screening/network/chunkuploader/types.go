// Package chunkuploader splits a payload into bounded-size parts and uploads them one after the other
// to pre-signed URLs, aggregating progress and collecting the entity tag of every part.
package chunkuploader

import (
	"context"

	"github.com/presagetech/smartspectra-go/screening/network"
)

// Sender uploads a single part to a pre-signed URL and returns its entity tag.
// onProgress receives the sent fraction of data.
type Sender interface {
	UploadChunk(ctx context.Context, url string, data []byte, onProgress func(float64)) (string, error)
}

// ChunkProvider provides chunk data for upload.
type ChunkProvider interface {
	// NumChunks returns the total number of chunks.
	NumChunks() int

	// ChunkSize returns the size of the chunk at the given index.
	ChunkSize(index int) int64

	// GetChunk returns the chunk at the given index.
	GetChunk(index int) ([]byte, error)
}

// UploadResult represents the result of uploading all chunks.
type UploadResult struct {
	// Parts are in ascending PartNumber order, starting at 1.
	Parts []network.Part
	Bytes int64
}
