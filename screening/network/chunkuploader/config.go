package chunkuploader

// DefaultMaxChunkSize is the upper bound of a single part.
const DefaultMaxChunkSize int64 = 5 * 1024 * 1024

// Config holds configuration for the chunk uploader.
type Config struct {
	// MaxChunkSize is the maximum size of one part in bytes.
	// Default: 5 MiB
	MaxChunkSize int64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize: DefaultMaxChunkSize,
	}
}

// ChunkCount returns the number of parts a payload of totalSize bytes is split into.
func ChunkCount(totalSize, maxChunkSize int64) int {
	if totalSize <= 0 || maxChunkSize <= 0 {
		return 0
	}
	return int((totalSize + maxChunkSize - 1) / maxChunkSize)
}
