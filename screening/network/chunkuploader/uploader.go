package chunkuploader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/presagetech/smartspectra-go/screening/network"
)

// ErrInsufficientURLs is returned when the URLs can't hold the payload with the configured chunk size.
var ErrInsufficientURLs = fmt.Errorf("%w: not enough upload URLs", network.ErrProtocol)

// Uploader uploads the parts of a payload strictly in order, one request at a time.
type Uploader struct {
	config Config
	sender Sender
	logger log.Logger
	stats  *Stats
}

// New creates a new Uploader with the given configuration.
func New(config Config, sender Sender, logger log.Logger) *Uploader {
	if config.MaxChunkSize <= 0 {
		config.MaxChunkSize = DefaultMaxChunkSize
	}
	if logger == nil {
		logger = log.NewLogger()
	}

	return &Uploader{
		config: config,
		sender: sender,
		logger: logger,
		stats:  NewStats(),
	}
}

// Upload splits payload into parts and uploads part i to urls[i].
// onProgress receives the overall sent fraction; reported values never decrease and the last one is exactly 1.
// Unused trailing URLs are ignored. The first failing part aborts the upload.
func (u *Uploader) Upload(ctx context.Context, payload []byte, urls []string, onProgress func(float64)) (*UploadResult, error) {
	totalSize := int64(len(payload))
	if int64(len(urls))*u.config.MaxChunkSize <= totalSize {
		return nil, fmt.Errorf("%w: max chunk size is %d, got %d URLs for a payload of %d bytes",
			ErrInsufficientURLs, u.config.MaxChunkSize, len(urls), totalSize)
	}

	provider, err := NewPayloadChunkProvider(payload, u.config.MaxChunkSize)
	if err != nil {
		return nil, err
	}

	return u.UploadChunks(ctx, provider, urls, onProgress)
}

// UploadChunks uploads every chunk of provider, chunk i to urls[i].
func (u *Uploader) UploadChunks(ctx context.Context, provider ChunkProvider, urls []string, onProgress func(float64)) (*UploadResult, error) {
	numChunks := provider.NumChunks()
	if numChunks > len(urls) {
		return nil, fmt.Errorf("%w: provider has %d chunks, but %d URLs provided", ErrInsufficientURLs, numChunks, len(urls))
	}

	var totalSize int64
	for i := 0; i < numChunks; i++ {
		totalSize += provider.ChunkSize(i)
	}

	reporter := &progressReporter{total: totalSize, onProgress: onProgress}
	parts := make([]network.Part, 0, numChunks)
	var pos int64

	for i := 0; i < numChunks; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("upload cancelled before chunk %d: %w", i+1, err)
		}

		chunk, err := provider.GetChunk(i)
		if err != nil {
			return nil, fmt.Errorf("get chunk %d: %w", i+1, err)
		}
		chunkSize := int64(len(chunk))

		u.logger.Debugf("Uploading chunk %d/%d; pos=%d; size=%s", i+1, numChunks, pos, units.HumanSize(float64(chunkSize)))
		start := time.Now()

		chunkStart := pos
		etag, err := u.sender.UploadChunk(ctx, urls[i], chunk, func(fraction float64) {
			reporter.report(float64(chunkStart) + fraction*float64(chunkSize))
		})
		if err != nil {
			return nil, fmt.Errorf("upload chunk %d: %w", i+1, err)
		}

		took := time.Since(start)
		u.stats.Update(took, chunkSize)
		u.logger.Debugf("Chunk %d uploaded in %v, ETag: %s", i+1, took.Round(time.Millisecond), etag)

		parts = append(parts, network.Part{ETag: etag, PartNumber: i + 1})
		pos += chunkSize
		reporter.report(float64(pos))
	}

	if numChunks < len(urls) {
		u.logger.Debugf("Payload exhausted, %d upload URLs left unused", len(urls)-numChunks)
	}

	return &UploadResult{Parts: parts, Bytes: pos}, nil
}

// Stats returns the upload statistics.
func (u *Uploader) Stats() *Stats {
	return u.stats
}

// progressReporter is called from the goroutine that writes the request body as well as from Upload.
type progressReporter struct {
	mu         sync.Mutex
	total      int64
	last       float64
	reported   bool
	onProgress func(float64)
}

func (r *progressReporter) report(sent float64) {
	if r.onProgress == nil || r.total <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	progress := sent / float64(r.total)
	if progress > 1 {
		progress = 1
	}
	if r.reported && progress <= r.last {
		return
	}

	r.last = progress
	r.reported = true
	r.onProgress(progress)
}
