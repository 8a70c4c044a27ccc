package network

import (
	"context"
)

// API is the set of physiology API calls an upload attempt is made of.
type API interface {
	RequestUploadURLs(ctx context.Context, sizeBytes int64) (UploadURLs, error)
	UploadChunk(ctx context.Context, url string, data []byte, onProgress func(float64)) (string, error)
	CompleteUpload(ctx context.Context, resultID, uploadID string, parts []Part) (string, error)
	RetrieveResult(ctx context.Context, resultID string) ([]byte, error)
}

// CrashReporter ...
type CrashReporter interface {
	PostCrashReport(ctx context.Context, report []byte) error
}
