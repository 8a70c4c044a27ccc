package screening

import (
	"fmt"
	"time"

	"github.com/presagetech/smartspectra-go/screening/network"
	"github.com/presagetech/smartspectra-go/screening/network/chunkuploader"
	"github.com/presagetech/smartspectra-go/screening/result"
)

// Config holds configuration of an Orchestrator.
type Config struct {
	// BaseURL of the physiology API deployment.
	BaseURL string
	// APIKey is sent in the x-api-key header. It can be replaced later with Orchestrator.SetAPIKey.
	APIKey string
	// RetrievePath is the path of the result endpoint relative to BaseURL.
	// Default: retrieve-data
	RetrievePath string
	// ResultMarker is the gjson path whose presence marks a complete result document.
	// Default: pressure
	ResultMarker string

	// MaxChunkSize is the upper bound of one upload part.
	// Default: 5 MiB
	MaxChunkSize int64
	// WriteBufferSize is the write granularity of a part upload, progress is reported per write.
	// Default: 8 KiB
	WriteBufferSize int

	// RetrieveAttempts is the number of result polls before giving up.
	// Default: 20
	RetrieveAttempts int
	// RetrieveDelay is the pause between polls. The first poll is preceded by twice this delay.
	// Default: 512ms
	RetrieveDelay time.Duration

	// RequestTimeouts apply to the upload URL, complete and retrieve calls.
	RequestTimeouts network.Timeouts
	// UploadTimeouts apply to part uploads.
	UploadTimeouts network.Timeouts
	// HTTPRetryMax is the number of transport level retries of a single call.
	// Default: 0, a failed call fails the attempt.
	HTTPRetryMax int

	// Location is the zone the result's upload date is converted to.
	// Default: time.Local
	Location *time.Location
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	transport := network.DefaultTransportConfig()

	return Config{
		BaseURL:          network.DefaultBaseURL,
		RetrievePath:     network.DefaultRetrievePath,
		ResultMarker:     result.DefaultMarker,
		MaxChunkSize:     chunkuploader.DefaultMaxChunkSize,
		WriteBufferSize:  transport.WriteBufferSize,
		RetrieveAttempts: 20,
		RetrieveDelay:    512 * time.Millisecond,
		RequestTimeouts:  transport.Request,
		UploadTimeouts:   transport.Upload,
		HTTPRetryMax:     transport.RetryMax,
		Location:         time.Local,
	}
}

// Validate ...
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("BaseURL must not be empty")
	}
	if c.ResultMarker == "" {
		return fmt.Errorf("ResultMarker must not be empty")
	}
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("MaxChunkSize must be positive, got %d", c.MaxChunkSize)
	}
	if c.WriteBufferSize <= 0 {
		return fmt.Errorf("WriteBufferSize must be positive, got %d", c.WriteBufferSize)
	}
	if c.RetrieveAttempts <= 0 {
		return fmt.Errorf("RetrieveAttempts must be positive, got %d", c.RetrieveAttempts)
	}
	if c.RetrieveDelay < 0 {
		return fmt.Errorf("RetrieveDelay must not be negative, got %s", c.RetrieveDelay)
	}
	if c.HTTPRetryMax < 0 {
		return fmt.Errorf("HTTPRetryMax must not be negative, got %d", c.HTTPRetryMax)
	}
	return nil
}

func (c Config) transportConfig() network.TransportConfig {
	return network.TransportConfig{
		Request:         c.RequestTimeouts,
		Upload:          c.UploadTimeouts,
		WriteBufferSize: c.WriteBufferSize,
		RetryMax:        c.HTTPRetryMax,
	}
}
