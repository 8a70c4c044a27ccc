// Package screening drives a screening from the captured metrics payload to the computed result:
// it compresses and uploads the payload in parts, finalizes the upload, and polls for the result.
package screening

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/presagetech/smartspectra-go/screening/compression"
	"github.com/presagetech/smartspectra-go/screening/network"
	"github.com/presagetech/smartspectra-go/screening/network/chunkuploader"
	"github.com/presagetech/smartspectra-go/screening/result"
)

// UploadSession is the server side state of one attempt.
type UploadSession struct {
	// Payload is the gzip compressed metrics document. It is never modified.
	Payload  []byte
	UploadID string
	ResultID string
	// Parts are in ascending PartNumber order.
	Parts []network.Part
}

// Orchestrator owns the payload of one screening and runs its upload attempts one at a time.
// Starting an attempt cancels and waits for the previous one. An attempt that is overtaken by a newer call
// while waiting returns ErrSuperseded without running or publishing anything.
type Orchestrator struct {
	config    Config
	logger    log.Logger
	api       network.API
	transport *network.Transport
	parser    *result.Parser
	publisher *Publisher

	lifetime      context.Context
	closeLifetime context.CancelFunc

	// attemptMu serializes attempts
	attemptMu sync.Mutex

	mu            sync.Mutex
	generation    uint64
	apiKey        string
	payloadJSON   []byte
	compressed    []byte
	lastUpload    *UploadSession
	cancelAttempt context.CancelFunc
}

// New creates an Orchestrator. `api` can be nil, unless you want to provide a custom `network.API` implementation;
// by default a client of config.BaseURL is used.
func New(config Config, api network.API, logger log.Logger) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.NewLogger()
	}

	var transport *network.Transport
	if api == nil {
		transport = network.NewTransport(config.transportConfig(), logger)
	}

	lifetime, closeLifetime := context.WithCancel(context.Background())

	return &Orchestrator{
		config:        config,
		logger:        logger,
		api:           api,
		transport:     transport,
		parser:        result.NewParser(config.Location, logger),
		publisher:     NewPublisher(),
		lifetime:      lifetime,
		closeLifetime: closeLifetime,
		apiKey:        config.APIKey,
	}, nil
}

// SetAPIKey replaces the API key used by the following attempts.
func (o *Orchestrator) SetAPIKey(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.apiKey = key
}

// SetJSONPayload hands over the metrics document of a finished capture.
func (o *Orchestrator) SetJSONPayload(json string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.payloadJSON = []byte(json)
	o.compressed = nil
}

// Subscribe returns the event stream of the following attempts. Subscribe before starting an attempt.
func (o *Orchestrator) Subscribe(buffer int) <-chan Event {
	return o.publisher.Subscribe(buffer)
}

// LastUpload returns a copy of the session of the most recent attempt, nil before the first one.
func (o *Orchestrator) LastUpload() *UploadSession {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.lastUpload == nil {
		return nil
	}
	upload := *o.lastUpload
	upload.Parts = append([]network.Part(nil), o.lastUpload.Parts...)
	return &upload
}

// Upload compresses the payload and runs a full attempt.
func (o *Orchestrator) Upload(ctx context.Context) (*result.ScreeningResult, error) {
	return o.attempt(ctx, true)
}

// UploadJSON sets json as the payload and uploads it.
func (o *Orchestrator) UploadJSON(ctx context.Context, json string) (*result.ScreeningResult, error) {
	o.SetJSONPayload(json)
	return o.Upload(ctx)
}

// Retry runs a new attempt with the payload compressed by an earlier attempt.
// Upload URLs are requested again, parts of earlier attempts are not reused.
func (o *Orchestrator) Retry(ctx context.Context) (*result.ScreeningResult, error) {
	return o.attempt(ctx, false)
}

// Close cancels the running attempt and closes every subscription.
func (o *Orchestrator) Close() {
	o.closeLifetime()

	o.mu.Lock()
	if o.cancelAttempt != nil {
		o.cancelAttempt()
	}
	o.mu.Unlock()

	o.attemptMu.Lock()
	defer o.attemptMu.Unlock()
	o.publisher.Close()
}

func (o *Orchestrator) attempt(ctx context.Context, recompress bool) (*result.ScreeningResult, error) {
	o.mu.Lock()
	o.generation++
	generation := o.generation
	if o.cancelAttempt != nil {
		o.logger.Debugf("Cancelling the running attempt")
		o.cancelAttempt()
	}
	o.mu.Unlock()

	o.attemptMu.Lock()
	defer o.attemptMu.Unlock()

	if err := o.lifetime.Err(); err != nil {
		return nil, fmt.Errorf("orchestrator closed: %w", err)
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopOnClose := context.AfterFunc(o.lifetime, cancel)
	defer stopOnClose()

	// The generation check and the cancel registration share one critical section,
	// so a newer caller either sees this attempt's cancel func or makes it skip.
	o.mu.Lock()
	if generation != o.generation {
		o.mu.Unlock()
		o.logger.Debugf("Skipping attempt, a newer one is waiting")
		return nil, ErrSuperseded
	}
	o.cancelAttempt = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancelAttempt = nil
		o.mu.Unlock()
	}()

	res, err := o.run(attemptCtx, recompress)
	if err != nil {
		o.logFailure(err)
		o.publishState(Failed())
		o.publish(Event{Outcome: &Outcome{Err: err}})
		return nil, err
	}

	o.logger.Donef("Screening result received: hr=%.1f rr=%.1f", res.HRAverage, res.RRAverage)
	o.publish(Event{Outcome: &Outcome{Result: res}})
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, recompress bool) (*result.ScreeningResult, error) {
	payload, err := o.payload(recompress)
	if err != nil {
		return nil, err
	}

	o.publishState(Uploading(0))

	api := o.client()
	upload := &UploadSession{Payload: payload}
	o.setLastUpload(upload)

	o.logger.Infof("Requesting upload URLs for %s", units.HumanSizeWithPrecision(float64(len(payload)), 3))
	urls, err := api.RequestUploadURLs(ctx, int64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("request upload URLs: %w", err)
	}
	upload.UploadID = urls.UploadID
	upload.ResultID = urls.ResultID
	o.setLastUpload(upload)
	o.logger.Debugf("Upload ID: %s, result ID: %s, %d URLs", urls.UploadID, urls.ResultID, len(urls.URLs))

	uploadStartTime := time.Now()
	uploader := chunkuploader.New(chunkuploader.Config{MaxChunkSize: o.config.MaxChunkSize}, api, o.logger)
	uploaded, err := uploader.Upload(ctx, payload, urls.URLs, func(progress float64) {
		o.publishState(Uploading(progress))
	})
	if err != nil {
		return nil, fmt.Errorf("upload payload: %w", err)
	}
	upload.Parts = uploaded.Parts
	o.setLastUpload(upload)
	stats := uploader.Stats()
	o.logger.Infof("Uploaded %d parts in %s (%s/s, %s per part)", stats.FinishedCount(),
		time.Since(uploadStartTime).Round(time.Millisecond),
		units.HumanSizeWithPrecision(stats.BytesPerSecond(), 3),
		stats.Average().Round(time.Millisecond))

	o.publishState(Processing())

	ack, err := api.CompleteUpload(ctx, upload.ResultID, upload.UploadID, upload.Parts)
	if err != nil {
		return nil, fmt.Errorf("complete upload: %w", err)
	}
	o.logger.Debugf("Upload completed: %s", ack)

	doc, err := o.waitForResult(ctx, api, upload.ResultID)
	if err != nil {
		return nil, err
	}

	res, err := o.parser.Parse(doc)
	if err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid result: %s", network.ErrProtocol, err)
	}

	return res, nil
}

func (o *Orchestrator) payload(recompress bool) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.payloadJSON) == 0 {
		return nil, ErrNoPayload
	}
	if !recompress && o.compressed != nil {
		return o.compressed, nil
	}

	compressed, err := compression.Compress(o.payloadJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCompression, err)
	}
	o.logger.Infof("JSON size: %s, compressed size: %s",
		units.HumanSizeWithPrecision(float64(len(o.payloadJSON)), 3),
		units.HumanSizeWithPrecision(float64(len(compressed)), 3))

	o.compressed = compressed
	return compressed, nil
}

func (o *Orchestrator) client() network.API {
	if o.api != nil {
		return o.api
	}

	o.mu.Lock()
	apiKey := o.apiKey
	o.mu.Unlock()

	return network.NewClient(network.ClientConfig{
		BaseURL:      o.config.BaseURL,
		APIKey:       apiKey,
		RetrievePath: o.config.RetrievePath,
	}, o.transport, o.logger)
}

func (o *Orchestrator) setLastUpload(upload *UploadSession) {
	snapshot := *upload
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastUpload = &snapshot
}

func (o *Orchestrator) publishState(state UploadState) {
	o.publish(Event{State: &state})
}

func (o *Orchestrator) publish(event Event) {
	o.publisher.Publish(o.lifetime, event)
}

func (o *Orchestrator) logFailure(err error) {
	switch FailureKind(err) {
	case FailureTimeout:
		o.logger.Errorf("Timed out waiting for the screening result: %s", err)
	case FailureProtocol:
		o.logger.Errorf("Upload rejected, client and server disagree on the protocol: %s", err)
	case FailureCancelled:
		o.logger.Warnf("Upload cancelled: %s", err)
	case FailureNoPayload, FailureCompression:
		o.logger.Errorf("Can't start upload: %s", err)
	default:
		o.logger.Errorf("Upload failed: %s", err)
	}
}
