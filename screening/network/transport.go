package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultWriteBufferSize is the granularity of PUT body writes; progress is reported after each write.
const DefaultWriteBufferSize = 8 * 1024

// Timeouts bounds a single request: ConnectTimeout covers dialing, ReadTimeout the wait for the response headers
// and any pause while reading the response body.
type Timeouts struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// TransportConfig ...
type TransportConfig struct {
	// Request is used for GET and POST calls.
	Request Timeouts
	// Upload is used for streaming PUT calls, which carry large bodies.
	Upload Timeouts
	// WriteBufferSize is the size of each body write of a PUT. Default: 8 KiB
	WriteBufferSize int
	// RetryMax is the number of transport level retries. Default: 0
	RetryMax int
}

// DefaultTransportConfig returns the default configuration.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Request:         Timeouts{ConnectTimeout: time.Minute, ReadTimeout: time.Minute},
		Upload:          Timeouts{ConnectTimeout: 5 * time.Minute, ReadTimeout: 5 * time.Minute},
		WriteBufferSize: DefaultWriteBufferSize,
		RetryMax:        0,
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports whether the status code is 2xx.
func (r Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport executes blocking request/response calls bound to a context.
// The connection of every call is released before the call returns.
type Transport struct {
	requestClient   *retryablehttp.Client
	uploadClient    *retryablehttp.Client
	requestTimeouts Timeouts
	uploadTimeouts  Timeouts
	writeBufferSize int
	logger          log.Logger
}

// NewTransport ...
func NewTransport(config TransportConfig, logger log.Logger) *Transport {
	if logger == nil {
		logger = log.NewLogger()
	}
	writeBufferSize := config.WriteBufferSize
	if writeBufferSize <= 0 {
		writeBufferSize = DefaultWriteBufferSize
	}

	return &Transport{
		requestClient:   newRetryableClient(config.Request, config.RetryMax, logger),
		uploadClient:    newRetryableClient(config.Upload, config.RetryMax, logger),
		requestTimeouts: config.Request,
		uploadTimeouts:  config.Upload,
		writeBufferSize: writeBufferSize,
		logger:          logger,
	}
}

func newRetryableClient(timeouts Timeouts, retryMax int, logger log.Logger) *retryablehttp.Client {
	transport := cleanhttp.DefaultPooledTransport()
	transport.DialContext = (&net.Dialer{
		Timeout:   timeouts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.ResponseHeaderTimeout = timeouts.ReadTimeout

	client := retryhttp.NewClient(logger)
	client.HTTPClient = &http.Client{Transport: transport}
	client.RetryMax = retryMax
	// Failed responses are returned to the caller instead of being turned into a generic "giving up" error
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return client
}

// Get ...
func (t *Transport) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	setHeaders(req, headers)

	return t.do(t.requestClient, req, t.requestTimeouts.ReadTimeout, cancel)
}

// Post sends body as application/json.
func (t *Transport) Post(ctx context.Context, url string, body []byte, headers map[string]string) (Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setHeaders(req, headers)

	return t.do(t.requestClient, req, t.requestTimeouts.ReadTimeout, cancel)
}

// Put streams body in WriteBufferSize writes and calls onProgress with the sent fraction of body after each write.
// onProgress can be nil.
func (t *Transport) Put(ctx context.Context, url string, body []byte, headers map[string]string, onProgress func(float64)) (Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A fresh reader per attempt, so that a retried request reports progress from zero again
	bodyFunc := retryablehttp.ReaderFunc(func() (io.Reader, error) {
		return newProgressReader(bytes.NewReader(body), int64(len(body)), t.writeBufferSize, onProgress), nil
	})

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, url, bodyFunc)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	setHeaders(req, headers)

	// Add Content-Length header manually because retryablehttp doesn't do it automatically
	req.Header.Set("Content-Length", fmt.Sprintf("%d", len(body)))
	req.ContentLength = int64(len(body))

	return t.do(t.uploadClient, req, t.uploadTimeouts.ReadTimeout, cancel)
}

// do cancels the request when the response body stalls for longer than readTimeout.
func (t *Transport) do(client *retryablehttp.Client, req *retryablehttp.Request, readTimeout time.Duration, cancel context.CancelFunc) (Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			t.logger.Warnf("Failed to close response body: %s", err)
		}
	}(resp.Body)

	var reader io.Reader = resp.Body
	var stalled *time.Timer
	if readTimeout > 0 {
		stalled = time.AfterFunc(readTimeout, cancel)
		defer stalled.Stop()
		reader = &idleTimeoutReader{reader: resp.Body, timer: stalled, timeout: readTimeout}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		if stalled != nil && !stalled.Stop() {
			return Response{}, fmt.Errorf("read response body: no data for %s", readTimeout)
		}
		return Response{}, fmt.Errorf("read response body: %w", err)
	}

	return Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// idleTimeoutReader restarts timer after every read that returned data.
type idleTimeoutReader struct {
	reader  io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func setHeaders(req *retryablehttp.Request, headers map[string]string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}
