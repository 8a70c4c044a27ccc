package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
)

// DefaultBaseURL is the production deployment of the physiology API.
const DefaultBaseURL = "https://api.physiology.presagetech.com"

// DefaultRetrievePath ...
const DefaultRetrievePath = "retrieve-data"

// DefaultCrashReportPath ...
const DefaultCrashReportPath = "v1/android-crash-report"

const (
	uploadURLPath = "v1/upload-url"
	completePath  = "v1/complete"
	apiKeyHeader  = "x-api-key"
)

// ErrProtocol marks a violation of the client/server upload contract. It is never retried.
var ErrProtocol = errors.New("upload protocol violation")

// ErrMissingETag is returned when a chunk upload response carries no entity tag.
var ErrMissingETag = fmt.Errorf("%w: missing ETag in response headers", ErrProtocol)

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Part identifies one uploaded chunk of a multipart upload.
type Part struct {
	ETag       string `json:"ETag"`
	PartNumber int    `json:"PartNumber"`
}

// UploadURLs is the server's answer to an upload URL request.
type UploadURLs struct {
	URLs     []string `json:"urls"`
	UploadID string   `json:"upload_id"`
	ResultID string   `json:"id"`
}

type uploadURLRequest struct {
	FileSize int64             `json:"file_size"`
	All      processDirectives `json:"all"`
}

type processDirectives struct {
	ToProcess bool `json:"to_process"`
}

type completeRequest struct {
	ID       string `json:"id"`
	UploadID string `json:"upload_id"`
	Parts    []Part `json:"parts"`
}

type retrieveRequest struct {
	ID string `json:"id"`
}

// ClientConfig ...
type ClientConfig struct {
	BaseURL         string
	APIKey          string
	RetrievePath    string
	CrashReportPath string
}

// Client is a typed wrapper of the physiology API endpoints.
type Client struct {
	transport       *Transport
	baseURL         string
	apiKey          string
	retrievePath    string
	crashReportPath string
	logger          log.Logger
}

// NewClient ...
func NewClient(config ClientConfig, transport *Transport, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewLogger()
	}
	retrievePath := config.RetrievePath
	if retrievePath == "" {
		retrievePath = DefaultRetrievePath
	}
	crashReportPath := config.CrashReportPath
	if crashReportPath == "" {
		crashReportPath = DefaultCrashReportPath
	}

	return &Client{
		transport:       transport,
		baseURL:         strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:          config.APIKey,
		retrievePath:    strings.TrimPrefix(retrievePath, "/"),
		crashReportPath: strings.TrimPrefix(crashReportPath, "/"),
		logger:          logger,
	}
}

// RequestUploadURLs asks for pre-signed part URLs for a compressed payload of sizeBytes.
func (c *Client) RequestUploadURLs(ctx context.Context, sizeBytes int64) (UploadURLs, error) {
	body, err := json.Marshal(uploadURLRequest{
		FileSize: sizeBytes,
		All:      processDirectives{ToProcess: true},
	})
	if err != nil {
		return UploadURLs{}, err
	}

	resp, err := c.transport.Post(ctx, c.url(uploadURLPath), body, c.defaultHeaders())
	if err != nil {
		return UploadURLs{}, err
	}
	if !resp.IsSuccess() {
		return UploadURLs{}, unwrapError(resp)
	}

	var response UploadURLs
	if err := json.Unmarshal(resp.Body, &response); err != nil {
		return UploadURLs{}, fmt.Errorf("%w: decode upload URL response: %s", ErrProtocol, err)
	}
	if response.UploadID == "" || response.ResultID == "" {
		return UploadURLs{}, fmt.Errorf("%w: upload URL response without upload_id or id", ErrProtocol)
	}

	return response, nil
}

// UploadChunk uploads data to a pre-signed URL and returns the entity tag of the stored part.
// Pre-signed URLs are self-authenticating, so the API key header is not sent.
func (c *Client) UploadChunk(ctx context.Context, url string, data []byte, onProgress func(float64)) (string, error) {
	headers := map[string]string{"Content-Encoding": "gzip"}

	resp, err := c.transport.Put(ctx, url, data, headers, onProgress)
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", unwrapError(resp)
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		return "", ErrMissingETag
	}

	return etag, nil
}

// CompleteUpload finalizes the multipart upload. parts must be in ascending PartNumber order.
func (c *Client) CompleteUpload(ctx context.Context, resultID, uploadID string, parts []Part) (string, error) {
	body, err := json.Marshal(completeRequest{
		ID:       resultID,
		UploadID: uploadID,
		Parts:    parts,
	})
	if err != nil {
		return "", err
	}
	c.logger.Debugf("Complete request: %s", body)

	resp, err := c.transport.Post(ctx, c.url(completePath), body, c.defaultHeaders())
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", unwrapError(resp)
	}

	return string(resp.Body), nil
}

// RetrieveResult returns the raw result document, or nil if the server has nothing for resultID yet.
// Only transport level failures are reported as errors.
func (c *Client) RetrieveResult(ctx context.Context, resultID string) ([]byte, error) {
	body, err := json.Marshal(retrieveRequest{ID: resultID})
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.Post(ctx, c.url(c.retrievePath), body, c.defaultHeaders())
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		c.logger.Debugf("Retrieve responded with %s", unwrapError(resp))
		return nil, nil
	}
	if len(resp.Body) == 0 {
		return nil, nil
	}

	return resp.Body, nil
}

// PostCrashReport sends one crash report. Crash reports are accepted without an API key.
func (c *Client) PostCrashReport(ctx context.Context, report []byte) error {
	resp, err := c.transport.Post(ctx, c.url(c.crashReportPath), report, nil)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return unwrapError(resp)
	}
	return nil
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, path)
}

func (c *Client) defaultHeaders() map[string]string {
	return map[string]string{apiKeyHeader: c.apiKey}
}

func unwrapError(resp Response) error {
	return &HTTPError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
}
