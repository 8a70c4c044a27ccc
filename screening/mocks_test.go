package screening

import (
	"context"

	"github.com/presagetech/smartspectra-go/screening/network"
	"github.com/stretchr/testify/mock"
)

// mockAPI ...
type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) RequestUploadURLs(ctx context.Context, sizeBytes int64) (network.UploadURLs, error) {
	args := m.Called(ctx, sizeBytes)
	return args.Get(0).(network.UploadURLs), args.Error(1)
}

// UploadChunk reports the whole chunk as sent before returning the configured answer.
func (m *mockAPI) UploadChunk(ctx context.Context, url string, data []byte, onProgress func(float64)) (string, error) {
	args := m.Called(ctx, url, data)
	if args.Error(1) == nil && onProgress != nil {
		onProgress(1)
	}
	return args.String(0), args.Error(1)
}

func (m *mockAPI) CompleteUpload(ctx context.Context, resultID, uploadID string, parts []network.Part) (string, error) {
	args := m.Called(ctx, resultID, uploadID, parts)
	return args.String(0), args.Error(1)
}

func (m *mockAPI) RetrieveResult(ctx context.Context, resultID string) ([]byte, error) {
	args := m.Called(ctx, resultID)
	doc, _ := args.Get(0).([]byte)
	return doc, args.Error(1)
}

func (m *mockAPI) givenUploadURLs(n int) *mockAPI {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = "https://bucket/part"
	}
	m.On("RequestUploadURLs", mock.Anything, mock.Anything).Return(network.UploadURLs{
		URLs:     urls,
		UploadID: "upload-1",
		ResultID: "result-1",
	}, nil)
	return m
}

func (m *mockAPI) givenUploadSucceeds() *mockAPI {
	m.On("UploadChunk", mock.Anything, mock.Anything, mock.Anything).Return("etag", nil)
	return m
}

func (m *mockAPI) givenCompleteSucceeds() *mockAPI {
	m.On("CompleteUpload", mock.Anything, "result-1", "upload-1", mock.Anything).Return("ok", nil)
	return m
}

func (m *mockAPI) givenNotReady(times int) *mockAPI {
	call := m.On("RetrieveResult", mock.Anything, "result-1").Return([]byte("<html>processing</html>"), nil)
	if times > 0 {
		call.Times(times)
	}
	return m
}

func (m *mockAPI) givenResult(doc string) *mockAPI {
	m.On("RetrieveResult", mock.Anything, "result-1").Return([]byte(doc), nil)
	return m
}
