package compression

import (
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompress_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "small object", payload: `{"a":1}`},
		{name: "unicode", payload: `{"name":"Zoë","unit":"°C"}`},
		{name: "large repetitive", payload: "[" + strings.Repeat(`{"t":1.25,"v":0.5},`, 50000) + `{"t":2}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressed, err := Compress([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, []byte{0x1f, 0x8b}, compressed[:2], "gzip magic")

			got, err := Decompress(compressed)
			require.NoError(t, err)
			assert.Equal(t, tt.payload, string(got))
		})
	}
}

func TestCompressLevel_InvalidLevel(t *testing.T) {
	_, err := CompressLevel([]byte(`{}`), 42)
	assert.Error(t, err)
}

func TestCompressLevel_BestSpeed(t *testing.T) {
	payload := []byte(strings.Repeat(`{"hr":72}`, 1000))

	compressed, err := CompressLevel(payload, gzip.BestSpeed)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(payload))

	got, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDecompress_NotGzip(t *testing.T) {
	_, err := Decompress([]byte("not gzip"))
	assert.Error(t, err)
}
