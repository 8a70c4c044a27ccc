package result

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullDocument = `{
	"pulse": {
		"hr": {
			"2.0": {"value": 62, "confidence": 0.9},
			"1.0": {"value": 60, "confidence": 0.8},
			"3.0": {"value": 64, "confidence": 1.0}
		},
		"hr_trace": {"0.5": {"value": 0.1}, "0.25": {"value": 0.2}},
		"hrv": {"1": {"value": 42}}
	},
	"breath": {
		"rr": {"1.0": {"value": 12, "confidence": 0.7}, "2.0": {"value": 14, "confidence": 0.6}},
		"rr_trace": {"0.1": {"value": 1.5}},
		"amplitude": {"1": {"value": 0.3}},
		"apnea": {"2": {"value": true}, "1": {"value": false}},
		"baseline": {"1": {"value": 0.4}},
		"ie": {"1": {"value": 1.1}},
		"rrl": {"1": {"value": 2.2}}
	},
	"pressure": {
		"phasic": {"1.5": {"value": 3.3}, "0.5": {"value": 4.4}}
	},
	"version": "3.10.1",
	"upload_date": "20240131, 23:30:00"
}`

func newTestParser() *Parser {
	return NewParser(time.UTC, log.NewLogger())
}

func TestParser_Parse(t *testing.T) {
	location := time.FixedZone("UTC+2", 2*60*60)
	res, err := NewParser(location, log.NewLogger()).Parse([]byte(fullDocument))
	require.NoError(t, err)

	assert.InDelta(t, 62.0, res.HRAverage, 1e-9)
	assert.InDelta(t, 13.0, res.RRAverage, 1e-9)

	assert.Equal(t, Trace{{Time: 1, Value: 60}, {Time: 2, Value: 62}, {Time: 3, Value: 64}}, res.HRValues)
	assert.Equal(t, Trace{{Time: 1, Value: 0.8}, {Time: 2, Value: 0.9}, {Time: 3, Value: 1}}, res.HRConfidence)
	assert.Equal(t, Trace{{Time: 0.25, Value: 0.2}, {Time: 0.5, Value: 0.1}}, res.HRTrace)
	assert.Equal(t, Trace{{Time: 1, Value: 42}}, res.HRV)

	assert.Equal(t, Trace{{Time: 1, Value: 12}, {Time: 2, Value: 14}}, res.RRValues)
	assert.Equal(t, Trace{{Time: 1, Value: 0.7}, {Time: 2, Value: 0.6}}, res.RRConfidence)
	assert.Equal(t, Trace{{Time: 0.1, Value: 1.5}}, res.RRTrace)
	assert.Equal(t, Trace{{Time: 1, Value: 0.3}}, res.Amplitude)
	assert.Equal(t, EventTrace{{Time: 1, Value: false}, {Time: 2, Value: true}}, res.Apnea)
	assert.Equal(t, Trace{{Time: 1, Value: 0.4}}, res.Baseline)
	assert.Equal(t, Trace{{Time: 1, Value: 1.1}}, res.IE)
	assert.Equal(t, Trace{{Time: 1, Value: 2.2}}, res.RRL)
	assert.Equal(t, Trace{{Time: 0.5, Value: 4.4}, {Time: 1.5, Value: 3.3}}, res.Phasic)

	assert.Equal(t, "3.10.1", res.Version)
	assert.True(t, res.UploadDate.Equal(time.Date(2024, 1, 31, 23, 30, 0, 0, time.UTC)))
	assert.Equal(t, location, res.UploadDate.Location())
	assert.Equal(t, 1, res.UploadDate.Hour())

	assert.NoError(t, res.Validate())
}

func TestParser_Parse_MissingSections(t *testing.T) {
	res, err := newTestParser().Parse([]byte(`{"pressure": {}}`))
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.HRAverage)
	assert.Equal(t, 0.0, res.RRAverage)
	assert.Nil(t, res.HRValues)
	assert.Nil(t, res.RRTrace)
	assert.Nil(t, res.Apnea)
	assert.Nil(t, res.Phasic)
	assert.Empty(t, res.Version)
	assert.True(t, res.UploadDate.IsZero())
	assert.NoError(t, res.Validate())
}

func TestParser_Parse_MalformedSections(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		check func(t *testing.T, res *ScreeningResult)
	}{
		{
			name: "section is not an object",
			doc:  `{"pulse": {"hr": [1, 2, 3]}, "breath": {"rr": {"1": {"value": 12}}}}`,
			check: func(t *testing.T, res *ScreeningResult) {
				assert.Nil(t, res.HRValues)
				assert.Equal(t, 0.0, res.HRAverage)
				assert.Equal(t, 12.0, res.RRAverage)
			},
		},
		{
			name: "time key is not a number",
			doc:  `{"pulse": {"hr": {"1": {"value": 60}, "soon": {"value": 61}}}}`,
			check: func(t *testing.T, res *ScreeningResult) {
				assert.Nil(t, res.HRValues)
			},
		},
		{
			name: "value is not a number",
			doc:  `{"pulse": {"hr": {"1": {"value": "60"}}}}`,
			check: func(t *testing.T, res *ScreeningResult) {
				assert.Nil(t, res.HRValues)
			},
		},
		{
			name: "confidence missing keeps values",
			doc:  `{"pulse": {"hr": {"1": {"value": 60}}}}`,
			check: func(t *testing.T, res *ScreeningResult) {
				assert.Equal(t, Trace{{Time: 1, Value: 60}}, res.HRValues)
				assert.Nil(t, res.HRConfidence)
			},
		},
		{
			name: "empty section",
			doc:  `{"breath": {"rr_trace": {}}}`,
			check: func(t *testing.T, res *ScreeningResult) {
				assert.Nil(t, res.RRTrace)
			},
		},
		{
			name: "apnea value is not a bool",
			doc:  `{"breath": {"apnea": {"1": {"value": 1}}}}`,
			check: func(t *testing.T, res *ScreeningResult) {
				assert.Nil(t, res.Apnea)
			},
		},
		{
			name: "malformed upload date",
			doc:  `{"upload_date": "2024-01-31T23:30:00Z"}`,
			check: func(t *testing.T, res *ScreeningResult) {
				assert.True(t, res.UploadDate.IsZero())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestParser().Parse([]byte(tt.doc))
			require.NoError(t, err)
			tt.check(t, res)
			assert.NoError(t, res.Validate())
		})
	}
}

func TestParser_Parse_EqualTimesKeepDocumentOrder(t *testing.T) {
	doc := `{
		"pulse": {"hr_trace": {"2": {"value": 5}, "1.0": {"value": 1}, "1": {"value": 2}}},
		"breath": {
			"rr_trace": {"3": {"value": 7}, "1": {"value": 9}, "1": {"value": 8}},
			"apnea": {"2": {"value": true}, "1.0": {"value": false}, "1": {"value": true}}
		}
	}`

	res, err := newTestParser().Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, Trace{{Time: 1, Value: 1}, {Time: 1, Value: 2}, {Time: 2, Value: 5}}, res.HRTrace)
	assert.Equal(t, Trace{{Time: 1, Value: 9}, {Time: 1, Value: 8}, {Time: 3, Value: 7}}, res.RRTrace)
	assert.Equal(t, EventTrace{{Time: 1, Value: false}, {Time: 1, Value: true}, {Time: 2, Value: true}}, res.Apnea)
	assert.NoError(t, res.Validate())
}

func TestParser_Parse_ManyEqualTimes(t *testing.T) {
	var entries []string
	var want Trace
	for i := 0; i < 40; i++ {
		key := "2"
		if i%3 == 0 {
			key = "1"
		}
		entries = append(entries, fmt.Sprintf(`"%s": {"value": %d}`, key, i))
	}
	for _, at := range []float64{1, 2} {
		for i := 0; i < 40; i++ {
			if (i%3 == 0) == (at == 1) {
				want = append(want, TracePoint{Time: at, Value: float64(i)})
			}
		}
	}

	doc := `{"pressure": {"phasic": {` + strings.Join(entries, ", ") + `}}}`
	res, err := newTestParser().Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, want, res.Phasic)
}

func TestParser_Parse_InvalidDocument(t *testing.T) {
	for _, doc := range []string{"", "garbage", "[1, 2]", `"pressure"`, "{"} {
		_, err := newTestParser().Parse([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidDocument, doc)
	}
}

func TestIsReady(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		marker string
		want   bool
	}{
		{name: "empty", doc: "", marker: DefaultMarker},
		{name: "garbage", doc: "<html>busy</html>", marker: DefaultMarker},
		{name: "array", doc: `["pressure"]`, marker: DefaultMarker},
		{name: "partial document", doc: `{"pulse": {}}`, marker: DefaultMarker},
		{name: "complete document", doc: `{"pulse": {}, "pressure": {}}`, marker: DefaultMarker, want: true},
		{name: "nested marker", doc: `{"pressure": {"phasic": {}}}`, marker: "pressure.phasic", want: true},
		{name: "custom marker missing", doc: `{"pressure": {}}`, marker: "breath", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsReady([]byte(tt.doc), tt.marker))
		})
	}
}

func Test_average(t *testing.T) {
	tests := []struct {
		name  string
		trace Trace
		want  float64
	}{
		{name: "empty", trace: nil, want: 0},
		{name: "single", trace: Trace{{Time: 1, Value: 70}}, want: 70},
		{name: "mean", trace: Trace{{Time: 1, Value: 60}, {Time: 2, Value: 80}}, want: 70},
		{name: "negative mean", trace: Trace{{Time: 1, Value: -5}}, want: 0},
		{name: "overflow", trace: Trace{{Time: 1, Value: math.MaxFloat64}, {Time: 2, Value: math.MaxFloat64}}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, average(tt.trace))
		})
	}
}

func TestScreeningResult_Validate(t *testing.T) {
	tests := []struct {
		name    string
		result  ScreeningResult
		wantErr string
	}{
		{
			name:   "zero value",
			result: ScreeningResult{},
		},
		{
			name:    "negative average",
			result:  ScreeningResult{HRAverage: -1},
			wantErr: "hr average must be finite and non-negative, got -1",
		},
		{
			name:    "unsorted trace",
			result:  ScreeningResult{RRTrace: Trace{{Time: 2}, {Time: 1}}},
			wantErr: "rr trace is not sorted by time at index 1",
		},
		{
			name:    "empty trace",
			result:  ScreeningResult{Phasic: Trace{}},
			wantErr: "phasic is present but empty",
		},
		{
			name:    "non-finite sample",
			result:  ScreeningResult{Apnea: EventTrace{{Time: math.Inf(1)}}},
			wantErr: "apnea has a non-finite time at index 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}
