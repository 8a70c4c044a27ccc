package result

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/tidwall/gjson"
)

// UploadDateLayout is the format of the naive UTC upload_date the server sends.
const UploadDateLayout = "20060102, 15:04:05"

// DefaultMarker is the top-level key whose presence means the result document is complete.
const DefaultMarker = "pressure"

// ErrInvalidDocument is returned when the result is not a JSON object at all.
var ErrInvalidDocument = errors.New("result document is not a JSON object")

const (
	fieldValue      = "value"
	fieldConfidence = "confidence"
)

// IsReady reports whether doc is a JSON object that carries marker. marker is a gjson path.
func IsReady(doc []byte, marker string) bool {
	if len(doc) == 0 || !gjson.ValidBytes(doc) {
		return false
	}
	parsed := gjson.ParseBytes(doc)
	return parsed.IsObject() && parsed.Get(marker).Exists()
}

// Parser ...
type Parser struct {
	location *time.Location
	logger   log.Logger
}

// NewParser creates a Parser converting upload dates into location. A nil location means time.Local.
func NewParser(location *time.Location, logger log.Logger) *Parser {
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Parser{
		location: location,
		logger:   logger,
	}
}

// Parse converts a result document. Sections that are missing or malformed are left nil,
// only a document that is not a JSON object is an error.
func (p *Parser) Parse(doc []byte) (*ScreeningResult, error) {
	if !gjson.ValidBytes(doc) {
		return nil, ErrInvalidDocument
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return nil, ErrInvalidDocument
	}

	hrValues := p.numericSection(root, "pulse.hr", fieldValue)
	rrValues := p.numericSection(root, "breath.rr", fieldValue)

	result := &ScreeningResult{
		HRAverage: average(hrValues),
		RRAverage: average(rrValues),

		HRTrace:      p.numericSection(root, "pulse.hr_trace", fieldValue),
		HRValues:     hrValues,
		HRConfidence: p.numericSection(root, "pulse.hr", fieldConfidence),
		HRV:          p.numericSection(root, "pulse.hrv", fieldValue),

		RRTrace:      p.numericSection(root, "breath.rr_trace", fieldValue),
		RRValues:     rrValues,
		RRConfidence: p.numericSection(root, "breath.rr", fieldConfidence),
		Amplitude:    p.numericSection(root, "breath.amplitude", fieldValue),
		Apnea:        p.eventSection(root, "breath.apnea"),
		Baseline:     p.numericSection(root, "breath.baseline", fieldValue),
		IE:           p.numericSection(root, "breath.ie", fieldValue),
		RRL:          p.numericSection(root, "breath.rrl", fieldValue),

		Phasic: p.numericSection(root, "pressure.phasic", fieldValue),

		Version:    root.Get("version").String(),
		UploadDate: p.uploadDate(root),
	}

	return result, nil
}

func (p *Parser) uploadDate(root gjson.Result) time.Time {
	raw := root.Get("upload_date")
	if raw.Type != gjson.String {
		p.logger.Warnf("Result has no upload_date")
		return time.Time{}
	}

	t, err := time.ParseInLocation(UploadDateLayout, raw.String(), time.UTC)
	if err != nil {
		p.logger.Warnf("Failed to parse upload_date %q: %s", raw.String(), err)
		return time.Time{}
	}
	return t.In(p.location)
}

// numericSection reads a {"<seconds>": {"<field>": <number>}, ...} object.
func (p *Parser) numericSection(root gjson.Result, path, field string) Trace {
	section := root.Get(path)
	if !section.Exists() {
		return nil
	}
	if !section.IsObject() {
		p.logger.Warnf("Section %s is not an object, ignoring it", path)
		return nil
	}

	var trace Trace
	var parseErr error
	section.ForEach(func(key, entry gjson.Result) bool {
		t, err := parseTime(key.String())
		if err != nil {
			parseErr = err
			return false
		}

		value := entry.Get(field)
		if !entry.IsObject() || value.Type != gjson.Number || !isFinite(value.Float()) {
			parseErr = fmt.Errorf("sample %q has no numeric %s", key.String(), field)
			return false
		}

		trace = append(trace, TracePoint{Time: t, Value: value.Float()})
		return true
	})
	if parseErr != nil {
		p.logger.Warnf("Section %s is malformed, ignoring it: %s", path, parseErr)
		return nil
	}
	if len(trace) == 0 {
		return nil
	}

	// Keys of a JSON object carry no order, duplicates keep their document order
	sort.SliceStable(trace, func(i, j int) bool { return trace[i].Time < trace[j].Time })
	return trace
}

// eventSection reads a {"<seconds>": {"value": <bool>}, ...} object.
func (p *Parser) eventSection(root gjson.Result, path string) EventTrace {
	section := root.Get(path)
	if !section.Exists() {
		return nil
	}
	if !section.IsObject() {
		p.logger.Warnf("Section %s is not an object, ignoring it", path)
		return nil
	}

	var trace EventTrace
	var parseErr error
	section.ForEach(func(key, entry gjson.Result) bool {
		t, err := parseTime(key.String())
		if err != nil {
			parseErr = err
			return false
		}

		value := entry.Get(fieldValue)
		if !entry.IsObject() || !value.IsBool() {
			parseErr = fmt.Errorf("sample %q has no boolean value", key.String())
			return false
		}

		trace = append(trace, EventPoint{Time: t, Value: value.Bool()})
		return true
	})
	if parseErr != nil {
		p.logger.Warnf("Section %s is malformed, ignoring it: %s", path, parseErr)
		return nil
	}
	if len(trace) == 0 {
		return nil
	}

	sort.SliceStable(trace, func(i, j int) bool { return trace[i].Time < trace[j].Time })
	return trace
}

func parseTime(key string) (float64, error) {
	t, err := strconv.ParseFloat(key, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time key %q", key)
	}
	if !isFinite(t) {
		return 0, fmt.Errorf("non-finite time key %q", key)
	}
	return t, nil
}

// average is 0 for an empty trace and for any mean that isn't a usable rate.
func average(trace Trace) float64 {
	if len(trace) == 0 {
		return 0
	}

	var sum float64
	for _, p := range trace {
		sum += p.Value
	}
	mean := sum / float64(len(trace))
	if !isFinite(mean) || mean < 0 {
		return 0
	}
	return mean
}
