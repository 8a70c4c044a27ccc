// Package result turns the physiology API's result document into a ScreeningResult.
package result

import (
	"fmt"
	"math"
	"time"

	"github.com/presagetech/smartspectra-go/internal/multierror"
)

// TracePoint is one sample of a numeric trace. Time is in seconds from the start of the capture.
type TracePoint struct {
	Time  float64
	Value float64
}

// EventPoint is one sample of a boolean trace.
type EventPoint struct {
	Time  float64
	Value bool
}

// Trace is sorted ascending by Time.
type Trace []TracePoint

// EventTrace is sorted ascending by Time.
type EventTrace []EventPoint

// ScreeningResult is the outcome of a successful screening.
// Every trace is either nil (the server sent no usable section) or non-empty.
type ScreeningResult struct {
	// HRAverage is the mean of the high confidence pulse rate values, in beats per minute.
	// 0 means there was not enough confidence for a measurement.
	HRAverage float64
	// RRAverage is the mean of the high confidence breathing rate values, in breaths per minute.
	RRAverage float64

	HRTrace      Trace
	HRValues     Trace
	HRConfidence Trace
	HRV          Trace

	RRTrace      Trace
	RRValues     Trace
	RRConfidence Trace
	Amplitude    Trace
	Apnea        EventTrace
	Baseline     Trace
	IE           Trace
	RRL          Trace

	Phasic Trace

	// Version of the server side result schema.
	Version string
	// UploadDate is the server reported upload time in the caller's zone. Zero if the server sent none.
	UploadDate time.Time
}

// Validate checks the invariants of a result and reports every violation.
func (r ScreeningResult) Validate() error {
	var errs multierror.MultiError

	multierror.Append(&errs, validateScalar("hr average", r.HRAverage))
	multierror.Append(&errs, validateScalar("rr average", r.RRAverage))

	for name, trace := range r.traces() {
		multierror.Append(&errs, validateTrace(name, trace))
	}
	multierror.Append(&errs, validateEventTrace("apnea", r.Apnea))

	return errs.ErrorOrNil()
}

func (r ScreeningResult) traces() map[string]Trace {
	return map[string]Trace{
		"hr trace":      r.HRTrace,
		"hr values":     r.HRValues,
		"hr confidence": r.HRConfidence,
		"hrv":           r.HRV,
		"rr trace":      r.RRTrace,
		"rr values":     r.RRValues,
		"rr confidence": r.RRConfidence,
		"amplitude":     r.Amplitude,
		"baseline":      r.Baseline,
		"ie":            r.IE,
		"rrl":           r.RRL,
		"phasic":        r.Phasic,
	}
}

func validateScalar(name string, v float64) error {
	if !isFinite(v) || v < 0 {
		return fmt.Errorf("%s must be finite and non-negative, got %v", name, v)
	}
	return nil
}

func validateTrace(name string, trace Trace) error {
	if trace == nil {
		return nil
	}
	if len(trace) == 0 {
		return fmt.Errorf("%s is present but empty", name)
	}
	for i, p := range trace {
		if !isFinite(p.Time) || !isFinite(p.Value) {
			return fmt.Errorf("%s has a non-finite sample at index %d", name, i)
		}
		if i > 0 && trace[i-1].Time > p.Time {
			return fmt.Errorf("%s is not sorted by time at index %d", name, i)
		}
	}
	return nil
}

func validateEventTrace(name string, trace EventTrace) error {
	if trace == nil {
		return nil
	}
	if len(trace) == 0 {
		return fmt.Errorf("%s is present but empty", name)
	}
	for i, p := range trace {
		if !isFinite(p.Time) {
			return fmt.Errorf("%s has a non-finite time at index %d", name, i)
		}
		if i > 0 && trace[i-1].Time > p.Time {
			return fmt.Errorf("%s is not sorted by time at index %d", name, i)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
