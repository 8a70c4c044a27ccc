package screening

import (
	"fmt"

	"github.com/presagetech/smartspectra-go/screening/result"
)

// StateKind ...
type StateKind int

// Upload states
const (
	// StateUploading means parts are being sent, see UploadState.Progress.
	StateUploading StateKind = iota
	// StateProcessing means every part is sent and the server is computing the result.
	StateProcessing
	// StateFailed means the attempt ended without a result. A retry is possible.
	StateFailed
)

func (k StateKind) String() string {
	switch k {
	case StateUploading:
		return "uploading"
	case StateProcessing:
		return "processing"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("StateKind(%d)", int(k))
	}
}

// UploadState is the upload progress of an attempt.
type UploadState struct {
	Kind StateKind
	// Progress is in [0, 1], only meaningful for StateUploading.
	Progress float64
}

// Uploading ...
func Uploading(progress float64) UploadState {
	return UploadState{Kind: StateUploading, Progress: progress}
}

// Processing ...
func Processing() UploadState {
	return UploadState{Kind: StateProcessing}
}

// Failed ...
func Failed() UploadState {
	return UploadState{Kind: StateFailed}
}

func (s UploadState) String() string {
	if s.Kind == StateUploading {
		return fmt.Sprintf("uploading(%.3f)", s.Progress)
	}
	return s.Kind.String()
}

// Outcome is the terminal value of an attempt: either a Result or an Err.
type Outcome struct {
	Result *result.ScreeningResult
	Err    error
}

// Succeeded ...
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Result != nil
}

// Failure returns the classification of a failed outcome.
func (o Outcome) Failure() Failure {
	return FailureKind(o.Err)
}

// Event is one entry of the event stream. Exactly one of State and Outcome is set.
// Every attempt publishes a run of State events followed by exactly one Outcome event.
type Event struct {
	State   *UploadState
	Outcome *Outcome
}

// IsTerminal reports whether the event ends an attempt.
func (e Event) IsTerminal() bool {
	return e.Outcome != nil
}
