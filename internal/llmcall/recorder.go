package llmcall

import (
	"github.com/jackzampolin/llmshape/internal/extract"
)

// Recorder handles fire-and-forget call recording via a Sink.
type Recorder struct {
	sink *Sink
}

// NewRecorder creates a new call recorder. A nil sink disables recording.
func NewRecorder(sink *Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record captures a finished extraction asynchronously.
// This is non-blocking - the write is queued and batched.
func (r *Recorder) Record(o extract.Outcome, opts RecordOptions) {
	if r == nil || r.sink == nil {
		return // No sink configured, skip recording
	}
	r.sink.Send(FromOutcome(o, opts))
}

// RecordCall captures an already-constructed Call asynchronously.
func (r *Recorder) RecordCall(call *Call) {
	if r == nil || r.sink == nil || call == nil {
		return
	}
	r.sink.Send(call)
}

// Observer returns an extract.Observer that records every outcome with opts.
func (r *Recorder) Observer(opts RecordOptions) extract.Observer {
	return extract.ObserverFunc(func(o extract.Outcome) {
		r.Record(o, opts)
	})
}
