// Package sink defines the capability the streaming core reports through.
// Renderers, report writers and loggers implement Sink; the core never
// talks to a UI directly.
package sink

import (
	"fmt"
	"math"
	"sync"
)

// Status is the terminal outcome of a consumer session.
type Status int

const (
	Finished Status = iota
	NoFileFound
	NoFileSelected
	NoSources
	Stopped
	Error
)

func (s Status) String() string {
	switch s {
	case Finished:
		return "finished"
	case NoFileFound:
		return "no_file_found"
	case NoFileSelected:
		return "no_file_selected"
	case NoSources:
		return "no_sources"
	case Stopped:
		return "stopped"
	case Error:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Pair is one pipeline output: the calibrated raw weight and the filtered
// weight for the same sample index. Filtered is NaN when the filter had no
// valid result for this sample.
type Pair struct {
	Index    int
	Raw      int64
	Weight   float64
	Filtered float64
}

// Valid reports whether the filtered value is usable.
func (p Pair) Valid() bool {
	return !math.IsNaN(p.Filtered)
}

// Terminal describes how a session ended.
type Terminal struct {
	Status Status
	// Detail carries the requested frequency for NoFileFound.
	Detail string
	Err    error
}

// Message is the user-visible text for t.
func (t Terminal) Message() string {
	switch t.Status {
	case Finished:
		return "transmission complete"
	case NoFileFound:
		return fmt.Sprintf("no source matches frequency %q", t.Detail)
	case NoFileSelected:
		return "no source file selected"
	case NoSources:
		return "no source files available"
	case Stopped:
		return "stopped"
	}
	if t.Err != nil {
		return "i/o failure: " + t.Err.Error()
	}
	return "i/o failure"
}

// Sink receives status text, sample pairs and the terminal status.
// EmitSamplePair is called from the pipeline worker in arrival order while
// ReportStatus may come from the transport goroutine, so implementations
// must be safe for concurrent use. ReportTerminal is called exactly once per
// session, after the last pair.
type Sink interface {
	ReportStatus(text string)
	EmitSamplePair(source string, p Pair)
	ReportTerminal(t Terminal)
}

// SourceObserver is implemented by sinks that want to know where one
// source's pairs begin and end.
type SourceObserver interface {
	BeginSource(name string, total int)
	EndSource(name string, summary Summary)
}

// Summary is the per-source digest produced after the last pair.
type Summary struct {
	Source        string
	Samples       int
	Invalid       int
	SkippedLines  int
	DCOffset      float64
	RawAmplitude  float64 // peak-to-peak of Weight
	FiltAmplitude float64 // peak-to-peak of valid Filtered values
	Cutoff        float64 // Hz, last estimate
	SampleRate    float64
	Coefficients  []float64
	Frequencies   []float64
	Magnitudes    []float64
}

// Multi fans every call out to each sink in order.
type Multi []Sink

func (m Multi) ReportStatus(text string) {
	for _, s := range m {
		s.ReportStatus(text)
	}
}

func (m Multi) EmitSamplePair(source string, p Pair) {
	for _, s := range m {
		s.EmitSamplePair(source, p)
	}
}

func (m Multi) ReportTerminal(t Terminal) {
	for _, s := range m {
		s.ReportTerminal(t)
	}
}

func (m Multi) BeginSource(name string, total int) {
	for _, s := range m {
		if o, ok := s.(SourceObserver); ok {
			o.BeginSource(name, total)
		}
	}
}

func (m Multi) EndSource(name string, summary Summary) {
	for _, s := range m {
		if o, ok := s.(SourceObserver); ok {
			o.EndSource(name, summary)
		}
	}
}

// Recorder keeps everything it is given. It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	statuses  []string
	pairs     map[string][]Pair
	order     []string
	summaries []Summary
	terminals []Terminal
	done      chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{pairs: make(map[string][]Pair), done: make(chan struct{})}
}

func (r *Recorder) ReportStatus(text string) {
	r.mu.Lock()
	r.statuses = append(r.statuses, text)
	r.mu.Unlock()
}

func (r *Recorder) EmitSamplePair(source string, p Pair) {
	r.mu.Lock()
	if _, ok := r.pairs[source]; !ok {
		r.order = append(r.order, source)
	}
	r.pairs[source] = append(r.pairs[source], p)
	r.mu.Unlock()
}

func (r *Recorder) ReportTerminal(t Terminal) {
	r.mu.Lock()
	r.terminals = append(r.terminals, t)
	first := len(r.terminals) == 1
	r.mu.Unlock()
	if first {
		close(r.done)
	}
}

func (r *Recorder) BeginSource(string, int) {}

func (r *Recorder) EndSource(_ string, summary Summary) {
	r.mu.Lock()
	r.summaries = append(r.summaries, summary)
	r.mu.Unlock()
}

// Done is closed after the first terminal report.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

// Sources returns the source names in the order their first pair arrived.
func (r *Recorder) Sources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func (r *Recorder) Pairs(source string) []Pair {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Pair(nil), r.pairs[source]...)
}

func (r *Recorder) Summaries() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Summary(nil), r.summaries...)
}

func (r *Recorder) Terminals() []Terminal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Terminal(nil), r.terminals...)
}
