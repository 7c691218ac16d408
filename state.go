package main

import (
	"math"
	"sync"
	"time"

	"github.com/adcstream/pkg/sink"
)

const maxStatusLines = 50

// liveState is what /api/status reports about the running consumer.
type liveState struct {
	mu sync.RWMutex

	SessionID  string
	Producer   string
	Mode       string
	IntervalMS uint32
	StartedAt  time.Time

	Running  bool
	Current  string
	Index    int
	Statuses []string
	Sources  []sourceView
	Terminal *terminalView
}

type sourceView struct {
	Name              string   `json:"name"`
	Samples           int      `json:"samples"`
	Invalid           int      `json:"invalid"`
	SkippedLines      int      `json:"skipped_lines"`
	CutoffHz          *float64 `json:"cutoff_hz"`
	RawAmplitude      *float64 `json:"raw_amplitude"`
	FilteredAmplitude *float64 `json:"filtered_amplitude"`
}

type terminalView struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type statusView struct {
	SessionID  string        `json:"session_id"`
	Producer   string        `json:"producer"`
	Mode       string        `json:"mode"`
	IntervalMS uint32        `json:"interval_ms"`
	StartedAt  time.Time     `json:"started_at"`
	Running    bool          `json:"running"`
	Current    string        `json:"current_source"`
	Index      int           `json:"current_index"`
	Statuses   []string      `json:"statuses"`
	Sources    []sourceView  `json:"sources"`
	Terminal   *terminalView `json:"terminal"`
}

// jsonFloat drops values JSON cannot carry.
func jsonFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (s *liveState) start(id, producer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SessionID = id
	s.Producer = producer
	s.StartedAt = time.Now()
	s.Running = true
	s.Current = ""
	s.Index = 0
	s.Statuses = nil
	s.Sources = nil
	s.Terminal = nil
}

func (s *liveState) setRemote(mode string, intervalMS uint32) {
	s.mu.Lock()
	s.Mode = mode
	s.IntervalMS = intervalMS
	s.mu.Unlock()
}

func (s *liveState) addStatus(text string) {
	s.mu.Lock()
	s.Statuses = append(s.Statuses, text)
	if len(s.Statuses) > maxStatusLines {
		s.Statuses = s.Statuses[len(s.Statuses)-maxStatusLines:]
	}
	s.mu.Unlock()
}

func (s *liveState) progress(source string, index int) {
	s.mu.Lock()
	s.Current = source
	s.Index = index
	s.mu.Unlock()
}

func (s *liveState) sourceDone(sum sink.Summary) {
	s.mu.Lock()
	s.Sources = append(s.Sources, sourceView{
		Name:              sum.Source,
		Samples:           sum.Samples,
		Invalid:           sum.Invalid,
		SkippedLines:      sum.SkippedLines,
		CutoffHz:          jsonFloat(sum.Cutoff),
		RawAmplitude:      jsonFloat(sum.RawAmplitude),
		FilteredAmplitude: jsonFloat(sum.FiltAmplitude),
	})
	s.mu.Unlock()
}

func (s *liveState) finish(t sink.Terminal) {
	s.mu.Lock()
	s.Running = false
	s.Terminal = &terminalView{Status: t.Status.String(), Message: t.Message()}
	s.mu.Unlock()
}

func (s *liveState) snapshot() statusView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := statusView{
		SessionID:  s.SessionID,
		Producer:   s.Producer,
		Mode:       s.Mode,
		IntervalMS: s.IntervalMS,
		StartedAt:  s.StartedAt,
		Running:    s.Running,
		Current:    s.Current,
		Index:      s.Index,
		Statuses:   append([]string{}, s.Statuses...),
		Sources:    append([]sourceView{}, s.Sources...),
	}
	if s.Terminal != nil {
		t := *s.Terminal
		v.Terminal = &t
	}
	return v
}
