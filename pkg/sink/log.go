package sink

import (
	"github.com/rs/zerolog"
)

// Log writes statuses, summaries and the terminal status to a zerolog
// logger. Sample pairs are logged at trace level only.
type Log struct {
	Logger zerolog.Logger
}

func NewLog(l zerolog.Logger) *Log {
	return &Log{Logger: l}
}

func (l *Log) ReportStatus(text string) {
	l.Logger.Info().Msg(text)
}

func (l *Log) EmitSamplePair(source string, p Pair) {
	e := l.Logger.Trace()
	if !e.Enabled() {
		return
	}
	e.Str("source", source).
		Int("index", p.Index).
		Float64("weight", p.Weight).
		Float64("filtered", p.Filtered).
		Msg("sample")
}

func (l *Log) BeginSource(name string, total int) {
	l.Logger.Debug().Str("source", name).Int("samples", total).Msg("source started")
}

func (l *Log) EndSource(name string, s Summary) {
	l.Logger.Info().
		Str("source", name).
		Int("samples", s.Samples).
		Int("invalid", s.Invalid).
		Int("skipped_lines", s.SkippedLines).
		Float64("cutoff_hz", s.Cutoff).
		Float64("raw_amplitude", s.RawAmplitude).
		Float64("filtered_amplitude", s.FiltAmplitude).
		Msg("source processed")
}

func (l *Log) ReportTerminal(t Terminal) {
	var e *zerolog.Event
	switch t.Status {
	case Finished, Stopped:
		e = l.Logger.Info()
	case Error:
		e = l.Logger.Error().Err(t.Err)
	default:
		e = l.Logger.Warn()
	}
	e.Str("status", t.Status.String()).Msg(t.Message())
}
