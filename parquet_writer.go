package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adcstream/pkg/sink"
	"github.com/segmentio/parquet-go"
)

// ReportRow is one processed sample in a per-source report.
type ReportRow struct {
	Index    int64   `parquet:"index"`
	RawADC   int64   `parquet:"raw_adc"`
	Weight   float64 `parquet:"weight"`
	Filtered float64 `parquet:"filtered_weight"`
	Valid    bool    `parquet:"valid"`
}

// ReportSummary is stored as JSON in the "summary" key of each report.
type ReportSummary struct {
	Session           string    `json:"session"`
	Source            string    `json:"source"`
	Samples           int       `json:"samples"`
	Invalid           int       `json:"invalid"`
	SkippedLines      int       `json:"skipped_lines"`
	SampleRate        float64   `json:"sample_rate"`
	DCOffset          *float64  `json:"dc_offset"`
	CutoffHz          *float64  `json:"cutoff_hz"`
	RawAmplitude      *float64  `json:"raw_amplitude"`
	FilteredAmplitude *float64  `json:"filtered_amplitude"`
	Coefficients      []float64 `json:"fir_coefficients"`
	Frequencies       []float64 `json:"fft_frequencies,omitempty"`
	Magnitudes        []float64 `json:"fft_magnitudes,omitempty"`
}

const reportSummaryKey = "summary"

func newReportSummary(session string, s sink.Summary) ReportSummary {
	return ReportSummary{
		Session:           session,
		Source:            s.Source,
		Samples:           s.Samples,
		Invalid:           s.Invalid,
		SkippedLines:      s.SkippedLines,
		SampleRate:        s.SampleRate,
		DCOffset:          jsonFloat(s.DCOffset),
		CutoffHz:          jsonFloat(s.Cutoff),
		RawAmplitude:      jsonFloat(s.RawAmplitude),
		FilteredAmplitude: jsonFloat(s.FiltAmplitude),
		Coefficients:      finiteOnly(s.Coefficients),
		Frequencies:       finiteOnly(s.Frequencies),
		Magnitudes:        finiteOnly(s.Magnitudes),
	}
}

func finiteOnly(xs []float64) []float64 {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	}
	return xs
}

// NewParquetWriter creates a generic parquet writer with our schema and metadata
func NewParquetWriter(w io.Writer, summary ReportSummary) (*parquet.GenericWriter[ReportRow], error) {
	b, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("report: encode summary: %w", err)
	}
	return parquet.NewGenericWriter[ReportRow](w,
		parquet.KeyValueMetadata(reportSummaryKey, string(b)),
		parquet.KeyValueMetadata("source", summary.Source),
		parquet.KeyValueMetadata("session", summary.Session),
	), nil
}

// ReportWriter is a sink that writes one parquet file per processed source
// into Dir. Rows are buffered until the source ends so the summary can be
// stored in the file metadata.
type ReportWriter struct {
	Dir string

	mu      sync.Mutex
	session string
	rows    map[string][]ReportRow
	written []string
	errs    []error
}

func NewReportWriter(dir, session string) (*ReportWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("report: create %s: %w", dir, err)
	}
	return &ReportWriter{Dir: dir, session: session, rows: make(map[string][]ReportRow)}, nil
}

// reportName maps a source identifier onto a file name inside Dir.
func reportName(source string) string {
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "source"
	}
	return base + ".parquet"
}

// SetSession changes the session id recorded in subsequent reports.
func (rw *ReportWriter) SetSession(id string) {
	rw.mu.Lock()
	rw.session = id
	rw.mu.Unlock()
}

func (rw *ReportWriter) ReportStatus(string) {}

func (rw *ReportWriter) BeginSource(name string, total int) {
	rw.mu.Lock()
	rw.rows[name] = make([]ReportRow, 0, total)
	rw.mu.Unlock()
}

func (rw *ReportWriter) EmitSamplePair(source string, p sink.Pair) {
	rw.mu.Lock()
	rw.rows[source] = append(rw.rows[source], ReportRow{
		Index:    int64(p.Index),
		RawADC:   p.Raw,
		Weight:   p.Weight,
		Filtered: p.Filtered,
		Valid:    p.Valid(),
	})
	rw.mu.Unlock()
}

func (rw *ReportWriter) EndSource(name string, s sink.Summary) {
	rw.mu.Lock()
	rows := rw.rows[name]
	delete(rw.rows, name)
	session := rw.session
	rw.mu.Unlock()

	path := filepath.Join(rw.Dir, reportName(name))
	err := writeReport(path, rows, newReportSummary(session, s))

	rw.mu.Lock()
	defer rw.mu.Unlock()
	if err != nil {
		rw.errs = append(rw.errs, err)
		return
	}
	rw.written = append(rw.written, path)
}

func (rw *ReportWriter) ReportTerminal(sink.Terminal) {
	rw.mu.Lock()
	clear(rw.rows)
	rw.mu.Unlock()
}

// Written lists the report files produced so far.
func (rw *ReportWriter) Written() []string {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return append([]string(nil), rw.written...)
}

// Errors returns the write failures seen so far.
func (rw *ReportWriter) Errors() []error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return append([]error(nil), rw.errs...)
}

func writeReport(path string, rows []ReportRow, summary ReportSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	w, err := NewParquetWriter(f, summary)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("report: close %s: %w", path, err)
	}
	return f.Close()
}

// readReportSummary returns the summary stored in a report file.
func readReportSummary(path string) (ReportSummary, int64, error) {
	var sum ReportSummary
	f, err := os.Open(path)
	if err != nil {
		return sum, 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return sum, 0, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return sum, 0, fmt.Errorf("report: open %s: %w", path, err)
	}
	raw, ok := pf.Lookup(reportSummaryKey)
	if !ok {
		return sum, pf.NumRows(), fmt.Errorf("report: %s has no summary", path)
	}
	if err := json.Unmarshal([]byte(raw), &sum); err != nil {
		return sum, pf.NumRows(), fmt.Errorf("report: decode summary of %s: %w", path, err)
	}
	return sum, pf.NumRows(), nil
}

// readReportRows loads every row of a report file.
func readReportRows(path string) ([]ReportRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := parquet.NewGenericReader[ReportRow](f)
	defer r.Close()

	rows := make([]ReportRow, r.NumRows())
	n, err := r.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("report: read %s: %w", path, err)
	}
	return rows[:n], nil
}
