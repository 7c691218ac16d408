package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const reportExt = ".parquet"

// API Handlers

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *consumerServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.state.snapshot()
	writeJSON(w, map[string]interface{}{
		"session":      st,
		"live_clients": s.hub.clientCount(),
	})
}

type reportInfo struct {
	Name    string         `json:"name"`
	Size    int64          `json:"size"`
	Rows    int64          `json:"rows"`
	Summary *ReportSummary `json:"summary,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func (s *consumerServer) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == "" {
		writeJSON(w, map[string]interface{}{"reports": []reportInfo{}})
		return
	}

	entries, err := os.ReadDir(s.reports)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "Failed to read reports folder: "+err.Error(), 500)
		return
	}

	reports := []reportInfo{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), reportExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ri := reportInfo{Name: entry.Name(), Size: info.Size()}
		sum, rows, err := readReportSummary(filepath.Join(s.reports, entry.Name()))
		ri.Rows = rows
		if err != nil {
			ri.Error = err.Error()
		} else {
			ri.Summary = &sum
		}
		reports = append(reports, ri)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Name < reports[j].Name })

	writeJSON(w, map[string]interface{}{"reports": reports})
}

// reportPath resolves a request-supplied report name inside the reports
// folder. Only plain base names with the report extension are accepted.
func (s *consumerServer) reportPath(name string) (string, bool) {
	if s.reports == "" || name == "" || filepath.Base(name) != name || !strings.HasSuffix(name, reportExt) {
		return "", false
	}
	return filepath.Join(s.reports, name), true
}

type reportRowView struct {
	Index    int64    `json:"index"`
	RawADC   int64    `json:"raw_adc"`
	Weight   *float64 `json:"weight"`
	Filtered *float64 `json:"filtered"`
	Valid    bool     `json:"valid"`
}

func (s *consumerServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", 405)
		return
	}
	path, ok := s.reportPath(r.PathValue("name"))
	if !ok {
		http.Error(w, "Invalid report name", 400)
		return
	}

	sum, _, err := readReportSummary(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "Report not found", 404)
			return
		}
		http.Error(w, "Failed to read report: "+err.Error(), 500)
		return
	}
	rows, err := readReportRows(path)
	if err != nil {
		http.Error(w, "Failed to read report: "+err.Error(), 500)
		return
	}

	view := make([]reportRowView, len(rows))
	for i, row := range rows {
		view[i] = reportRowView{
			Index:    row.Index,
			RawADC:   row.RawADC,
			Weight:   jsonFloat(row.Weight),
			Filtered: jsonFloat(row.Filtered),
			Valid:    row.Valid,
		}
	}

	writeJSON(w, map[string]interface{}{
		"name":    filepath.Base(path),
		"summary": sum,
		"rows":    view,
	})
}

func (s *consumerServer) handleReportDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	path, ok := s.reportPath(req.Filename)
	if !ok {
		http.Error(w, "Invalid report name", 400)
		return
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "Report not found", 404)
			return
		}
		http.Error(w, "Failed to delete report: "+err.Error(), 500)
		return
	}

	s.log.Info().Str("report", req.Filename).Msg("report deleted")
	s.hub.broadcastJSON(map[string]interface{}{
		"type": "report_deleted",
		"name": req.Filename,
	})

	writeJSON(w, map[string]interface{}{
		"success": true,
	})
}
