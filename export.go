package lcdielectrics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SweepRecord is what exporters receive: the plan that ran and a snapshot of
// its results. Complete is false for incremental saves and partial sweeps.
type SweepRecord struct {
	ID           string       `json:"id"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at,omitempty"`
	Complete     bool         `json:"complete"`
	Temperatures []float64    `json:"temperatures"`
	Frequencies  []float64    `json:"frequencies"`
	Voltages     []float64    `json:"voltages"`
	Results      *ResultStore `json:"results"`
}

// Exporter persists a sweep.
type Exporter interface {
	Export(ctx context.Context, rec SweepRecord) error
}

// JSONExporter writes the nested temperature -> frequency -> {volt, Cp, D, G, B} layout.
type JSONExporter struct {
	Path string
}

func (e *JSONExporter) Export(ctx context.Context, rec SweepRecord) error {
	data, err := json.MarshalIndent(rec.Results, "", "    ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := writeFileAtomic(e.Path, data); err != nil {
		return fmt.Errorf("write results json: %w", err)
	}
	return nil
}

// ReadResultsJSON parses a file written by JSONExporter.
func ReadResultsJSON(path string) (*ResultStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results json: %w", err)
	}
	store := NewResultStore()
	if err := json.Unmarshal(data, store); err != nil {
		return nil, fmt.Errorf("parse results json: %w", err)
	}
	return store, nil
}

// WorkbookPath derives the spreadsheet path that sits next to a JSON output.
func WorkbookPath(jsonPath string) string {
	return strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".xlsx"
}

func writeFileAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
