// Package results persists pipeline runs as per-run directories holding a
// structured JSON record next to a human-readable text summary.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roboplan/roboplan/pkg/models"
)

// Writer lays out pipeline run artifacts on disk:
//
//	{basePath}/run_20260824_153001/pipeline_results.json
//	{basePath}/run_20260824_153001/pipeline_summary.txt
type Writer struct {
	basePath string
}

// NewWriter creates a run writer rooted at basePath. An empty basePath
// defaults to "results/planning" under the working directory.
func NewWriter(basePath string) *Writer {
	if basePath == "" {
		basePath = filepath.Join("results", "planning")
	}
	return &Writer{basePath: basePath}
}

// WriteRun persists one completed pipeline run and returns the run
// directory. Run dirs are named after the run's start timestamp; a
// same-second collision gets a numeric suffix rather than overwriting an
// earlier run.
func (w *Writer) WriteRun(run *models.PipelineRun) (string, error) {
	dir, err := w.createRunDir(run.Timestamp)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal pipeline run: %w", err)
	}
	jsonPath := filepath.Join(dir, "pipeline_results.json")
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", jsonPath, err)
	}

	summaryPath := filepath.Join(dir, "pipeline_summary.txt")
	if err := os.WriteFile(summaryPath, []byte(renderSummary(run)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", summaryPath, err)
	}

	log.Debug().
		Str("dir", dir).
		Str("run_id", run.ID).
		Int("steps", len(run.Steps)).
		Msg("pipeline run written")

	return dir, nil
}

func (w *Writer) createRunDir(ts time.Time) (string, error) {
	base := "run_" + ts.UTC().Format("20060102_150405")
	for i := 0; ; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		dir := filepath.Join(w.basePath, name)
		err := os.MkdirAll(w.basePath, 0o755)
		if err != nil {
			return "", fmt.Errorf("create results base dir: %w", err)
		}
		if err := os.Mkdir(dir, 0o755); err == nil {
			return dir, nil
		} else if !os.IsExist(err) {
			return "", fmt.Errorf("create run dir: %w", err)
		}
	}
}

// ListRuns returns the run directory names under the base path, oldest
// first. Missing base path means no runs yet.
func (w *Writer) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(w.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read results dir: %w", err)
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "run_") {
			runs = append(runs, e.Name())
		}
	}
	sort.Strings(runs)
	return runs, nil
}

const sectionRule = "============================================================"
const stepRule = "----------------------------------------"

// renderSummary formats the run for humans. Same content as the JSON
// record, readable without tooling.
func renderSummary(run *models.PipelineRun) string {
	var b strings.Builder
	b.WriteString(sectionRule + "\n")
	b.WriteString("PLANNING PIPELINE SUMMARY\n")
	b.WriteString(sectionRule + "\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", run.Goal)
	fmt.Fprintf(&b, "Timestamp: %s\n\n", run.Timestamp.UTC().Format(time.RFC3339))

	for i, step := range run.Steps {
		b.WriteString(stepRule + "\n")
		fmt.Fprintf(&b, "Step %d: %s\n", i+1, step.QueryType)
		b.WriteString(stepRule + "\n")
		fmt.Fprintf(&b, "Prompt: %s\n\n", step.Prompt)
		if step.Success {
			fmt.Fprintf(&b, "Answer:\n%s\n\n", step.Answer)
		} else {
			fmt.Fprintf(&b, "Error:\n%s\n\n", step.Error)
		}
		if step.Thinking != "" {
			fmt.Fprintf(&b, "Thinking:\n%s\n\n", step.Thinking)
		}
	}
	return b.String()
}
