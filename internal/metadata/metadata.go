package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// FileName is the run record written into the temp dir.
const FileName = "run.json"

// Run is the record of one test run, collected by the parallel runner.
type Run struct {
	ID        string    `json:"id"`
	Test      string    `json:"test"`
	BootImage string    `json:"boot_image"`
	TempDir   string    `json:"tmp_dir"`
	Host      string    `json:"host,omitempty"`
	ExitCode  int       `json:"exit_code"`
	Outcome   string    `json:"outcome,omitempty"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished,omitempty"`
	Duration  string    `json:"duration,omitempty"`
}

// NewRun starts a run record with a fresh id.
func NewRun(test, host, bootImage, tmpDir string) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Test:      test,
		BootImage: bootImage,
		TempDir:   tmpDir,
		Host:      host,
		Started:   time.Now(),
	}
}

// Finish records the exit code and the run duration.
func (r *Run) Finish(code int, outcome string) {
	r.Finished = time.Now()
	r.ExitCode = code
	r.Outcome = outcome
	r.Duration = r.Finished.Sub(r.Started).Round(time.Second).String()
}

// Save writes the run record into dir.
var Save = func(dir string, run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, FileName), data, 0644)
}
