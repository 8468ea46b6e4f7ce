// Package archive persists completed analysis reports: snappy-compressed
// JSON files on disk for download replay, and an optional PostgreSQL run
// history for long-term audit.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/snappy"

	"github.com/dd0wney/mulewatch/pkg/engine"
	"github.com/dd0wney/mulewatch/pkg/logging"
)

const fileExt = ".json.sz"

// FileArchiver writes one compressed report file per run.
type FileArchiver struct {
	dir    string
	logger logging.Logger
}

// NewFileArchiver creates the archive directory if needed.
func NewFileArchiver(dir string, logger logging.Logger) (*FileArchiver, error) {
	if logger == nil {
		logger = logging.With(logging.Component("archive"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &FileArchiver{dir: dir, logger: logger}, nil
}

// Save writes the report as snappy-compressed JSON, keyed by run id.
func (a *FileArchiver) Save(report *engine.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	compressed := snappy.Encode(nil, data)
	path := filepath.Join(a.dir, report.RunID+fileExt)
	if err := os.WriteFile(path, compressed, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	a.logger.Debug("report archived",
		logging.RunID(report.RunID),
		logging.Int("compressed_bytes", len(compressed)),
		logging.Int("raw_bytes", len(data)))
	return nil
}

// Load reads one archived report back by run id.
func (a *FileArchiver) Load(runID string) (*engine.Report, error) {
	compressed, err := os.ReadFile(filepath.Join(a.dir, runID+fileExt))
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}

	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress report: %w", err)
	}

	var report engine.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

// List returns the archived run ids, newest file first.
func (a *FileArchiver) List() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("read archive dir: %w", err)
	}

	type stamped struct {
		runID string
		mod   int64
	}
	runs := make([]stamped, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		runs = append(runs, stamped{
			runID: strings.TrimSuffix(e.Name(), fileExt),
			mod:   info.ModTime().UnixNano(),
		})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].mod > runs[j].mod })

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.runID
	}
	return ids, nil
}
