// Package audit writes the per-topic CSV reports of a run. Once a topic's
// new report is fully written to a temporary file, whatever the topic held
// from a previous run is moved under audits/_archive/<timestamp>/ and the
// report takes its place. Every report gets a JSON sidecar with its row
// count and generation time.
package audit

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/julianshen/worldforge/internal/fsutil"
	"github.com/julianshen/worldforge/internal/logger"
	"github.com/julianshen/worldforge/internal/worlderr"
)

// Dir is the directory under the reports root that holds audits.
const Dir = "audits"

// ArchiveDir holds rotated reports, one timestamped directory per run.
const ArchiveDir = "_archive"

const timestampLayout = "20060102T150405.000Z"

// Table is one CSV report. Topic is "<category>/<subcategory>"; the file
// is named after the subcategory.
type Table struct {
	Topic   string
	Columns []string
	Rows    [][]string
}

// Name is the report's file stem.
func (t Table) Name() string {
	return filepath.Base(filepath.FromSlash(t.Topic))
}

// Meta is the JSON sidecar written next to each report.
type Meta struct {
	Topic       string    `json:"topic"`
	Columns     []string  `json:"columns"`
	Rows        int       `json:"rows"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Result lists what a Write did.
type Result struct {
	Reports  []string `json:"reports"`
	Archived int      `json:"archived"`
}

// Reporter writes audit tables under a reports root.
type Reporter struct {
	root string
	now  func() time.Time
}

// NewReporter returns a reporter writing under root.
func NewReporter(root string) *Reporter {
	return &Reporter{root: root, now: time.Now}
}

// Write writes the tables, archiving each topic's previous files. All
// tables of one call share a generation time and archive directory; a
// stamp already used by an earlier call gets a numeric suffix.
func (r *Reporter) Write(tables []Table) (*Result, error) {
	now := r.now().UTC()
	archiveDir := r.archiveDir(now)
	res := &Result{}
	for _, t := range tables {
		path, n, err := r.writeTable(t, now, archiveDir)
		res.Archived += n
		if err != nil {
			return res, worlderr.New(worlderr.KindIO, "audit.Write", err)
		}
		res.Reports = append(res.Reports, path)
	}
	logger.Info("audit reports written", "reports", len(res.Reports), "archived", res.Archived)
	return res, nil
}

func (r *Reporter) topicDir(topic string) string {
	return filepath.Join(r.root, Dir, filepath.FromSlash(topic))
}

func (r *Reporter) archiveDir(now time.Time) string {
	base := filepath.Join(r.root, Dir, ArchiveDir, now.Format(timestampLayout))
	dir := base
	for i := 1; fsutil.Exists(dir); i++ {
		dir = fmt.Sprintf("%s-%d", base, i)
	}
	return dir
}

// archive moves the regular files of a topic directory into the archive.
// Hidden files are in-flight temporaries and stay.
func (r *Reporter) archive(topic, archiveDir string) (int, error) {
	dir := r.topicDir(topic)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	dest := filepath.Join(archiveDir, filepath.FromSlash(topic))
	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return n, err
		}
		if err := os.Rename(filepath.Join(dir, e.Name()), filepath.Join(dest, e.Name())); err != nil {
			return n, fmt.Errorf("archive %s: %w", e.Name(), err)
		}
		n++
	}
	return n, nil
}

// writeTable writes t to a temporary file, archives the topic's previous
// files and moves the new report into place. A table that cannot be written
// leaves the previous report where it was.
func (r *Reporter) writeTable(t Table, now time.Time, archiveDir string) (string, int, error) {
	dir := r.topicDir(t.Topic)
	path := filepath.Join(dir, t.Name()+".csv")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}
	f, err := os.CreateTemp(dir, "."+t.Name()+".*.tmp")
	if err != nil {
		return "", 0, err
	}
	tmp := f.Name()
	if err := writeCSV(f, t); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", 0, fmt.Errorf("write %s: %w", t.Topic, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", 0, err
	}

	n, err := r.archive(t.Topic, archiveDir)
	if err != nil {
		os.Remove(tmp)
		return "", n, fmt.Errorf("archive %s: %w", t.Topic, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", n, err
	}

	meta, err := json.MarshalIndent(Meta{Topic: t.Topic, Columns: t.Columns, Rows: len(t.Rows), GeneratedAt: now}, "", "  ")
	if err != nil {
		return "", n, err
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, t.Name()+".meta.json"), append(meta, '\n'), 0o644); err != nil {
		return "", n, err
	}
	return path, n, nil
}

func writeCSV(f *os.File, t Table) error {
	w := csv.NewWriter(f)
	w.Write(t.Columns)
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d fields, want %d", i, len(row), len(t.Columns))
		}
		w.Write(row)
	}
	w.Flush()
	return w.Error()
}
