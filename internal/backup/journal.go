package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// JournalPrefix starts the name of a run's journal directory.
const JournalPrefix = "Journal_"

// Journal persists copy reports as text files.
type Journal struct{}

func NewJournal() *Journal {
	return &Journal{}
}

// Write replaces the file at path with the rendered report. An empty report
// writes nothing.
func (j *Journal) Write(path string, report *Report) error {
	if report.Empty() {
		return nil
	}
	if err := os.WriteFile(path, []byte(report.Text()), 0644); err != nil {
		return fmt.Errorf("failed to write journal %s: %w", path, err)
	}
	return nil
}

// JournalDir returns the journal directory of a run.
func JournalDir(runRoot, label string) string {
	return filepath.Join(runRoot, JournalPrefix+label)
}

// Path returns <dir>/<folder>_<HHmmss>.txt. Two failing copies of the same
// folder within one second share a path and the later one wins.
func (j *Journal) Path(dir, folder string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.txt", folder, now.Format("150405")))
}
