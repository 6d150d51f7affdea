package backup

import (
	"fmt"
	"time"
)

// State of the scheduler.
type State string

const (
	Idle    State = "idle"
	Running State = "running"
)

// FolderStatus is the live view of one source folder.
type FolderStatus struct {
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	Remaining      int       `json:"remaining"`
	Frequency      int       `json:"frequency"`
	InProcess      bool      `json:"in_process"`
	PendingChanges int64     `json:"pending_changes"`
	LastCopy       time.Time `json:"last_copy"`
	LastErrors     int       `json:"last_errors"`
}

// Status is the snapshot published after every scheduler iteration.
type Status struct {
	Label   string         `json:"label"`
	State   State          `json:"state"`
	Folders []FolderStatus `json:"folders"`
	Error   string         `json:"error,omitempty"`
}

// Line renders the folder's status line.
func (f FolderStatus) Line() string {
	if f.InProcess {
		return fmt.Sprintf("%s — In process.", f.Name)
	}
	return fmt.Sprintf("%s — Back up after: %s", f.Name, FormatClock(f.Remaining))
}

// Lines renders one status line per source folder.
func (s Status) Lines() []string {
	lines := make([]string, 0, len(s.Folders))
	for _, f := range s.Folders {
		lines = append(lines, f.Line())
	}
	return lines
}

// FormatClock renders seconds as HH:MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}
