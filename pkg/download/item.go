package download

import "time"

// State of a download item
type State string

const (
	StateInProgress  State = "in_progress"
	StateComplete    State = "complete"
	StateInterrupted State = "interrupted"
)

// String returns the string representation of State
func (s State) String() string {
	return string(s)
}

// IsFinished returns true if no more work will happen for the item
func (s State) IsFinished() bool {
	return s == StateComplete || s == StateInterrupted
}

// Options describes one save request.
type Options struct {
	URL      string // blob URL of the payload
	Filename string // suggested file name, no directories
	SaveAs   bool   // ask the user where to save
}

// Item is a snapshot of a download's progress.
type Item struct {
	ID         int
	Filename   string
	Path       string
	Bytes      int64
	State      State
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}
