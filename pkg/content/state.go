package content

// State of a trigger control.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
)

func (s State) String() string {
	return string(s)
}

// IsActive reports whether a request is outstanding.
func (s State) IsActive() bool {
	return s == StateProcessing
}
