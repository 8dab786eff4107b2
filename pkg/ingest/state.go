package ingest

import "fmt"

// State of an ingestion handler. Error is terminal.
type State int32

const (
	Inactive State = iota
	Active
	Error
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Listener is told about every state transition. The cursor arbiter
// implements it.
type Listener interface {
	SetIngestionState(State)
}

type nopListener struct{}

func (nopListener) SetIngestionState(State) {}
