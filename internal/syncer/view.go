package syncer

import "github.com/calvinalkan/todo-sync/internal/todo"

// State is the form state.
type State uint8

// Form states.
const (
	Idle State = iota
	FormEditing
	Submitting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FormEditing:
		return "editing"
	case Submitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// RecordState is the state of the two-phase update.
type RecordState uint8

// Record states.
const (
	ViewingRecord RecordState = iota
	// EditingRecord: the form holds a record's values, the next Update
	// commits them.
	EditingRecord
	CommittingUpdate
)

func (s RecordState) String() string {
	switch s {
	case ViewingRecord:
		return "viewing"
	case EditingRecord:
		return "editing"
	case CommittingUpdate:
		return "committing"
	default:
		return "unknown"
	}
}

// View is a snapshot of everything a renderer shows.
type View struct {
	State  State
	Record RecordState

	Form      todo.Form
	Updating  bool
	EditingID string

	// Local is the local store's list, ordered by id.
	Local    []todo.Record
	LocalErr error

	// Remote is the service's list in service order. Nil until loaded.
	Remote    []todo.Record
	RemoteErr error

	Mounted bool
}
