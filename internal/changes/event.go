// Package changes publishes the writes applied through the engine to
// in-process subscribers. Events carry a monotonically increasing token so
// that a subscriber can resume from the last token it processed while the
// event is still held in the replay buffer.
package changes

import (
	"time"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/vdx/internal/directory"
)

// Operation is the kind of write an event reports.
type Operation uint8

const (
	// OpInsert reports an added entry.
	OpInsert Operation = iota + 1
	// OpUpdate reports a modified entry.
	OpUpdate
	// OpDelete reports a deleted entry.
	OpDelete
	// OpModifyDN reports a renamed entry.
	OpModifyDN
)

func (op Operation) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpModifyDN:
		return "modifyDN"
	default:
		return "unknown"
	}
}

// ChangeEvent describes one successful write.
type ChangeEvent struct {
	// ID uniquely identifies the event across engine instances.
	ID string
	// Token orders events within one broker.
	Token     uint64
	Operation Operation
	DN        string
	// OldDN is set for OpModifyDN.
	OldDN string
	// Entry is the entry after the write, nil for OpDelete.
	Entry *directory.Entry
	// Mapping is the id of the entry mapping that produced the entry.
	Mapping string
	// Sources lists the physical sources written.
	Sources   []string
	Timestamp time.Time
}

// NewEvent creates an event with a fresh ID.
func NewEvent(op Operation, dn string) ChangeEvent {
	return ChangeEvent{ID: uuid.NewString(), Operation: op, DN: dn}
}

// Clone returns a deep copy.
func (e ChangeEvent) Clone() ChangeEvent {
	clone := e
	clone.Entry = e.Entry.Clone()
	clone.Sources = append([]string(nil), e.Sources...)
	return clone
}
