package domain

import (
	"reflect"
)

// StateDiff is the change between two snapshots of a call.
// The HTTP adapter returns it with every turn so clients can patch their view.
type StateDiff struct {
	CallID string `json:"call_id"`

	CurrentNodeID *string        `json:"current_node_id,omitempty"`
	Status        *SessionStatus `json:"status,omitempty"`

	// Variables holds added or changed keys. Removed keys map to nil.
	Variables map[string]any `json:"variables,omitempty"`

	History *HistoryDelta `json:"history,omitempty"`
}

// HistoryDelta lists the node ids appended to the history.
type HistoryDelta struct {
	Appended []string `json:"appended"`
}

// Diff calculates the difference between oldState and newState.
// A nil oldState yields the whole of newState.
func Diff(oldState, newState *SessionState) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{CallID: newState.CallID}

	if oldState == nil || oldState.CurrentNodeID != newState.CurrentNodeID {
		diff.CurrentNodeID = &newState.CurrentNodeID
	}
	if oldState == nil || oldState.Status != newState.Status {
		diff.Status = &newState.Status
	}
	diff.Variables = diffVariables(oldState, newState)
	diff.History = diffHistory(oldState, newState)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffVariables(old, new *SessionState) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new.Variables {
			delta[k] = v
		}
	} else {
		for k, newVal := range new.Variables {
			if oldVal, exists := old.Variables[k]; !exists || !reflect.DeepEqual(oldVal, newVal) {
				delta[k] = newVal
			}
		}
		for k := range old.Variables {
			if _, exists := new.Variables[k]; !exists {
				delta[k] = nil
			}
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// diffHistory assumes the history is append-only.
func diffHistory(old, new *SessionState) *HistoryDelta {
	if len(new.History) == 0 {
		return nil
	}
	if old == nil {
		return &HistoryDelta{Appended: new.History}
	}
	if len(new.History) > len(old.History) {
		return &HistoryDelta{Appended: new.History[len(old.History):]}
	}
	return nil
}

// IsEmpty reports whether the diff carries no changes.
func (d *StateDiff) IsEmpty() bool {
	return d.CurrentNodeID == nil &&
		d.Status == nil &&
		len(d.Variables) == 0 &&
		d.History == nil
}
