// Package runstate holds the per-task records that let a cycle decide what
// work is new: category -> task title -> opaque JSON blob.
package runstate

import (
	"encoding/json"
	"errors"
	"sync"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrCorrupt      = errors.New("run state is corrupt")
)

// State categories. They differ from the task file keys for the message,
// tracker and reminder categories.
const (
	CategorySync         = "drive_tasks"
	CategoryMessage      = "email_tasks"
	CategoryReconcile    = "tracker_tasks"
	CategorySchemaUpdate = "form_updater_tasks"
	CategoryFollowUp     = "reminder_tasks"
)

type Snapshot map[string]map[string]json.RawMessage

func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for category, entries := range s {
		copied := make(map[string]json.RawMessage, len(entries))
		for title, raw := range entries {
			copied[title] = append(json.RawMessage(nil), raw...)
		}
		out[category] = copied
	}
	return out
}

// State is the in-memory view mutated during one cycle.
type State struct {
	mu   sync.Mutex
	data Snapshot
}

func New() *State {
	return FromSnapshot(nil)
}

func FromSnapshot(snapshot Snapshot) *State {
	if snapshot == nil {
		snapshot = Snapshot{}
	}
	return &State{data: snapshot.Clone()}
}

// Get decodes the blob for (category, title) into out. It reports false when
// no blob is recorded.
func (s *State) Get(category, title string, out any) (bool, error) {
	raw, ok := s.Raw(category, title)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, err
	}
	return true, nil
}

func (s *State) Put(category, title string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.SetRaw(category, title, raw)
	return nil
}

func (s *State) Raw(category, title string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[category][title]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), raw...), true
}

// SetRaw stores raw for (category, title); a nil raw removes the entry.
func (s *State) SetRaw(category, title string, raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw == nil {
		if entries, ok := s.data[category]; ok {
			delete(entries, title)
			if len(entries) == 0 {
				delete(s.data, category)
			}
		}
		return
	}
	entries, ok := s.data[category]
	if !ok {
		entries = map[string]json.RawMessage{}
		s.data[category] = entries
	}
	entries[title] = append(json.RawMessage(nil), raw...)
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

// Backend persists snapshots. Save overwrites the whole snapshot.
type Backend interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
}

// Load reads the backend into a fresh State. A corrupt snapshot yields an
// empty State together with an ErrCorrupt error.
func Load(b Backend) (*State, error) {
	if b == nil {
		return New(), ErrInvalidInput
	}
	snapshot, err := b.Load()
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			return New(), err
		}
		return nil, err
	}
	return FromSnapshot(snapshot), nil
}

func Save(b Backend, s *State) error {
	if b == nil || s == nil {
		return ErrInvalidInput
	}
	return b.Save(s.Snapshot())
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Join(ErrCorrupt, err)
	}
	if snapshot == nil {
		snapshot = Snapshot{}
	}
	return snapshot, nil
}
