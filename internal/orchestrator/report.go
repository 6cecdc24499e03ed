package orchestrator

import (
	"sync"
	"time"

	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
)

// CycleReport summarizes one pass over the task set.
type CycleReport struct {
	ID         string                 `json:"id"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Phase      Phase                  `json:"phase"`
	Persisted  bool                   `json:"persisted"`
	Error      string                 `json:"error,omitempty"`
	Results    []outcome.Result       `json:"results"`
	Counts     map[outcome.Status]int `json:"counts"`
}

func (r *CycleReport) add(result outcome.Result) {
	r.Results = append(r.Results, result)
	if r.Counts == nil {
		r.Counts = map[outcome.Status]int{}
	}
	r.Counts[result.Status]++
}

// hub fans published reports out to subscribers and remembers the latest.
// Slow subscribers miss reports rather than block the cycle.
type hub struct {
	mu     sync.Mutex
	latest *CycleReport
	subs   map[chan CycleReport]struct{}
}

func (h *hub) publish(report CycleReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &report
	for ch := range h.subs {
		select {
		case ch <- report:
		default:
		}
	}
}

func (h *hub) subscribe(buffer int) (<-chan CycleReport, func()) {
	ch := make(chan CycleReport, buffer)
	h.mu.Lock()
	if h.subs == nil {
		h.subs = map[chan CycleReport]struct{}{}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *hub) last() (CycleReport, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return CycleReport{}, false
	}
	return *h.latest, true
}
