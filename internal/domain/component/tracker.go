package component

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/events"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/monitoring"
)

// Progress bands: fetched bytes map onto [0, fetchBand], staging starts at
// fetchBand and ready is 100.
const (
	fetchBand = 90
	complete  = 100
)

// Tracker records per-component progress and publishes every change as a
// progress event. Within a run progress never decreases.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]*Status
	order    []string

	publisher events.Publisher
	metrics   *monitoring.Metrics
}

// NewTracker creates a tracker with every id pending. publisher and
// metrics may be nil.
func NewTracker(ids []string, publisher events.Publisher, metrics *monitoring.Metrics) *Tracker {
	t := &Tracker{
		statuses:  make(map[string]*Status, len(ids)),
		publisher: publisher,
		metrics:   metrics,
	}
	now := time.Now().UTC()
	for _, id := range ids {
		t.statuses[id] = &Status{ID: id, State: StatePending, BytesTotal: -1, UpdatedAt: now}
		t.order = append(t.order, id)
	}
	return t
}

// Begin starts a new run for id at zero progress.
func (t *Tracker) Begin(id string) {
	t.update(id, func(s *Status) bool {
		s.State = StateFetching
		s.Progress = 0
		s.BytesDone = 0
		s.BytesTotal = -1
		s.Error = ""
		return true
	}, "")
}

// Fetching records downloaded bytes. total is -1 when unknown.
func (t *Tracker) Fetching(id string, written, total int64) {
	t.update(id, func(s *Status) bool {
		s.BytesDone = written
		s.BytesTotal = total
		if total <= 0 {
			return false
		}
		pct := int(written * fetchBand / total)
		if pct > fetchBand {
			pct = fetchBand
		}
		if pct <= s.Progress {
			return false
		}
		s.Progress = pct
		return true
	}, "")
}

// Staging marks the start of extraction.
func (t *Tracker) Staging(id string) {
	t.update(id, func(s *Status) bool {
		s.State = StateStaging
		if s.Progress < fetchBand {
			s.Progress = fetchBand
		}
		return true
	}, "")
}

// Ready marks id complete.
func (t *Tracker) Ready(id, line string) {
	t.update(id, func(s *Status) bool {
		s.State = StateReady
		s.Progress = complete
		s.Error = ""
		return true
	}, line)
}

// Failed marks id failed, keeping the progress reached.
func (t *Tracker) Failed(id string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	t.update(id, func(s *Status) bool {
		s.State = StateFailed
		s.Error = msg
		return true
	}, msg)
}

// Status returns a copy of id's status.
func (t *Tracker) Status(id string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.statuses[id]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// All returns copies of every status in catalog order.
func (t *Tracker) All() []Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Status, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.statuses[id])
	}
	return out
}

// update applies fn under the lock and publishes when fn reports a change.
func (t *Tracker) update(id string, fn func(*Status) bool, line string) {
	t.mu.Lock()
	s, ok := t.statuses[id]
	if !ok {
		s = &Status{ID: id, State: StatePending, BytesTotal: -1}
		t.statuses[id] = s
		t.order = append(t.order, id)
	}
	changed := fn(s)
	if changed {
		s.UpdatedAt = time.Now().UTC()
	}
	snapshot := *s
	t.mu.Unlock()

	if !changed {
		return
	}
	t.metrics.SetComponentProgress(id, snapshot.Progress)
	if t.publisher != nil {
		t.publisher.Publish(events.Progress(id, string(snapshot.State), snapshot.Progress, line))
	}
}
