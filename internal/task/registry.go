// Package task holds the in-memory registry of background update tasks.
//
// Each record is owned by exactly one background worker; every other caller
// only ever reads whole-record copies. The registry itself is bounded: once
// the cap is reached, the oldest finished records are evicted (running tasks
// are never evicted).
package task

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StepInitializing is the step every record starts in.
const StepInitializing = "initializing"

// Record is the polling contract for one background task. Once Done is set
// the record never changes again.
type Record struct {
	ID        string    `json:"id"`
	Step      string    `json:"step"`
	Percent   int       `json:"percent"`
	Logs      []string  `json:"logs"`
	Done      bool      `json:"done"`
	Canceled  bool      `json:"canceled"`
	Error     string    `json:"error,omitempty"`
	Result    any       `json:"result,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// clone returns a deep-enough copy for handing to readers; the log slice is
// duplicated so the owner can keep appending.
func (r *Record) clone() Record {
	out := *r
	out.Logs = append([]string(nil), r.Logs...)
	return out
}

// Registry is a concurrency-safe keyed store of task records. Readers always
// see a complete snapshot of a record, never a half-written one.
type Registry struct {
	mu       sync.RWMutex
	records  map[string]*Record
	cancels  map[string]chan struct{}
	cap      int
	logLines int

	// onFinish, when set, receives a copy of every record that completes.
	onFinish func(Record)
}

// Option configures a Registry.
type Option func(*Registry)

// WithCap bounds the number of retained records.
func WithCap(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.cap = n
		}
	}
}

// WithLogLines caps each record's log length; older lines are dropped first.
func WithLogLines(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.logLines = n
		}
	}
}

// WithFinishHook registers a callback invoked (on the worker goroutine) with a
// copy of each record as it finishes.
func WithFinishHook(fn func(Record)) Option {
	return func(r *Registry) { r.onFinish = fn }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		records:  make(map[string]*Record),
		cancels:  make(map[string]chan struct{}),
		cap:      64,
		logLines: 2000,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new record and returns its ID together with the
// cancellation channel the owning worker must watch.
func (r *Registry) Create() (string, <-chan struct{}) {
	id := uuid.NewString()
	cancel := make(chan struct{})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked()
	r.records[id] = &Record{
		ID:        id,
		Step:      StepInitializing,
		StartedAt: time.Now(),
	}
	r.cancels[id] = cancel
	return id, cancel
}

// Get returns a copy of the record, if present.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// List returns copies of all records, newest first.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Cancel requests cooperative cancellation. It is a no-op for finished or
// unknown tasks; the worker honors the request at its next checkpoint.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Done {
		return false
	}
	if ch, ok := r.cancels[id]; ok {
		select {
		case <-ch:
			// already canceled
		default:
			close(ch)
		}
	}
	rec.Canceled = true
	return true
}

// SetStep updates the current step, and the percent when nonnegative. A
// negative percent keeps the current value, used for terminal step changes.
// Only the owning worker calls this.
func (r *Registry) SetStep(id, step string, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok && !rec.Done {
		rec.Step = step
		if percent >= 0 {
			rec.Percent = clampPercent(percent)
		}
	}
}

// SetPercent updates only the percent.
func (r *Registry) SetPercent(id string, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok && !rec.Done {
		rec.Percent = clampPercent(percent)
	}
}

// Append adds timestamped log lines to the record, dropping the oldest lines
// beyond the cap.
func (r *Registry) Append(id string, lines ...string) {
	stamp := time.Now().Format("2006-01-02 15:04:05")

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Done {
		return
	}
	for _, ln := range lines {
		rec.Logs = append(rec.Logs, stamp+" "+ln)
	}
	if over := len(rec.Logs) - r.logLines; over > 0 {
		rec.Logs = append([]string(nil), rec.Logs[over:]...)
	}
}

// Finish marks the record done and immutable. An empty errMsg with canceled
// false is a success; canceled tasks carry errMsg "Canceled".
func (r *Registry) Finish(id string, result any, errMsg string, canceled bool) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok || rec.Done {
		r.mu.Unlock()
		return
	}
	rec.Done = true
	rec.Canceled = canceled
	rec.Error = errMsg
	rec.Result = result
	if errMsg == "" && !canceled {
		rec.Percent = 100
	}
	delete(r.cancels, id)
	snapshot := rec.clone()
	hook := r.onFinish
	r.mu.Unlock()

	if hook != nil {
		hook(snapshot)
	}
}

// EvictFinished applies the capacity bound immediately and returns how many
// records were evicted. The daemon sweep calls this periodically; Create also
// applies it inline.
func (r *Registry) EvictFinished() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.records)
	r.evictLocked()
	return before - len(r.records)
}

// evictLocked removes the oldest finished records while over capacity.
func (r *Registry) evictLocked() {
	if len(r.records) < r.cap {
		return
	}
	var finished []*Record
	for _, rec := range r.records {
		if rec.Done {
			finished = append(finished, rec)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].StartedAt.Before(finished[j].StartedAt)
	})
	for _, rec := range finished {
		if len(r.records) < r.cap {
			return
		}
		delete(r.records, rec.ID)
	}
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
