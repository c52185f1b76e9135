// Package sync coordinates whole-account synchronization and cross-account
// export runs. Each run executes as a background task; callers poll its
// progress through a status registry keyed by account id (sync) or by a
// source-target pair (export).
package sync

import (
	"errors"
	gosync "sync"
	"time"
)

// ErrAlreadyRunning rejects a trigger whose key already has a running
// operation. The HTTP layer maps it to a conflict response.
var ErrAlreadyRunning = errors.New("operation already running")

// Operation statuses. An operation starts running and ends either completed
// or failed; after a retention window it disappears and the key reads as
// idle again.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Operation is the transient record of one sync or export run. It lives in
// memory only; a process restart forgets it.
type Operation struct {
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Notifier is called after every status change with the operation key and a
// snapshot of the record. It must not call back into the registry.
type Notifier func(key string, op Operation)

// StatusRegistry tracks running and recently finished operations. TryStart
// is an atomic test-and-set, which is what prevents two triggers that both
// observed an idle key from starting twice.
type StatusRegistry struct {
	mu        gosync.Mutex
	ops       map[string]*Operation
	retention time.Duration
	notify    Notifier
}

func NewStatusRegistry(retention time.Duration) *StatusRegistry {
	return &StatusRegistry{
		ops:       make(map[string]*Operation),
		retention: retention,
	}
}

// SetNotifier installs a status change listener. Must be called before the
// registry is shared.
func (r *StatusRegistry) SetNotifier(notify Notifier) {
	r.notify = notify
}

// TryStart claims the key for a new run. It returns false if an operation
// is already running under this key; a finished operation still within its
// retention window does not block a new run.
func (r *StatusRegistry) TryStart(key string) bool {
	r.mu.Lock()

	if op, ok := r.ops[key]; ok && op.Status == StatusRunning {
		r.mu.Unlock()
		return false
	}

	op := &Operation{
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	r.ops[key] = op
	snapshot := *op
	r.mu.Unlock()

	r.emit(key, snapshot)
	return true
}

// Complete records a successful run and its result payload.
func (r *StatusRegistry) Complete(key string, result any) {
	r.finish(key, StatusCompleted, result, "")
}

// Fail records a failed run and its error message.
func (r *StatusRegistry) Fail(key string, errMsg string) {
	r.finish(key, StatusFailed, nil, errMsg)
}

// finish only applies to a running operation; a finish on an unknown or
// already finished key is ignored.
func (r *StatusRegistry) finish(key, status string, result any, errMsg string) {
	r.mu.Lock()

	op, ok := r.ops[key]
	if !ok || op.Status != StatusRunning {
		r.mu.Unlock()
		return
	}

	now := time.Now()
	op.Status = status
	op.CompletedAt = &now
	op.Result = result
	op.Error = errMsg
	snapshot := *op
	r.mu.Unlock()

	r.emit(key, snapshot)
	r.evictLater(key, op)
}

// evictLater removes the finished record after the retention window. The
// pointer comparison makes a stale timer harmless when the key has been
// reused for a newer run in the meantime.
func (r *StatusRegistry) evictLater(key string, op *Operation) {
	time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if current, ok := r.ops[key]; ok && current == op {
			delete(r.ops, key)
		}
	})
}

// Get returns a snapshot of the operation under key, and whether one exists.
func (r *StatusRegistry) Get(key string) (Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[key]
	if !ok {
		return Operation{}, false
	}
	return *op, true
}

func (r *StatusRegistry) emit(key string, op Operation) {
	if r.notify != nil {
		r.notify(key, op)
	}
}
