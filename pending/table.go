// Package pending tracks in-flight requests awaiting a response.
//
// Each entry is resolved exactly once: by a matching response, by an
// explicit rejection, or by its timeout. Resolution removes the entry
// under the table lock, so whichever path arrives second finds nothing
// and does nothing.
package pending

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/teranos/lspsession/errors"
)

// DefaultTimeout is the request deadline when none is configured.
const DefaultTimeout = 30 * time.Second

// Outcome is the terminal result of a pending request. Exactly one of
// Result and Err is meaningful; Result may be the bytes "null".
type Outcome struct {
	Result json.RawMessage
	Err    error
}

// Completion receives the outcome. It runs outside the table lock, on
// the goroutine that resolved the entry or on a timer goroutine.
type Completion func(Outcome)

type entry struct {
	complete Completion
	created  time.Time
	timer    *time.Timer
}

// Table maps request ids to pending completions.
type Table struct {
	mu      sync.Mutex
	entries map[int64]*entry
	timeout time.Duration
	now     func() time.Time
}

// New creates a table whose entries expire after timeout. A
// non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration) *Table {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Table{
		entries: make(map[int64]*entry),
		timeout: timeout,
		now:     time.Now,
	}
}

// Timeout returns the per-entry deadline.
func (t *Table) Timeout() time.Duration {
	return t.timeout
}

// Register stores a completion for id and arms its timeout. Registering
// an id that is already pending is rejected and leaves the existing
// entry untouched.
func (t *Table) Register(id int64, complete Completion) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return errors.AssertionFailedf("request id %d is already pending", id)
	}

	e := &entry{complete: complete, created: t.now()}
	e.timer = time.AfterFunc(t.timeout, func() {
		t.expire(id, e)
	})
	t.entries[id] = e
	return nil
}

// expire fires from the timer. The identity check keeps a stale timer
// from completing a different entry.
func (t *Table) expire(id int64, e *entry) {
	t.mu.Lock()
	current, ok := t.entries[id]
	if !ok || current != e {
		t.mu.Unlock()
		return
	}
	delete(t.entries, id)
	t.mu.Unlock()

	e.complete(Outcome{Err: errors.Wrapf(errors.ErrRequestTimeout, "no response to request %d after %s", id, t.timeout)})
}

// take removes and returns the entry for id, stopping its timer.
func (t *Table) take(id int64) (*entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	delete(t.entries, id)
	e.timer.Stop()
	return e, true
}

// Resolve completes id with a result. It returns false when id is not
// pending, e.g. the response arrived after the timeout.
func (t *Table) Resolve(id int64, result json.RawMessage) bool {
	e, ok := t.take(id)
	if !ok {
		return false
	}
	e.complete(Outcome{Result: result})
	return true
}

// Reject completes id with err. It returns false when id is not pending.
func (t *Table) Reject(id int64, err error) bool {
	e, ok := t.take(id)
	if !ok {
		return false
	}
	e.complete(Outcome{Err: err})
	return true
}

// Cancel rejects id with errors.ErrCancelled.
func (t *Table) Cancel(id int64) bool {
	return t.Reject(id, errors.Wrapf(errors.ErrCancelled, "request %d", id))
}

// Discard removes id without completing it. Used when the request never
// reached the wire and the caller already has the send error.
func (t *Table) Discard(id int64) bool {
	_, ok := t.take(id)
	return ok
}

// FailAll rejects every pending entry with err and returns how many
// were rejected.
func (t *Table) FailAll(err error) int {
	t.mu.Lock()
	drained := make([]*entry, 0, len(t.entries))
	for id, e := range t.entries {
		e.timer.Stop()
		drained = append(drained, e)
		delete(t.entries, id)
	}
	t.mu.Unlock()

	for _, e := range drained {
		e.complete(Outcome{Err: err})
	}
	return len(drained)
}

// Len returns the number of in-flight requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Has reports whether id is still awaited.
func (t *Table) Has(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}

// Oldest returns the age of the longest-waiting entry, or 0 when empty.
func (t *Table) Oldest() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	var oldest time.Time
	for _, e := range t.entries {
		if oldest.IsZero() || e.created.Before(oldest) {
			oldest = e.created
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return t.now().Sub(oldest)
}
