package registry

import (
	"sync"
	"time"

	"github.com/unitd/unitd/internal/unitmodel"
)

// Record is one unit's current lifecycle snapshot.
type Record struct {
	Status    unitmodel.Status
	Reason    unitmodel.FinalReason
	MainPID   int
	LastExit  unitmodel.ExitInfo
	Notify    string // most recent STATUS= text from sd_notify, if any
	UpdatedAt time.Time
}

// StatusTable is the Status Table (spec.md §4.4, component C4): every
// unit's current lifecycle status, broadcast to waiters on every
// change. Deliberately lockable independently of the Unit Table, so a
// client blocked in Wait never holds up unit registration or lookups
// (spec.md §9 lock-ordering note: unit_table -> status_table -> ...).
type StatusTable struct {
	mu   sync.Mutex
	cond *sync.Cond
	recs map[unitmodel.UnitID]Record
}

// NewStatusTable creates a Status Table with every id in ids set to
// NeverRan.
func NewStatusTable(ids []unitmodel.UnitID) *StatusTable {
	st := &StatusTable{recs: make(map[unitmodel.UnitID]Record, len(ids))}
	st.cond = sync.NewCond(&st.mu)
	for _, id := range ids {
		st.recs[id] = Record{Status: unitmodel.NeverRan}
	}
	return st
}

// Set replaces id's record and wakes every goroutine blocked in Wait.
func (st *StatusTable) Set(id unitmodel.UnitID, rec Record) {
	st.mu.Lock()
	st.recs[id] = rec
	st.mu.Unlock()
	st.cond.Broadcast()
}

// Update applies fn to id's current record and stores the result,
// waking waiters. fn receives the zero Record if id is unknown.
func (st *StatusTable) Update(id unitmodel.UnitID, fn func(Record) Record) {
	st.mu.Lock()
	st.recs[id] = fn(st.recs[id])
	st.mu.Unlock()
	st.cond.Broadcast()
}

// Get returns id's current record.
func (st *StatusTable) Get(id unitmodel.UnitID) (Record, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	r, ok := st.recs[id]
	return r, ok
}

// Snapshot returns every tracked record, keyed by id. Used by the
// control socket's `status`/`list` commands (spec.md §6).
func (st *StatusTable) Snapshot() map[unitmodel.UnitID]Record {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[unitmodel.UnitID]Record, len(st.recs))
	for id, r := range st.recs {
		out[id] = r
	}
	return out
}

// Wait blocks until pred(record) is true for id, or ctx-like deadline
// expires if deadline is non-zero. It returns the record observed when
// pred first held, or the last-seen record plus false if the deadline
// elapsed first. Used to implement "wait for Started" semantics after
// issuing a start (spec.md §5 synchronous start contract).
func (st *StatusTable) Wait(id unitmodel.UnitID, pred func(Record) bool, deadline time.Time) (Record, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for {
		r := st.recs[id]
		if pred(r) {
			return r, true
		}
		if !deadline.IsZero() {
			if remaining := time.Until(deadline); remaining <= 0 {
				return r, false
			}
		}
		if deadline.IsZero() {
			st.cond.Wait()
			continue
		}
		// sync.Cond has no timed wait; run a timer goroutine that
		// broadcasts once so the waiter always re-checks the deadline.
		timer := time.AfterFunc(time.Until(deadline), st.cond.Broadcast)
		st.cond.Wait()
		timer.Stop()
	}
}
