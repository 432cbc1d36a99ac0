// Package registry implements the Unit Table and Status Table (spec.md
// §4.3, components C3/C4): the arena of record for every registered
// unit plus a separately-lockable table of lifecycle statuses, so status
// waiters never need to hold the fat unit lock (spec.md §9 "arena +
// UnitId indices" design note).
//
// Grounded on the teacher's internal/state.State, which keeps flat,
// independently-saveable maps rather than nesting mutable state inside
// a shared object graph; generalized here from on-disk JSON persistence
// to purely in-memory tables, since spec.md §6 is explicit the manager
// persists nothing across restarts.
package registry

import (
	"fmt"
	"sync"

	"github.com/unitd/unitd/internal/unitmodel"
)

// UnitTable stores every registered unit's immutable configuration,
// keyed by id. Units are inserted once at registration and never
// mutated afterward; the table itself only protects the map.
type UnitTable struct {
	mu    sync.RWMutex
	units map[unitmodel.UnitID]*unitmodel.Unit
	byName map[string]unitmodel.UnitID
}

// NewUnitTable creates an empty Unit Table.
func NewUnitTable() *UnitTable {
	return &UnitTable{
		units:  make(map[unitmodel.UnitID]*unitmodel.Unit),
		byName: make(map[string]unitmodel.UnitID),
	}
}

// Insert registers a unit. It is an error to reuse a name or an id.
func (u *UnitTable) Insert(unit *unitmodel.Unit) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, exists := u.units[unit.ID]; exists {
		return fmt.Errorf("registry: unit id %s already registered", unit.ID)
	}
	if _, exists := u.byName[unit.Name]; exists {
		return fmt.Errorf("registry: unit name %q already registered", unit.Name)
	}
	u.units[unit.ID] = unit
	u.byName[unit.Name] = unit.ID
	return nil
}

// Get returns the unit registered under id.
func (u *UnitTable) Get(id unitmodel.UnitID) (*unitmodel.Unit, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	unit, ok := u.units[id]
	return unit, ok
}

// Lookup resolves a unit name to its id.
func (u *UnitTable) Lookup(name string) (unitmodel.UnitID, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	id, ok := u.byName[name]
	return id, ok
}

// All returns every registered unit id, sorted by ascending id.
func (u *UnitTable) All() []unitmodel.UnitID {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]unitmodel.UnitID, 0, len(u.units))
	for id := range u.units {
		out = append(out, id)
	}
	// insertion order == ascending id, since IDAllocator only increases.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
