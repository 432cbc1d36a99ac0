// Package unitmodel defines the data model shared by every component of the
// supervision core: unit identifiers, unit configuration and runtime state,
// and the lifecycle status enum.
package unitmodel

import "fmt"

// UnitID is a stable, opaque identifier assigned to a unit at registration.
// It is monotonically increasing within a single manager run and is never
// reused; it is the only thing the core's internal tables key on, so that
// units can be passed around by value instead of through shared pointers.
type UnitID uint64

// String implements fmt.Stringer for log messages and table keys.
func (id UnitID) String() string {
	return fmt.Sprintf("unit#%d", uint64(id))
}

// IDAllocator hands out increasing UnitIDs. The zero value is ready to use
// and starts allocating at 1, reserving 0 as "no unit".
type IDAllocator struct {
	next uint64
}

// Next returns the next unused UnitID.
func (a *IDAllocator) Next() UnitID {
	a.next++
	return UnitID(a.next)
}
