package timetable

import "sync/atomic"

// Holder publishes the process-wide current snapshot. The pointer is
// swapped atomically and wholesale: readers either see the previous
// complete snapshot or the next one, never anything in between, and reads
// take no locks.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder creates an empty holder. Current returns nil until the first
// Publish, which the bootstrap coordinator performs before the process
// starts serving.
func NewHolder() *Holder {
	return &Holder{}
}

// Current returns the latest published snapshot, or nil if none yet.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Publish atomically replaces the current snapshot. The superseded
// snapshot is simply dropped; in-flight readers holding it finish
// undisturbed and it is reclaimed once the last of them lets go.
func (h *Holder) Publish(s *Snapshot) {
	h.current.Store(s)
}
