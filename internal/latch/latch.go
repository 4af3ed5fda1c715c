// Package latch provides the engine's striped mutual exclusion table plus
// the phase-gate barrier used during leader/follower role transitions.
//
// Writes are serialized per document by hashing its slot into one of N
// independent stripes, rather than taking a single process-wide lock. A
// role transition additionally needs to wait out writers already in
// flight under the old phase without taking every stripe in a fixed
// order — a per-phase in-flight count, which each writer joins before
// taking its stripe, makes that wait cheap and deadlock-free.
package latch

import (
	"sync"
)

// DefaultSlots is the default size of the striped latch table.
const DefaultSlots = 50_000

// Table is a fixed-size striped lock keyed by slot. It additionally
// exposes a phase-gate barrier: BeginTransition blocks until every writer
// that acquired a stripe under the previous phase has released it, and
// writers that start after a transition begins wait for it to finish.
type Table struct {
	stripes []sync.Mutex

	// phase is bumped by BeginTransition. Writers wait while quiesced is
	// set, then read phase once and count themselves in inFlight[phase]
	// before acquiring their stripe (see Lock), so a transition also waits
	// for writers still queued on a stripe.
	mu       sync.Mutex
	cond     *sync.Cond
	phase    uint64
	inFlight map[uint64]int // writers currently holding a stripe, keyed by phase
	quiesced bool
}

// New builds a latch table with n stripes; n <= 0 uses DefaultSlots.
func New(n int) *Table {
	if n <= 0 {
		n = DefaultSlots
	}

	t := &Table{
		stripes:  make([]sync.Mutex, n),
		inFlight: make(map[uint64]int),
	}
	t.cond = sync.NewCond(&t.mu)

	return t
}

// Guard releases the stripe (and the phase's in-flight count) it was
// acquired for.
type Guard struct {
	t     *Table
	index int
	phase uint64
}

// Lock acquires the stripe for slot, waiting out any in-progress role
// transition first. The returned Guard must be released via Unlock.
func (t *Table) Lock(slot uint32) *Guard {
	t.mu.Lock()
	for t.quiesced {
		t.cond.Wait()
	}

	phase := t.phase
	t.inFlight[phase]++
	t.mu.Unlock()

	index := int(slot) % len(t.stripes)
	t.stripes[index].Lock()

	return &Guard{t: t, index: index, phase: phase}
}

// Unlock releases the stripe held by g and decrements its phase's
// in-flight counter, waking any transition waiting for it to drain.
func (g *Guard) Unlock() {
	g.t.stripes[g.index].Unlock()

	g.t.mu.Lock()
	g.t.inFlight[g.phase]--
	if g.t.inFlight[g.phase] == 0 {
		delete(g.t.inFlight, g.phase)
	}
	g.t.cond.Broadcast()
	g.t.mu.Unlock()
}

// BeginTransition quiesces new writers (they block in Lock until
// EndTransition) and waits for every writer already in flight under the
// current phase to finish, then bumps the phase. It returns once no writer
// is holding a stripe under the pre-transition phase.
func (t *Table) BeginTransition() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.quiesced = true
	oldPhase := t.phase
	t.phase++

	for t.inFlight[oldPhase] > 0 {
		t.cond.Wait()
	}
}

// EndTransition releases writers blocked in Lock since BeginTransition.
func (t *Table) EndTransition() {
	t.mu.Lock()
	t.quiesced = false
	t.mu.Unlock()
	t.cond.Broadcast()
}

// Slots returns the configured stripe count.
func (t *Table) Slots() int {
	return len(t.stripes)
}
