// Package replacement implements Component F: the pluggable replacement
// policy interface plus the FIFO and CLOCK/LRU reference policies.
//
// The interface shape is grounded in the teacher's buffer.Replacer
// interface (internal/storage/buffer/replacer.go), and the CLOCK
// aging walk additionally borrows the victim-selection split — a
// dedicated type whose only job is to pick a victim out of shared
// tracking state — from sarchlab/akita's
// mem/cache/internal/tagging.VictimFinder.
package replacement

import "github.com/kelvinreiter/uvm/internal/uvmutil"

// Env is the small capability object the fault router hands to a policy
// at construction time so the policy can age pages without reaching for
// process-wide globals (spec.md §9's "pass those as a small environment
// object rather than wiring them via process-wide globals").
type Env interface {
	// Accessed reports the PTE accessed bit for p.
	Accessed(p uvmutil.PageID) bool
	// ClearAccessed clears the PTE accessed bit for p.
	ClearAccessed(p uvmutil.PageID)
	// Revoke sets p's kernel-visible and PTE permission to NONE, the
	// operation CLOCK/LRU aging uses to make a future access observable
	// again (spec.md §4.F).
	Revoke(p uvmutil.PageID) error
}

// Policy is the capability interface consumed by the Fault Router and
// the Tick Source (spec.md §4.F). A concrete policy's internal tracking
// must always equal exactly the resident set (invariant 6).
type Policy interface {
	// PageMapped records that p just became resident.
	PageMapped(p uvmutil.PageID)
	// TimerTick runs one aging pass. A no-op for FIFO.
	TimerTick()
	// ChooseAndEvictVictim selects one resident page, removes it from
	// the policy's internal tracking, and returns its id. Only valid
	// when the resident set is non-empty.
	ChooseAndEvictVictim() (uvmutil.PageID, error)
	// Close releases policy state. Safe to call once.
	Close()
}

// Name identifies a registered policy implementation.
type Name string

const (
	FIFOName  Name = "fifo"
	ClockName Name = "clock"
)

// New constructs the named policy, giving it capacity for up to
// maxResident tracked pages. This is policy_init from spec.md §4.F: a
// failure to recognize the name is the one way policy_init can fail
// (spec.md §7.6).
func New(name Name, maxResident int, env Env) (Policy, error) {
	switch name {
	case FIFOName:
		return newFIFO(maxResident), nil
	case ClockName:
		return newClock(maxResident, env), nil
	default:
		return nil, uvmutil.ErrUnknownPolicy
	}
}
