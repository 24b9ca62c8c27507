// Package fault implements Component D: classification of every trapped
// access into the spec.md §4.D decision table, and the map_page/
// unmap_page state transitions that satisfy it.
//
// It is grounded on original_source/virtualmem.c's sigsegv_handler, sized
// down to Go's own fault-delivery primitive (see internal/vmem, which
// drives this router from a runtime/debug.SetPanicOnFault recovery loop
// instead of a SIGSEGV handler) and on the teacher's
// BufferPool.EvictFromLRU/GetPage flow for the evict-then-map sequencing.
package fault

import (
	"fmt"
	"os"

	"github.com/kelvinreiter/uvm/internal/backingstore"
	"github.com/kelvinreiter/uvm/internal/pagetable"
	"github.com/kelvinreiter/uvm/internal/protection"
	"github.com/kelvinreiter/uvm/internal/replacement"
	"github.com/kelvinreiter/uvm/internal/uvmutil"
)

// Abort reports a fatal diagnostic and terminates the process, mirroring
// abort() in the original implementation: none of the conditions routed
// here are recoverable (spec.md §7). Tests substitute a panicking Abort
// and recover the panic, so the one case this package cannot retry its
// way out of still gets exercised without killing the test binary — see
// TestAbortFunnelsEveryFatalCondition in router_test.go.
var Abort = func(err error) {
	fmt.Fprintf(os.Stderr, "uvm: fatal: %v\n", err)
	os.Exit(2)
}

// Router is Component D. It holds no lock of its own: internal/vmem
// serializes every call into it against the tick goroutine with a single
// coarse mutex, per spec.md §5.
type Router struct {
	table  *pagetable.Table
	store  *backingstore.Store
	ctrl   *protection.Controller
	policy replacement.Policy

	maxResident   int
	residentCount int

	numFaults     uint64
	numLoads      uint64
	numEvictions  uint64
	numWritebacks uint64

	verbose bool
}

// New constructs a Router without a policy; call SetPolicy once a policy
// has been built against this Router as its replacement.Env (the
// Router/policy pair has a construction-order cycle: the policy needs an
// Env, and the Env here is the Router itself).
func New(table *pagetable.Table, store *backingstore.Store, ctrl *protection.Controller, maxResident int, verbose bool) *Router {
	return &Router{
		table:       table,
		store:       store,
		ctrl:        ctrl,
		maxResident: maxResident,
		verbose:     verbose,
	}
}

// SetPolicy installs the replacement policy. Must be called exactly once
// before the first fault is handled.
func (r *Router) SetPolicy(p replacement.Policy) { r.policy = p }

// --- replacement.Env ---------------------------------------------------

func (r *Router) Accessed(p uvmutil.PageID) bool { return r.table.Accessed(p) }
func (r *Router) ClearAccessed(p uvmutil.PageID) { r.table.ClearAccessed(p) }
func (r *Router) Revoke(p uvmutil.PageID) error  { return r.setProtection(p, uvmutil.PermNone) }

// --- accessors -----------------------------------------------------------

func (r *Router) NumFaults() uint64     { return r.numFaults }
func (r *Router) NumLoads() uint64      { return r.numLoads }
func (r *Router) NumEvictions() uint64  { return r.numEvictions }
func (r *Router) NumWritebacks() uint64 { return r.numWritebacks }
func (r *Router) ResidentCount() int    { return r.residentCount }

// abort is the single funnel every error this package produces passes
// through: spec.md §7 states there is no recoverable error in the core,
// so nothing in this package returns an ordinary, retryable error to its
// caller. Abort does not return in production (os.Exit); the trailing
// "return err" only matters when a test has substituted a panicking
// Abort, keeping this function's error-returning signature usable at
// every call site.
func (r *Router) abort(err error) error {
	Abort(err)
	return err
}

// classifyFault derives the spec.md §4.D MAPERR/ACCERR classification
// from the page table's own resident bit rather than from an OS-supplied
// si_code (see SPEC_FULL.md §2): resident(p)==false is exactly the "no
// mapping" case, resident(p)==true is exactly the "mapping exists,
// access forbidden" case. There is no third outcome by construction, but
// the switch at the call site still carries a default case, mirroring
// spec.md §7 error kind 2 ("unknown fault classification").
func classifyFault(resident bool) uvmutil.FaultKind {
	if resident {
		return uvmutil.AccErr
	}
	return uvmutil.MapErr
}

// Handle classifies and services one trapped access at addr, per the
// spec.md §4.D decision table.
func (r *Router) Handle(addr uintptr) error {
	if !r.ctrl.InRange(addr) {
		return r.abort(fmt.Errorf("fault: %w: addr=%#x", uvmutil.ErrOutOfRange, addr))
	}

	p := r.ctrl.PageOf(addr)
	r.numFaults++

	kind := classifyFault(r.table.Resident(p))
	r.trace("fault addr=%#x page=%d kind=%s perm=%s", addr, p, kind, r.table.Permission(p))

	switch kind {
	case uvmutil.MapErr:
		return r.handleMapErr(p)
	case uvmutil.AccErr:
		return r.handleAccErr(p)
	default:
		return r.abort(uvmutil.ErrUnknownFaultKind)
	}
}

func (r *Router) handleMapErr(p uvmutil.PageID) error {
	if r.residentCount == r.maxResident {
		victim, err := r.policy.ChooseAndEvictVictim()
		if err != nil {
			return r.abort(fmt.Errorf("fault: choose victim: %w", err))
		}
		if !r.table.Resident(victim) {
			return r.abort(fmt.Errorf("fault: policy returned non-resident victim %d", victim))
		}
		if err := r.unmapPage(victim); err != nil {
			return err // unmapPage already routed this through abort
		}
	}

	return r.mapPage(p, uvmutil.PermNone)
}

func (r *Router) handleAccErr(p uvmutil.PageID) error {
	switch r.table.Permission(p) {
	case uvmutil.PermNone:
		if err := r.setProtection(p, uvmutil.PermRead); err != nil {
			return err // setProtection already routed this through abort
		}
		r.table.SetAccessed(p)
		return nil

	case uvmutil.PermRead:
		if err := r.setProtection(p, uvmutil.PermRDWR); err != nil {
			return err
		}
		r.table.SetDirty(p)
		return nil

	default: // PermRDWR: a fault can't legitimately happen here.
		return r.abort(uvmutil.ErrImpossibleFault)
	}
}

// mapPage implements spec.md §4.D's map_page. Every error path here is
// fatal (spec.md §7 kinds 3 "kernel primitive failure" and 5 "budget
// overflow"), including a short read from the backing store: that
// failure lands after AllocateMapping has already installed a live
// kernel mapping at addr(p) but before the PTE is marked resident, which
// would otherwise violate invariant 5 if execution continued. Routing it
// through abort means the process terminates before that inconsistency
// is ever observed by another call.
func (r *Router) mapPage(p uvmutil.PageID, initialPerm uvmutil.Permission) error {
	if r.table.Resident(p) {
		return r.abort(fmt.Errorf("fault: map_page on already-resident page %d: %w", p, uvmutil.ErrPageAlreadyResident))
	}
	if r.residentCount >= r.maxResident {
		return r.abort(uvmutil.ErrBudgetOverflow)
	}

	if err := r.ctrl.AllocateMapping(p); err != nil {
		return r.abort(err)
	}
	if err := r.store.ReadInto(p, r.ctrl.Bytes(p)); err != nil {
		return r.abort(err)
	}

	r.table.Clear(p)
	r.table.SetResident(p)
	if err := r.setProtection(p, initialPerm); err != nil {
		return err // setProtection already routed this through abort
	}

	r.residentCount++
	r.numLoads++
	r.policy.PageMapped(p)

	return nil
}

// unmapPage implements spec.md §4.D's unmap_page. As with mapPage, every
// error here is fatal (spec.md §7 kinds 3 and 4).
func (r *Router) unmapPage(p uvmutil.PageID) error {
	if !r.table.Resident(p) {
		return r.abort(fmt.Errorf("fault: unmap_page on non-resident page %d: %w", p, uvmutil.ErrPageNotResident))
	}
	if r.residentCount == 0 {
		return r.abort(fmt.Errorf("fault: unmap page %d with residentCount already 0", p))
	}

	if r.table.Dirty(p) {
		// The page's permission may have been demoted to NONE by
		// CLOCK/LRU aging since the dirty bit was set; up-level to
		// READ just long enough for our own write-back copy to be
		// legal (spec.md §4.D rationale).
		if err := r.setProtection(p, uvmutil.PermRead); err != nil {
			return err // setProtection already routed this through abort
		}
		if err := r.store.WriteFrom(p, r.ctrl.Bytes(p)); err != nil {
			return r.abort(err)
		}
		r.numWritebacks++
	}

	if err := r.ctrl.ReleaseMapping(p); err != nil {
		return r.abort(err)
	}
	r.table.Clear(p)
	r.residentCount--
	r.numEvictions++

	return nil
}

// setProtection is the Go analogue of set_protection in spec.md §4.C:
// the kernel-visible change and the PTE update happen together, and a
// kernel primitive failure is fatal rather than leaving the two out of
// sync (invariant 5).
func (r *Router) setProtection(p uvmutil.PageID, perm uvmutil.Permission) error {
	if err := r.ctrl.Protect(p, perm); err != nil {
		return r.abort(fmt.Errorf("fault: set_protection page %d to %s: %w", p, perm, err))
	}
	r.table.SetPermission(p, perm)
	return nil
}

func (r *Router) trace(format string, args ...any) {
	if !r.verbose {
		return
	}
	fmt.Fprintf(os.Stderr, "uvm: "+format+"\n", args...)
}
