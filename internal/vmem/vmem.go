// Package vmem implements Component G, the Pager Façade: the only
// package a host program imports to drive the paging engine. It wires
// together the Page Table (internal/pagetable), Backing Store
// (internal/backingstore), Protection Controller (internal/protection),
// Fault Router (internal/fault), Tick Source (internal/ticker) and
// Replacement Policy (internal/replacement) behind the five operations
// spec.md §6 names: vmem_init, vmem_cleanup, and the read-only
// accessors.
//
// Grounded on the teacher's top-level BufferPool as "the one type a
// caller constructs," generalized from a single pinning/eviction cache
// to a page-fault-driven one.
package vmem

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"
	"unsafe"

	"github.com/kelvinreiter/uvm/internal/backingstore"
	"github.com/kelvinreiter/uvm/internal/fault"
	"github.com/kelvinreiter/uvm/internal/pagetable"
	"github.com/kelvinreiter/uvm/internal/protection"
	"github.com/kelvinreiter/uvm/internal/replacement"
	"github.com/kelvinreiter/uvm/internal/ticker"
	"github.com/kelvinreiter/uvm/internal/uvmutil"
)

// Config carries the one-shot parameters vmem_init takes, beyond
// max_resident, that a real OS port would hardcode as compile-time
// constants (spec.md §3's PAGE_SIZE/NUM_PAGES).
type Config struct {
	NumPages    int
	PageSize    int
	MaxResident int
	Policy      replacement.Name

	// TickInterval overrides ticker.DefaultInterval; zero keeps the default.
	TickInterval time.Duration

	// SwapPath names the backing-store file. Empty picks a private
	// temp-directory path, as spec.md §3 describes.
	SwapPath string

	// Verbose turns on the fault router's per-fault trace line, gated the
	// same way the original gates its own diagnostics (SPEC_FULL.md §4).
	Verbose bool
}

// Pager is the handle returned by Init. The zero value is not usable;
// build one with Init.
type Pager struct {
	mu sync.Mutex

	table  *pagetable.Table
	store  *backingstore.Store
	ctrl   *protection.Controller
	policy replacement.Policy
	router *fault.Router
	tick   *ticker.Source

	swapPath string
}

// errRetry signals that tryOnce serviced a fault and the caller's access
// should be attempted again.
var errRetry = errors.New("vmem: retry access")

// Init performs vmem_init: reserves the logical range, zeroes the page
// table, constructs the backing store, installs the fault router and
// tick source, and selects a replacement policy. It returns the Pager
// handle; GetVMemStart on it gives the base address of the managed range.
func Init(cfg Config) (*Pager, error) {
	if cfg.PageSize <= 0 || cfg.NumPages <= 0 {
		return nil, fmt.Errorf("vmem: NumPages and PageSize must be positive")
	}
	if cfg.MaxResident <= 0 || cfg.MaxResident > cfg.NumPages {
		return nil, uvmutil.ErrInvalidMaxResident
	}

	swapPath := cfg.SwapPath
	var swapCleanup func()
	if swapPath == "" {
		swapPath, swapCleanup = tempSwapPath()
	}

	store, err := backingstore.Open(swapPath, cfg.NumPages, cfg.PageSize)
	if err != nil {
		if swapCleanup != nil {
			swapCleanup()
		}
		return nil, err
	}

	ctrl, err := protection.Reserve(cfg.NumPages, cfg.PageSize)
	if err != nil {
		store.Close()
		return nil, err
	}

	table := pagetable.New(cfg.NumPages)
	router := fault.New(table, store, ctrl, cfg.MaxResident, cfg.Verbose)

	policy, err := replacement.New(cfg.Policy, cfg.MaxResident, router)
	if err != nil {
		ctrl.ReleaseAll()
		store.Close()
		return nil, err
	}
	router.SetPolicy(policy)

	p := &Pager{
		table:    table,
		store:    store,
		ctrl:     ctrl,
		policy:   policy,
		router:   router,
		swapPath: swapPath,
	}

	p.tick = ticker.Start(&p.mu, cfg.TickInterval, policy.TimerTick)

	debug.SetPanicOnFault(true)

	return p, nil
}

// Cleanup performs vmem_cleanup: stops the tick source and releases
// policy state. The backing-store file was already unlinked at Open, so
// the kernel reclaims it on process exit; this still closes our
// descriptor and tears down the reserved span so repeated Init/Cleanup
// cycles in the same process (as the test suite does) don't leak
// address space.
func (p *Pager) Cleanup() error {
	p.tick.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.policy.Close()

	if err := p.ctrl.ReleaseAll(); err != nil {
		return err
	}
	return p.store.Close()
}

// GetVMemStart returns the inclusive start of the managed range.
func (p *Pager) GetVMemStart() uintptr { return p.ctrl.Base() }

// GetVMemEnd returns the exclusive end of the managed range.
func (p *Pager) GetVMemEnd() uintptr { return p.ctrl.End() }

// GetNumFaults returns the monotone count of in-range faults handled.
func (p *Pager) GetNumFaults() uint64 { return p.router.NumFaults() }

// GetNumLoads returns the monotone count of map_page invocations.
func (p *Pager) GetNumLoads() uint64 { return p.router.NumLoads() }

// GetNumEvictions returns the monotone count of unmap_page invocations.
func (p *Pager) GetNumEvictions() uint64 { return p.router.NumEvictions() }

// GetNumWritebacks returns the monotone count of dirty pages flushed to
// the backing store during eviction.
func (p *Pager) GetNumWritebacks() uint64 { return p.router.NumWritebacks() }

// Do runs fn, trapping and servicing any page fault fn's memory access
// triggers against the managed range, retrying fn from the top until it
// completes without faulting. This is the Go-native substitute for the
// original's signal-handler-then-resume model: Go cannot resume
// execution at the faulting instruction, so instead the whole access is
// replayed once the fault has been serviced (spec.md §5's fault/tick
// masking still holds for each individual attempt).
//
// fn must be idempotent up to the point of the faulting access — in
// practice this means fn should read or write exactly one managed
// address per call, which is how ReadByte/WriteByte below use it.
func (p *Pager) Do(fn func() error) error {
	for {
		err := p.tryOnce(fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, errRetry) {
			continue
		}
		return err
	}
}

// tryOnce hands a trapped fault to the Fault Router. spec.md §7 leaves no
// recoverable error in the core: fault.Router.Handle calls fault.Abort on
// every error it can produce, which terminates the process before
// returning, so the herr != nil branch below is a safety net rather than
// a path this module treats as ordinary control flow — it only fires if
// something has substituted a fault.Abort that returns instead of
// exiting or panicking.
func (p *Pager) tryOnce(fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		sig, ok := r.(interface{ Addr() uintptr })
		if !ok {
			panic(r)
		}

		p.mu.Lock()
		herr := p.router.Handle(sig.Addr())
		p.mu.Unlock()

		if herr != nil {
			err = herr
			return
		}
		err = errRetry
	}()

	return fn()
}

// ReadByte safely reads the byte at addr, servicing any fault the access
// triggers. addr must lie in [GetVMemStart, GetVMemEnd).
func (p *Pager) ReadByte(addr uintptr) (byte, error) {
	var out byte
	err := p.Do(func() error {
		out = *(*byte)(unsafePointer(addr))
		return nil
	})
	return out, err
}

// WriteByte safely writes v to the byte at addr, servicing any fault the
// access triggers. addr must lie in [GetVMemStart, GetVMemEnd).
func (p *Pager) WriteByte(addr uintptr, v byte) error {
	return p.Do(func() error {
		*(*byte)(unsafePointer(addr)) = v
		return nil
	})
}

// unsafePointer converts a managed-range address into an unsafe.Pointer.
// Isolated in its own function so the one place this module breaks
// Go's normal safety rules is easy to find and audit.
func unsafePointer(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr) //nolint:govet // intentional: addr is a live mapping inside our reserved span
}

func tempSwapPath() (string, func()) {
	dir := os.TempDir()
	path := filepath.Join(dir, fmt.Sprintf("uvm-swap-%d-%d.dat", os.Getpid(), rand.Intn(1_000_000)))
	return path, func() { os.Remove(path) }
}
