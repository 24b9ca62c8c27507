// Package protection implements Component C: the thin layer over real
// kernel memory-protection primitives that the Fault Router and
// Replacement Policy call to change what the managed range's pages
// actually allow.
//
// It is grounded on the mmap/mprotect/munmap usage shown in the pack's
// google-gvisor and vibhansa-msft-smriti reference files, using
// golang.org/x/sys/unix rather than hand-rolling the syscall numbers.
package protection

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/kelvinreiter/uvm/internal/uvmutil"
)

// Controller owns the reserved virtual span and applies protection
// changes and page-level (un)mappings within it.
type Controller struct {
	base     uintptr
	pageSize int
	numPages int
}

// Reserve carves out a numPages*pageSize span of address space with a
// single PROT_NONE anonymous mapping, letting the kernel pick a free
// range (spec.md §9's "portable ports should probe for a free range"
// open question). Every later per-page mapping happens MAP_FIXED inside
// this already-reserved span, so it can never collide with the host
// heap or shared libraries.
func Reserve(numPages, pageSize int) (*Controller, error) {
	length := uintptr(numPages) * uintptr(pageSize)

	addr, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		0,
		length,
		unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
		^uintptr(0), // fd -1
		0,
	)
	if errno != 0 {
		return nil, fmt.Errorf("protection: reserve %d bytes: %w", length, errno)
	}

	return &Controller{base: addr, pageSize: pageSize, numPages: numPages}, nil
}

// Base returns the start of the reserved span.
func (c *Controller) Base() uintptr { return c.base }

// End returns one past the end of the reserved span.
func (c *Controller) End() uintptr { return c.base + uintptr(c.numPages)*uintptr(c.pageSize) }

// AddrOf returns addr(p) = base + p*PAGE_SIZE (spec.md §3).
func (c *Controller) AddrOf(p uvmutil.PageID) uintptr {
	return c.base + uintptr(p)*uintptr(c.pageSize)
}

// PageOf returns page(a) for a within [base, end). The caller must check
// InRange first; PageOf does not itself validate bounds.
func (c *Controller) PageOf(addr uintptr) uvmutil.PageID {
	return uvmutil.PageID((addr - c.base) / uintptr(c.pageSize))
}

// InRange reports whether addr falls in [base, end).
func (c *Controller) InRange(addr uintptr) bool {
	return addr >= c.base && addr < c.End()
}

// Bytes returns a byte-slice view over page p's live memory. It is only
// valid to dereference while p is resident; the caller (the Fault Router)
// is responsible for ensuring that.
func (c *Controller) Bytes(p uvmutil.PageID) []byte {
	addr := c.AddrOf(p)
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), c.pageSize)
}

// AllocateMapping materializes a private, anonymous, zero-filled mapping
// at exactly addr(p) with read+write protection (spec.md §4.C). It must
// land at that exact address, since it sits MAP_FIXED inside the
// already-reserved span; any other outcome is a programming error and is
// fatal.
func (c *Controller) AllocateMapping(p uvmutil.PageID) error {
	addr := c.AddrOf(p)

	got, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr,
		uintptr(c.pageSize),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_FIXED,
		^uintptr(0),
		0,
	)
	if errno != 0 {
		return fmt.Errorf("protection: allocate mapping for page %d: %w", p, errno)
	}
	if got != addr {
		return fmt.Errorf("protection: allocate mapping for page %d landed at %#x, want %#x", p, got, addr)
	}

	return nil
}

// ReleaseMapping removes the mapping for addr(p)..addr(p)+PAGE_SIZE.
func (c *Controller) ReleaseMapping(p uvmutil.PageID) error {
	addr := c.AddrOf(p)
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, addr, uintptr(c.pageSize), 0)
	if errno != 0 {
		return fmt.Errorf("protection: release mapping for page %d: %w", p, errno)
	}
	return nil
}

// Protect applies the kernel protection corresponding to perm to page p's
// single-page region. It does not touch the page table; callers combine
// this with Table.SetPermission to keep spec.md invariant 5 (kernel
// protection exactly mirrors permission(p)) — see Router.setProtection in
// internal/fault/router.go for the paired version the router and, through
// replacement.Env, the policies use.
func (c *Controller) Protect(p uvmutil.PageID, perm uvmutil.Permission) error {
	prot := mmapProt(perm)
	if err := unix.Mprotect(c.Bytes(p), prot); err != nil {
		return fmt.Errorf("protection: mprotect page %d to %s: %w", p, perm, err)
	}
	return nil
}

func mmapProt(perm uvmutil.Permission) int {
	switch perm {
	case uvmutil.PermNone:
		return unix.PROT_NONE
	case uvmutil.PermRead:
		return unix.PROT_READ
	case uvmutil.PermRDWR:
		return unix.PROT_READ | unix.PROT_WRITE
	default:
		panic(fmt.Sprintf("protection: unrecognized permission %d", perm))
	}
}

// ReleaseAll tears down the whole reserved span, including any per-page
// mappings still inside it. Called from Cleanup and from Init's error
// path; neither unmaps resident pages individually first.
func (c *Controller) ReleaseAll() error {
	length := uintptr(c.numPages) * uintptr(c.pageSize)
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, c.base, length, 0)
	if errno != 0 {
		return fmt.Errorf("protection: release reserved span: %w", errno)
	}
	return nil
}
