// Package pagetable implements Component A of the paging engine: a dense
// array of page-table entries, one per managed page, plus the bit-packed
// word operations spec.md §3/§4.A describe.
//
// The bit layout mirrors the teacher's PageHeader.Flags field (a single
// packed word with Set*Flag/Clear*Flag/Is* accessors) but the fields
// themselves — permission/resident/accessed/dirty — come from spec.md §3.
package pagetable

import "github.com/kelvinreiter/uvm/internal/uvmutil"

// entry is the bit-packed PTE word. Only the low 5 bits are used:
//
//	bit 0-1: permission (uvmutil.Permission)
//	bit 2:   resident
//	bit 3:   accessed
//	bit 4:   dirty
type entry uint8

const (
	permMask     entry = 0x3
	residentBit  entry = 1 << 2
	accessedBit  entry = 1 << 3
	dirtyBit     entry = 1 << 4
)

func (e entry) permission() uvmutil.Permission { return uvmutil.Permission(e & permMask) }
func (e entry) resident() bool                 { return e&residentBit != 0 }
func (e entry) accessed() bool                 { return e&accessedBit != 0 }
func (e entry) dirty() bool                    { return e&dirtyBit != 0 }

// Table is the dense per-page metadata array (Component A).
type Table struct {
	entries []entry
}

// New builds a zeroed page table for numPages pages. A zeroed entry
// satisfies invariant 1 of spec.md §3 by construction: NONE permission,
// not resident, not accessed, not dirty.
func New(numPages int) *Table {
	return &Table{entries: make([]entry, numPages)}
}

// NumPages returns the table's page count.
func (t *Table) NumPages() int { return len(t.entries) }

// Permission returns the current permission field for p.
func (t *Table) Permission(p uvmutil.PageID) uvmutil.Permission {
	return t.entries[p].permission()
}

// Resident reports whether p currently has backing memory mapped.
func (t *Table) Resident(p uvmutil.PageID) bool {
	return t.entries[p].resident()
}

// Accessed reports whether p has been read since its last aging clear.
func (t *Table) Accessed(p uvmutil.PageID) bool {
	return t.entries[p].accessed()
}

// Dirty reports whether p has been written since it was last loaded or
// since its last write-back.
func (t *Table) Dirty(p uvmutil.PageID) bool {
	return t.entries[p].dirty()
}

// SetPermission overwrites the permission field, leaving the other bits
// untouched. Callers are expected to route permission changes through the
// Fault Router's setProtection, which calls this only after the
// Protection Controller's kernel-visible change has already succeeded
// (spec.md §4.C).
func (t *Table) SetPermission(p uvmutil.PageID, perm uvmutil.Permission) {
	t.entries[p] = (t.entries[p] &^ permMask) | entry(perm)
}

// SetResident marks p resident and clears accessed/dirty, matching the
// state map_page transitions into just before the first permission is
// applied (spec.md §4.D step 4).
func (t *Table) SetResident(p uvmutil.PageID) {
	t.entries[p] = residentBit
}

// SetAccessed sets the accessed bit. Only meaningful while resident.
func (t *Table) SetAccessed(p uvmutil.PageID) {
	t.entries[p] |= accessedBit
}

// ClearAccessed clears the accessed bit without touching dirty or
// residency, used by CLOCK/LRU aging (spec.md §4.F).
func (t *Table) ClearAccessed(p uvmutil.PageID) {
	t.entries[p] &^= accessedBit
}

// SetDirty sets the dirty bit. Only meaningful while resident with RDWR
// permission (invariant 2).
func (t *Table) SetDirty(p uvmutil.PageID) {
	t.entries[p] |= dirtyBit
}

// Clear atomically zeroes p's whole entry, the only way a PTE returns to
// its post-init state (spec.md §4.A).
func (t *Table) Clear(p uvmutil.PageID) {
	t.entries[p] = 0
}
