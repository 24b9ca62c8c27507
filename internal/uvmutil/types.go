// Package uvmutil holds the small shared types and sentinel errors used
// across the paging engine's components, in the spirit of a project-wide
// "internal/utils" package.
package uvmutil

import "fmt"

// PageID identifies a page within the managed virtual range, in [0, NumPages).
type PageID uint32

// Permission is the access level a page currently grants.
type Permission uint8

const (
	// PermNone denies all access; touching the page faults.
	PermNone Permission = iota
	// PermRead allows reads only; a write still faults.
	PermRead
	// PermRDWR allows both reads and writes.
	PermRDWR
)

func (p Permission) String() string {
	switch p {
	case PermNone:
		return "NONE"
	case PermRead:
		return "READ"
	case PermRDWR:
		return "RDWR"
	default:
		return fmt.Sprintf("Permission(%d)", uint8(p))
	}
}

// FaultKind classifies why an access to the managed range trapped.
type FaultKind uint8

const (
	// MapErr means no mapping exists yet for the faulting page.
	MapErr FaultKind = iota
	// AccErr means a mapping exists but the current permission forbids
	// the access that was attempted.
	AccErr
)

func (k FaultKind) String() string {
	switch k {
	case MapErr:
		return "MAPERR"
	case AccErr:
		return "ACCERR"
	default:
		return fmt.Sprintf("FaultKind(%d)", uint8(k))
	}
}
