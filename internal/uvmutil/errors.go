package uvmutil

import "errors"

// Sentinel errors for the paging engine. Per spec.md §7, every one of
// these represents a fatal condition in the running system; callers
// close to the fault path convert them into an abort rather than trying
// to recover.
var (
	ErrInvalidMaxResident  = errors.New("max_resident must be in [1, num_pages]")
	ErrOutOfRange          = errors.New("address outside the managed virtual range")
	ErrUnknownFaultKind    = errors.New("unknown fault classification")
	ErrImpossibleFault     = errors.New("access fault on a page already at RDWR permission")
	ErrBudgetOverflow      = errors.New("map_page called while resident set is at max_resident")
	ErrPageNotResident     = errors.New("page is not resident")
	ErrPageAlreadyResident = errors.New("page is already resident")
	ErrShortIO             = errors.New("backing-store transfer was shorter than one page")
	ErrPolicyInit          = errors.New("replacement policy failed to initialize")
	ErrEmptyResidentSet    = errors.New("choose_and_evict_victim_page called with no resident pages")
	ErrUnknownPolicy       = errors.New("unknown replacement policy name")
	ErrAlreadyInitialized  = errors.New("pager already initialized")
	ErrNotInitialized      = errors.New("pager not initialized")
)
