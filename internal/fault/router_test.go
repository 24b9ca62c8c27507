package fault

import (
	"testing"

	"github.com/kelvinreiter/uvm/internal/backingstore"
	"github.com/kelvinreiter/uvm/internal/pagetable"
	"github.com/kelvinreiter/uvm/internal/protection"
	"github.com/kelvinreiter/uvm/internal/replacement"
	"github.com/kelvinreiter/uvm/internal/uvmutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPageSize = 4096

func newHarness(t *testing.T, numPages, maxResident int, policyName replacement.Name) (*Router, *protection.Controller) {
	t.Helper()

	path, cleanup := uvmutil.TempSwapPath(t)
	t.Cleanup(cleanup)

	store, err := backingstore.Open(path, numPages, testPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctrl, err := protection.Reserve(numPages, testPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { ctrl.ReleaseAll() })

	table := pagetable.New(numPages)
	router := New(table, store, ctrl, maxResident, false)

	policy, err := replacement.New(policyName, maxResident, router)
	require.NoError(t, err)
	t.Cleanup(policy.Close)
	router.SetPolicy(policy)

	return router, ctrl
}

func TestHandleColdFaultMapsPageAtNonePermission(t *testing.T) {
	r, _ := newHarness(t, 4, 4, replacement.FIFOName)

	addr := r.ctrl.AddrOf(0)
	err := r.Handle(addr)
	assert.NoError(t, err)

	assert.True(t, r.table.Resident(0))
	assert.Equal(t, uvmutil.PermNone, r.table.Permission(0))
	assert.Equal(t, uint64(1), r.NumFaults())
	assert.Equal(t, uint64(1), r.NumLoads())
}

func TestHandleReadFaultPromotesNoneToRead(t *testing.T) {
	r, _ := newHarness(t, 4, 4, replacement.FIFOName)
	addr := r.ctrl.AddrOf(0)

	require.NoError(t, r.Handle(addr)) // MAPERR: NONE
	require.NoError(t, r.Handle(addr)) // ACCERR: NONE -> READ

	assert.Equal(t, uvmutil.PermRead, r.table.Permission(0))
	assert.True(t, r.table.Accessed(0))
	assert.False(t, r.table.Dirty(0))
}

func TestHandleWriteFaultPromotesReadToRDWRAndSetsDirty(t *testing.T) {
	r, _ := newHarness(t, 4, 4, replacement.FIFOName)
	addr := r.ctrl.AddrOf(0)

	require.NoError(t, r.Handle(addr)) // MAPERR
	require.NoError(t, r.Handle(addr)) // ACCERR: NONE -> READ
	require.NoError(t, r.Handle(addr)) // ACCERR: READ -> RDWR

	assert.Equal(t, uvmutil.PermRDWR, r.table.Permission(0))
	assert.True(t, r.table.Dirty(0))
}

// TestAbortFunnelsEveryFatalCondition exercises each of spec.md §7's
// fatal error kinds this package can produce directly (out-of-range,
// unknown fault classification's sibling "impossible fault", and budget
// overflow) and confirms every one of them reaches Abort rather than
// coming back as an ordinary, retryable error.
func TestAbortFunnelsEveryFatalCondition(t *testing.T) {
	t.Run("out of range", func(t *testing.T) {
		r, ctrl := newHarness(t, 4, 4, replacement.FIFOName)
		err := withAbortCapture(t, func() { _ = r.Handle(ctrl.End()) })
		assert.ErrorIs(t, err, uvmutil.ErrOutOfRange)
		assert.Equal(t, uint64(0), r.NumFaults())
	})

	t.Run("impossible fault at RDWR", func(t *testing.T) {
		r, _ := newHarness(t, 4, 4, replacement.FIFOName)
		addr := r.ctrl.AddrOf(0)
		require.NoError(t, r.Handle(addr))
		require.NoError(t, r.Handle(addr))
		require.NoError(t, r.Handle(addr))

		err := withAbortCapture(t, func() { _ = r.Handle(addr) })
		assert.ErrorIs(t, err, uvmutil.ErrImpossibleFault)
	})

	t.Run("budget overflow", func(t *testing.T) {
		r, _ := newHarness(t, 4, 1, replacement.FIFOName)
		r.residentCount = r.maxResident // force mapPage's own guard, bypassing handleMapErr's eviction

		err := withAbortCapture(t, func() { _ = r.mapPage(0, uvmutil.PermNone) })
		assert.ErrorIs(t, err, uvmutil.ErrBudgetOverflow)
	})

	t.Run("unmapPage on a non-resident page", func(t *testing.T) {
		r, _ := newHarness(t, 4, 1, replacement.FIFOName)

		err := withAbortCapture(t, func() { _ = r.unmapPage(0) })
		assert.ErrorIs(t, err, uvmutil.ErrPageNotResident)
	})
}

func TestHandleMapErrEvictsWhenAtCapacity(t *testing.T) {
	// capacity-of-one scenario (spec.md §8): faulting page 1 while page 0
	// is the sole resident page must evict page 0.
	r, _ := newHarness(t, 4, 1, replacement.FIFOName)

	require.NoError(t, r.Handle(r.ctrl.AddrOf(0)))
	assert.True(t, r.table.Resident(0))

	require.NoError(t, r.Handle(r.ctrl.AddrOf(1)))
	assert.False(t, r.table.Resident(0))
	assert.True(t, r.table.Resident(1))
	assert.Equal(t, 1, r.ResidentCount())
	assert.Equal(t, uint64(1), r.NumEvictions())
}

func TestHandleEvictionWritesBackDirtyPage(t *testing.T) {
	r, _ := newHarness(t, 4, 1, replacement.FIFOName)

	addr0 := r.ctrl.AddrOf(0)
	require.NoError(t, r.Handle(addr0)) // MAPERR
	require.NoError(t, r.Handle(addr0)) // NONE -> READ
	require.NoError(t, r.Handle(addr0)) // READ -> RDWR, dirty

	r.ctrl.Bytes(0)[0] = 0x42

	require.NoError(t, r.Handle(r.ctrl.AddrOf(1))) // evicts page 0

	assert.Equal(t, uint64(1), r.NumWritebacks())

	// Fault page 0 back in and confirm the write survived the round trip.
	// The reload maps it at NONE, so raise it to READ before reading.
	require.NoError(t, r.Handle(addr0)) // MAPERR
	require.NoError(t, r.Handle(addr0)) // NONE -> READ
	assert.Equal(t, byte(0x42), r.ctrl.Bytes(0)[0])
}

func TestHandleFIFOEvictionOrderMatchesInsertion(t *testing.T) {
	r, _ := newHarness(t, 4, 3, replacement.FIFOName)

	require.NoError(t, r.Handle(r.ctrl.AddrOf(0)))
	require.NoError(t, r.Handle(r.ctrl.AddrOf(1)))
	require.NoError(t, r.Handle(r.ctrl.AddrOf(2)))

	// re-touch page 0 repeatedly; FIFO must not care.
	require.NoError(t, r.Handle(r.ctrl.AddrOf(0)))
	require.NoError(t, r.Handle(r.ctrl.AddrOf(0)))

	require.NoError(t, r.Handle(r.ctrl.AddrOf(3)))

	assert.False(t, r.table.Resident(0), "oldest page by insertion must be evicted first")
	assert.True(t, r.table.Resident(1))
	assert.True(t, r.table.Resident(2))
	assert.True(t, r.table.Resident(3))
}

func TestHandleClockPrefersUnaccessedVictim(t *testing.T) {
	r, _ := newHarness(t, 4, 3, replacement.ClockName)

	require.NoError(t, r.Handle(r.ctrl.AddrOf(0)))
	require.NoError(t, r.Handle(r.ctrl.AddrOf(1)))
	require.NoError(t, r.Handle(r.ctrl.AddrOf(2)))

	// Re-read page 0 to set its accessed bit, then age.
	require.NoError(t, r.Handle(r.ctrl.AddrOf(0)))
	r.policy.TimerTick()

	require.NoError(t, r.Handle(r.ctrl.AddrOf(3))) // triggers eviction

	assert.True(t, r.table.Resident(0), "recently accessed page should survive one aging pass")
	assert.False(t, r.table.Resident(1), "unaccessed page should be evicted")
}
