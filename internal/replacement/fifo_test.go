package replacement

import (
	"testing"

	"github.com/kelvinreiter/uvm/internal/uvmutil"
	"github.com/stretchr/testify/assert"
)

func TestFIFOEvictsOldestFirst(t *testing.T) {
	p, err := New(FIFOName, 3, nil)
	assert.NoError(t, err)
	defer p.Close()

	// scenario 4 in spec.md §8: touch 0,1,2,0,3 with MAX_RESIDENT=3.
	// 0,1,2 map; the re-touch of 0 maps nothing, so the fifth touch
	// (page 3) evicts page 0, the oldest by insertion.
	p.PageMapped(0)
	p.PageMapped(1)
	p.PageMapped(2)

	victim, err := p.ChooseAndEvictVictim()
	assert.NoError(t, err)
	assert.Equal(t, uvmutil.PageID(0), victim)
}

func TestFIFOOrderIndependentOfRecency(t *testing.T) {
	p, err := New(FIFOName, 3, nil)
	assert.NoError(t, err)
	defer p.Close()

	p.PageMapped(0)
	p.PageMapped(1)
	p.PageMapped(2)
	// Evict the actual victim (0), simulating an eviction, then map a
	// fresh page (3). Insertion order for the remaining
	// tracked set is now 1, 2, 3 — evicting again must return 1.
	victim, err := p.ChooseAndEvictVictim()
	assert.NoError(t, err)
	assert.Equal(t, uvmutil.PageID(0), victim)

	p.PageMapped(3)

	victim, err = p.ChooseAndEvictVictim()
	assert.NoError(t, err)
	assert.Equal(t, uvmutil.PageID(1), victim)
}

func TestFIFOOnEmptyIsError(t *testing.T) {
	p, err := New(FIFOName, 2, nil)
	assert.NoError(t, err)
	defer p.Close()

	_, err = p.ChooseAndEvictVictim()
	assert.ErrorIs(t, err, uvmutil.ErrEmptyResidentSet)
}

func TestFIFOTickIsNoOp(t *testing.T) {
	p, err := New(FIFOName, 2, nil)
	assert.NoError(t, err)
	defer p.Close()

	p.PageMapped(5)
	p.TimerTick()

	victim, err := p.ChooseAndEvictVictim()
	assert.NoError(t, err)
	assert.Equal(t, uvmutil.PageID(5), victim)
}
