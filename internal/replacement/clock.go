package replacement

import "github.com/kelvinreiter/uvm/internal/uvmutil"

// clockPolicy is CLOCK/LRU: an intrusive doubly-linked list over a
// fixed-capacity slot array, adapted from the teacher's LRUReplacer
// (internal/storage/buffer/pool_lru.go) — same next/prev index arrays,
// head/tail pointers, and free-slot list, but keyed by PageID instead of
// frame index, and driven by the accessed-bit aging walk spec.md §4.F
// describes rather than an explicit Pin/Unpin protocol.
type clockPolicy struct {
	env Env

	pageToSlot map[uvmutil.PageID]int
	slotPage   []uvmutil.PageID
	next       []int
	prev       []int
	freeHead   int
	head       int // evict first
	tail       int // most recently (re-)enqueued
	count      int
}

func newClock(maxResident int, env Env) *clockPolicy {
	c := &clockPolicy{
		env:        env,
		pageToSlot: make(map[uvmutil.PageID]int, maxResident),
		slotPage:   make([]uvmutil.PageID, maxResident),
		next:       make([]int, maxResident),
		prev:       make([]int, maxResident),
		freeHead:   0,
		head:       -1,
		tail:       -1,
	}
	for i := range c.next {
		c.next[i] = i + 1
	}
	if len(c.next) > 0 {
		c.next[len(c.next)-1] = -1
	}
	return c
}

func (c *clockPolicy) allocSlot() int {
	slot := c.freeHead
	c.freeHead = c.next[slot]
	return slot
}

func (c *clockPolicy) freeSlot(slot int) {
	c.next[slot] = c.freeHead
	c.freeHead = slot
}

// PageMapped appends p to the tail of the tracked sequence.
func (c *clockPolicy) PageMapped(p uvmutil.PageID) {
	slot := c.allocSlot()
	c.slotPage[slot] = p
	c.pageToSlot[p] = slot
	c.linkAtTail(slot)
	c.count++
}

func (c *clockPolicy) linkAtTail(slot int) {
	c.prev[slot] = c.tail
	c.next[slot] = -1
	if c.tail != -1 {
		c.next[c.tail] = slot
	}
	c.tail = slot
	if c.head == -1 {
		c.head = slot
	}
}

func (c *clockPolicy) unlink(slot int) {
	p, n := c.prev[slot], c.next[slot]
	if p == -1 {
		c.head = n
	} else {
		c.next[p] = n
	}
	if n == -1 {
		c.tail = p
	} else {
		c.prev[n] = p
	}
	c.prev[slot], c.next[slot] = -1, -1
}

// TimerTick walks the tracked sequence exactly once, in the order it had
// at the start of the walk (spec.md §4.F: "snapshot the length before
// walking"), moving every accessed page to the tail and clearing its
// accessed bit and permission along the way. Pages with the accessed bit
// clear are left exactly where they are, so repeated ticks with no
// intervening access are idempotent (spec.md §8, "Idempotent tick").
func (c *clockPolicy) TimerTick() {
	n := c.count
	slot := c.head
	for i := 0; i < n && slot != -1; i++ {
		next := c.next[slot]
		p := c.slotPage[slot]

		if c.env.Accessed(p) {
			c.env.ClearAccessed(p)
			// The kernel-visible race documented in spec.md §9: a real
			// access landing between the check above and this revoke
			// is invisible to this tick, exactly as in the original.
			_ = c.env.Revoke(p)
			c.unlink(slot)
			c.linkAtTail(slot)
		}

		slot = next
	}
}

// ChooseAndEvictVictim removes and returns the head of the tracked
// sequence: at steady state, approximately the least-recently-accessed
// resident page.
func (c *clockPolicy) ChooseAndEvictVictim() (uvmutil.PageID, error) {
	if c.head == -1 {
		return 0, uvmutil.ErrEmptyResidentSet
	}
	slot := c.head
	victim := c.slotPage[slot]

	c.unlink(slot)
	delete(c.pageToSlot, victim)
	c.freeSlot(slot)
	c.count--

	return victim, nil
}

func (c *clockPolicy) Close() {}
