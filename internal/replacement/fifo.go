package replacement

import "github.com/kelvinreiter/uvm/internal/uvmutil"

// fifoPolicy tracks resident pages in a fixed-capacity ring buffer, in
// the array-index style the teacher uses for its free lists rather than
// a dynamically growing slice or container/list.
type fifoPolicy struct {
	queue []uvmutil.PageID
	head  int
	count int
}

func newFIFO(maxResident int) *fifoPolicy {
	return &fifoPolicy{queue: make([]uvmutil.PageID, maxResident)}
}

// PageMapped appends p to the tail of the FIFO queue.
func (f *fifoPolicy) PageMapped(p uvmutil.PageID) {
	tail := (f.head + f.count) % len(f.queue)
	f.queue[tail] = p
	f.count++
}

// TimerTick is a no-op for FIFO (spec.md §4.F).
func (f *fifoPolicy) TimerTick() {}

// ChooseAndEvictVictim removes and returns the head: the page that has
// been resident the longest.
func (f *fifoPolicy) ChooseAndEvictVictim() (uvmutil.PageID, error) {
	if f.count == 0 {
		return 0, uvmutil.ErrEmptyResidentSet
	}
	victim := f.queue[f.head]
	f.head = (f.head + 1) % len(f.queue)
	f.count--
	return victim, nil
}

func (f *fifoPolicy) Close() {}
