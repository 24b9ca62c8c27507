// Command uvmdemo is a small illustration of the paging engine: it
// initializes a tiny managed range, touches a few pages to provoke
// faults, lets one of them get evicted, and prints the resulting
// counters. It is not a benchmark.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kelvinreiter/uvm/internal/replacement"
	"github.com/kelvinreiter/uvm/internal/vmem"
)

func main() {
	p, err := vmem.Init(vmem.Config{
		NumPages:     8,
		PageSize:     4096,
		MaxResident:  3,
		Policy:       replacement.ClockName,
		TickInterval: 10 * time.Millisecond,
		Verbose:      os.Getenv("UVM_VERBOSE") != "",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "uvmdemo: init: %v\n", err)
		os.Exit(1)
	}
	defer p.Cleanup()

	start := p.GetVMemStart()
	touch := func(page uintptr, value byte) {
		addr := start + page*4096
		if err := p.WriteByte(addr, value); err != nil {
			fmt.Fprintf(os.Stderr, "uvmdemo: write page %d: %v\n", page, err)
			os.Exit(1)
		}
	}

	// Fill the resident set, then force an eviction by touching a fourth
	// page with MaxResident at 3.
	touch(0, 1)
	touch(1, 2)
	touch(2, 3)

	// Re-touch page 0 so CLOCK aging has something to prefer keeping.
	if _, err := p.ReadByte(start); err != nil {
		fmt.Fprintf(os.Stderr, "uvmdemo: reread page 0: %v\n", err)
		os.Exit(1)
	}
	time.Sleep(20 * time.Millisecond) // let one tick run the aging pass

	touch(3, 4)

	fmt.Printf("range:      [%#x, %#x)\n", p.GetVMemStart(), p.GetVMemEnd())
	fmt.Printf("faults:     %d\n", p.GetNumFaults())
	fmt.Printf("loads:      %d\n", p.GetNumLoads())
	fmt.Printf("evictions:  %d\n", p.GetNumEvictions())
	fmt.Printf("writebacks: %d\n", p.GetNumWritebacks())
}
