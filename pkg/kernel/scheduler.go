package kernel

import (
	"container/heap"

	"github.com/minz/hdlsim/pkg/fourstate"
)

// timedEvent is a scheduled wake-up for a process suspended on a Delay
// statement, ordered by absolute simulation time (spec.md §3).
type timedEvent struct {
	at           fourstate.SimTime
	processIndex int
}

// eventHeap is a container/heap min-heap over timedEvent.at, grounded on
// the same heap.Interface pattern used elsewhere in the corpus for
// priority scheduling.
type eventHeap []timedEvent

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(timedEvent)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// scheduleDelay registers a wake-up for processIndex delayFS femtoseconds
// after the kernel's current time.
func (k *Kernel) scheduleDelay(processIndex int, delayFS uint64) {
	heap.Push(&k.events, timedEvent{
		at:           fourstate.SimTime{FS: k.now.FS + delayFS},
		processIndex: processIndex,
	})
}

// popEventsAt pops every event scheduled at the earliest time in the
// heap, returning their process indices and that time. Events sharing a
// timestamp all wake in the same instant, before any delta-cycle settling
// begins.
func (k *Kernel) popEventsAt() (fourstate.SimTime, []int) {
	if k.events.Len() == 0 {
		return fourstate.SimTime{}, nil
	}
	at := k.events[0].at
	var wakeups []int
	for k.events.Len() > 0 && k.events[0].at == at {
		ev := heap.Pop(&k.events).(timedEvent)
		wakeups = append(wakeups, ev.processIndex)
	}
	return at, wakeups
}
