package kernel

import (
	"testing"

	"github.com/minz/hdlsim/pkg/ir/mirtext"
)

const counterSrc = `
module counter {
  signal clk : 1 wire init=0
  signal q : 8 reg init=0

  process clk_gen initial {
    forever {
      delay 5000000 {
        assign clk = (not (sig clk))
      }
    }
  }

  process inc sequential (posedge clk) {
    assign q = (+ (sig q) (lit 8 1))
  }
}
top counter
`

func newCounterKernel(t *testing.T) *Kernel {
	t.Helper()
	design, interner, err := mirtext.Parse(counterSrc)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	k, err := NewKernel(design, interner, DefaultConfig())
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	if err := k.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return k
}

func TestInitializeSettlesTimeZero(t *testing.T) {
	k := newCounterKernel(t)
	clk, err := k.SignalValue("clk")
	if err != nil {
		t.Fatalf("clk: %v", err)
	}
	if got, ok := clk.ToUint64(); !ok || got != 0 {
		t.Fatalf("clk at t=0 = %v, want 0", clk)
	}
	if !k.HasPendingEvents() {
		t.Fatalf("expected a pending delay event for clk_gen after initialize")
	}
}

func TestClockTogglesAndCounterIncrements(t *testing.T) {
	k := newCounterKernel(t)

	// Each clk_gen wake toggles clk; two wakes is one full period and one
	// posedge, which should increment q by exactly one.
	for i := 0; i < 2; i++ {
		ran, err := k.StepDelta()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if !ran {
			t.Fatalf("step %d: expected an event to run", i)
		}
	}

	q, err := k.SignalValue("q")
	if err != nil {
		t.Fatalf("q: %v", err)
	}
	got, ok := q.ToUint64()
	if !ok || got != 1 {
		t.Fatalf("q after one posedge = %v, want 1", q)
	}
}

func TestRunUntilAdvancesSeveralCycles(t *testing.T) {
	k := newCounterKernel(t)
	if err := k.RunUntil(44_000_000); err != nil {
		t.Fatalf("run until: %v", err)
	}
	q, err := k.SignalValue("q")
	if err != nil {
		t.Fatalf("q: %v", err)
	}
	got, ok := q.ToUint64()
	if !ok {
		t.Fatalf("q has unknown bits: %v", q)
	}
	// clk toggles every 5ns; a posedge lands at 5, 15, 25, 35ns within the
	// 44ns window, four in total, with the fifth due only at 45ns.
	if got != 4 {
		t.Fatalf("q after 44ns = %d, want 4", got)
	}
}

const finishSrc = `
module finisher {
  signal done : 1 wire init=0

  process p initial {
    assign done = (lit 1 1)
    finish
  }
}
top finisher
`

// TestFinishCommitsSameInstantUpdates verifies that an update scheduled
// in the same Block as a $finish statement still commits: spec.md §4.3
// requires signal changes at the same instant as $finish to remain
// observable, not be discarded because the kernel stopped scheduling
// further work.
func TestFinishCommitsSameInstantUpdates(t *testing.T) {
	design, interner, err := mirtext.Parse(finishSrc)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	k, err := NewKernel(design, interner, DefaultConfig())
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	if err := k.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if !k.IsFinished() {
		t.Fatalf("expected $finish to have run")
	}
	done, err := k.SignalValue("done")
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if got, ok := done.ToUint64(); !ok || got != 1 {
		t.Fatalf("done = %v, want 1 (the assign before $finish must still commit)", done)
	}
}

const sliceFanoutSrc = `
module slicewrite {
  signal cnt : 8 reg init=0
  signal leds : 8 wire init=0

  process bump initial {
    assign cnt = (lit 8 1)
  }

  process fanout combinational (cnt) {
    assign leds[0] = (sig cnt[0])
    assign leds[1] = (sig cnt[1])
    assign leds[2] = (sig cnt[2])
    assign leds[3] = (sig cnt[3])
    assign leds[4] = (sig cnt[4])
    assign leds[5] = (sig cnt[5])
    assign leds[6] = (sig cnt[6])
    assign leds[7] = (sig cnt[7])
  }
}
top slicewrite
`

// TestSliceWritesFromSameProcessMerge verifies that a process driving one
// bit of a signal at a time across several statements in the same delta
// (spec.md §4.5's leds[0..7] fanout) has all of its slice writes merged
// into one driver contribution instead of each one-bit write landing on
// the same driver slot and overwriting the previous slice.
func TestSliceWritesFromSameProcessMerge(t *testing.T) {
	design, interner, err := mirtext.Parse(sliceFanoutSrc)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	k, err := NewKernel(design, interner, DefaultConfig())
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	if err := k.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	leds, err := k.SignalValue("leds")
	if err != nil {
		t.Fatalf("leds: %v", err)
	}
	got, ok := leds.ToUint64()
	if !ok || got != 1 {
		t.Fatalf("leds = %v, want 1 (cnt=0x01 fanned out bit by bit)", leds)
	}
}

func TestAllSignalsReturnsACopy(t *testing.T) {
	k := newCounterKernel(t)
	sigs := k.AllSignals()
	if len(sigs) != 2 {
		t.Fatalf("signals = %d, want 2", len(sigs))
	}
	sigs[0].Name = "mutated"
	again, err := k.state.SignalByName(sigs[0].Name)
	if err == nil {
		t.Fatalf("mutating the returned slice should not affect kernel state, found %+v", again)
	}
}
