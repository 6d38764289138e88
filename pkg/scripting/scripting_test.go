package scripting

import (
	"testing"

	"github.com/minz/hdlsim/pkg/ir/mirtext"
	"github.com/minz/hdlsim/pkg/kernel"
)

const latchSrc = `
module probe_target {
  signal en : 1 wire init=0

  process hold latched (en) {
    assign en = (sig en)
  }
}
top probe_target
`

func newTestKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	design, interner, err := mirtext.Parse(latchSrc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	k, err := kernel.NewKernel(design, interner, kernel.DefaultConfig())
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	if err := k.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return k
}

func TestForceSetsSignalValue(t *testing.T) {
	k := newTestKernel(t)
	h, err := New(k, `sim.force("en", "1")`)
	if err != nil {
		t.Fatalf("new hook: %v", err)
	}
	defer h.Close()

	v, err := k.SignalValue("en")
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	got, ok := v.ToUint64()
	if !ok || got != 1 {
		t.Fatalf("en = %v, want 1", v)
	}
}

func TestTickHookRunsProbeAndTick(t *testing.T) {
	k := newTestKernel(t)
	h, err := New(k, `
counted = 0
sim.probe("watch_en", function(name)
  counted = counted + 1
end)
function tick()
  sim.force("en", "1")
end
`)
	if err != nil {
		t.Fatalf("new hook: %v", err)
	}
	defer h.Close()
	k.SetTickHook(h.AsTickHook())

	if err := k.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	v, err := k.SignalValue("en")
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	got, ok := v.ToUint64()
	if !ok || got != 1 {
		t.Fatalf("en after tick = %v, want 1 (tick should have forced it)", v)
	}

	counted := h.L.GetGlobal("counted")
	if counted.String() != "1" {
		t.Fatalf("probe ran %s times, want 1", counted.String())
	}
}
