package flatten

import (
	"testing"

	"github.com/minz/hdlsim/pkg/ir"
	"github.com/minz/hdlsim/pkg/ir/mirtext"
)

const counterSrc = `
module counter {
  signal clk : 1 wire init=0
  signal q : 8 reg init=x

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

func TestFlattenCounterAssignsDenseIDsAndNames(t *testing.T) {
	design, interner, err := mirtext.Parse(counterSrc)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	state, blackboxes, err := Flatten(design, interner)
	if err != nil {
		t.Fatalf("flatten error: %v", err)
	}
	if len(blackboxes) != 0 {
		t.Fatalf("expected no black boxes, got %d", len(blackboxes))
	}
	if len(state.Signals) != 2 {
		t.Fatalf("signals = %d, want 2", len(state.Signals))
	}
	for i, sig := range state.Signals {
		if int(sig.ID) != i {
			t.Fatalf("signal %d has id %d, ids should be dense", i, sig.ID)
		}
	}
	clk, err := state.SignalByName("clk")
	if err != nil {
		t.Fatalf("clk not found by name: %v", err)
	}
	if clk.Width != 1 {
		t.Fatalf("clk width = %d, want 1", clk.Width)
	}
	q, err := state.SignalByName("q")
	if err != nil {
		t.Fatalf("q not found by name: %v", err)
	}
	if !q.Current.HasUnknown() {
		t.Fatalf("q should default-initialize to X, got %v", q.Current)
	}
}

func TestFlattenBuildsSensitivityForSequentialProcess(t *testing.T) {
	design, interner, err := mirtext.Parse(counterSrc)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	state, _, err := Flatten(design, interner)
	if err != nil {
		t.Fatalf("flatten error: %v", err)
	}
	clk, err := state.SignalByName("clk")
	if err != nil {
		t.Fatalf("clk not found: %v", err)
	}
	var incIdx = -1
	for i, p := range state.Processes {
		if p.Kind == ir.Sequential {
			incIdx = i
		}
	}
	if incIdx < 0 {
		t.Fatalf("no sequential process found")
	}
	sensitive := state.Sensitivity[clk.ID]
	found := false
	for _, s := range sensitive {
		if s.ProcessIndex == incIdx && s.IsEdge && s.Edge == ir.Posedge {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected inc process sensitive to posedge clk, sensitivity=%+v", sensitive)
	}
}

func TestFlattenRejectsMissingTop(t *testing.T) {
	design := &ir.Design{Modules: map[string]*ir.Module{}}
	_, _, err := Flatten(design, nil)
	if err == nil {
		t.Fatalf("expected error for missing top")
	}
}
