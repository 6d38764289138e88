package mirtext

import (
	"testing"

	"github.com/minz/hdlsim/pkg/ir"
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

func TestParseCounter(t *testing.T) {
	design, _, err := Parse(counterSrc)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if design.Top != "counter" {
		t.Fatalf("top = %q, want counter", design.Top)
	}
	mod, ok := design.Modules["counter"]
	if !ok {
		t.Fatalf("missing module counter")
	}
	if len(mod.Signals) != 2 {
		t.Fatalf("signals = %d, want 2", len(mod.Signals))
	}
	if len(mod.Processes) != 2 {
		t.Fatalf("processes = %d, want 2", len(mod.Processes))
	}
	clkGen := mod.Processes[0]
	if clkGen.Kind != ir.InitialProcess {
		t.Fatalf("clk_gen kind = %v, want InitialProcess", clkGen.Kind)
	}
	inc := mod.Processes[1]
	if inc.Kind != ir.Sequential {
		t.Fatalf("inc kind = %v, want Sequential", inc.Kind)
	}
	if inc.Sensitivity.Kind != ir.SensitivityEdgeList || len(inc.Sensitivity.Edges) != 1 {
		t.Fatalf("inc sensitivity = %+v", inc.Sensitivity)
	}
	if inc.Sensitivity.Edges[0].Edge != ir.Posedge {
		t.Fatalf("expected posedge sensitivity")
	}
}

func TestParseInternsSignalNames(t *testing.T) {
	design, interner, err := Parse(counterSrc)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	mod := design.Modules["counter"]
	got := map[string]bool{}
	for _, sig := range mod.Signals {
		got[interner.Resolve(sig.Name)] = true
	}
	if !got["clk"] || !got["q"] {
		t.Fatalf("resolved names = %v, want clk and q", got)
	}
}

func TestParseMissingTopFails(t *testing.T) {
	_, _, err := Parse(`module m { signal a : 1 wire }`)
	if err == nil {
		t.Fatalf("expected error for missing top")
	}
}
