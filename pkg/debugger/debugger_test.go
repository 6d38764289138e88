package debugger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/minz/hdlsim/pkg/ir/mirtext"
	"github.com/minz/hdlsim/pkg/kernel"
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

func newCounterKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	design, interner, err := mirtext.Parse(counterSrc)
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

func TestParseValueBinary(t *testing.T) {
	v, err := parseValue("101")
	if err != nil {
		t.Fatalf("parseValue: %v", err)
	}
	if v.Width() != 3 {
		t.Fatalf("width = %d, want 3", v.Width())
	}
	got, ok := v.ToUint64()
	if !ok || got != 5 {
		t.Fatalf("value = %v, want 5", v)
	}
}

func TestParseValueDecimal(t *testing.T) {
	v, err := parseValue("4")
	if err != nil {
		t.Fatalf("parseValue: %v", err)
	}
	got, ok := v.ToUint64()
	if !ok || got != 4 {
		t.Fatalf("value = %v, want 4", v)
	}
}

func TestStepOnceAdvancesKernel(t *testing.T) {
	k := newCounterKernel(t)
	var out bytes.Buffer
	d := New(k, &Config{Input: strings.NewReader(""), Output: &out})

	if err := d.stepOnce(); err != nil {
		t.Fatalf("stepOnce: %v", err)
	}
	if len(d.history) != 1 {
		t.Fatalf("history len = %d, want 1", len(d.history))
	}
	if k.NowFS() == 0 {
		t.Fatalf("kernel did not advance")
	}
}

func TestCheckBreakpointsFiresOnMatch(t *testing.T) {
	k := newCounterKernel(t)
	var out bytes.Buffer
	d := New(k, &Config{Input: strings.NewReader(""), Output: &out})

	one, _ := parseValue("1")
	d.breakpoints["clk"] = one

	for i := 0; i < 10; i++ {
		if hit := d.checkBreakpoints(); hit != "" {
			return
		}
		if err := d.stepOnce(); err != nil {
			t.Fatalf("stepOnce: %v", err)
		}
	}
	if hit := d.checkBreakpoints(); hit == "" {
		t.Fatalf("expected clk==1 breakpoint to fire within 10 steps")
	}
}

func TestHandleCommandForce(t *testing.T) {
	k := newCounterKernel(t)
	var out bytes.Buffer
	d := New(k, &Config{Input: strings.NewReader(""), Output: &out})

	if err := d.handleCommand("force q 00000101"); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	v, err := k.SignalValue("q")
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	got, ok := v.ToUint64()
	if !ok || got != 5 {
		t.Fatalf("q = %v, want 5", v)
	}
}

func TestHandleCommandPrintUnknownSignal(t *testing.T) {
	k := newCounterKernel(t)
	var out bytes.Buffer
	d := New(k, &Config{Input: strings.NewReader(""), Output: &out})

	if err := d.handleCommand("print nosuch"); err != nil {
		t.Fatalf("handleCommand itself should not error: %v", err)
	}
	if !strings.Contains(out.String(), "error") {
		t.Fatalf("expected an error message in output, got %q", out.String())
	}
}
