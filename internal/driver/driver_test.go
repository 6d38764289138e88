package driver

import (
	"testing"

	"github.com/minz/hdlsim/internal/simstate"
	"github.com/minz/hdlsim/pkg/fourstate"
)

func TestUndrivenSignalFloatsToZ(t *testing.T) {
	sig := &simstate.FlatSignal{Width: 4}
	v := Resolve(sig, nil)
	if !v.HasUnknown() {
		t.Fatalf("undriven signal should be Z, got %v", v)
	}
	for _, b := range v.Bits {
		if b != fourstate.Z {
			t.Fatalf("expected all-Z, got %v", v)
		}
	}
}

func TestSingleDriverWins(t *testing.T) {
	sig := &simstate.FlatSignal{Width: 4}
	v := Resolve(sig, []BitRange{
		{DriverIndex: 0, Value: fourstate.FromUint64(5, 4), Strength: fourstate.Strong},
	})
	got, _ := v.ToUint64()
	if got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
}

func TestStrongerDriverOverridesWeaker(t *testing.T) {
	sig := &simstate.FlatSignal{Width: 1}
	v := Resolve(sig, []BitRange{
		{DriverIndex: 0, Value: fourstate.FromUint64(0, 1), Strength: fourstate.Weak},
		{DriverIndex: 1, Value: fourstate.FromUint64(1, 1), Strength: fourstate.Strong},
	})
	got, _ := v.ToUint64()
	if got != 1 {
		t.Fatalf("stronger driver should win, got %d", got)
	}
}

func TestEqualStrengthDisagreementIsX(t *testing.T) {
	sig := &simstate.FlatSignal{Width: 1}
	v := Resolve(sig, []BitRange{
		{DriverIndex: 0, Value: fourstate.FromUint64(0, 1), Strength: fourstate.Strong},
		{DriverIndex: 1, Value: fourstate.FromUint64(1, 1), Strength: fourstate.Strong},
	})
	if v.Bits[0] != fourstate.X {
		t.Fatalf("conflicting equal-strength drivers should resolve to X, got %v", v)
	}
}

func TestNonWritingDriverHoldsLastValue(t *testing.T) {
	sig := &simstate.FlatSignal{Width: 1}
	Resolve(sig, []BitRange{{DriverIndex: 0, Value: fourstate.FromUint64(1, 1), Strength: fourstate.Strong}})
	// Next delta cycle, driver 0 doesn't write again; it should keep
	// holding its value rather than float.
	v := Resolve(sig, nil)
	got, _ := v.ToUint64()
	if got != 1 {
		t.Fatalf("non-writing driver should hold last value, got %v", v)
	}
}

func TestEqualStrengthAgreementIsClean(t *testing.T) {
	sig := &simstate.FlatSignal{Width: 1}
	v := Resolve(sig, []BitRange{
		{DriverIndex: 0, Value: fourstate.FromUint64(1, 1), Strength: fourstate.Strong},
		{DriverIndex: 1, Value: fourstate.FromUint64(1, 1), Strength: fourstate.Strong},
	})
	if v.Bits[0] != fourstate.One {
		t.Fatalf("agreeing equal-strength drivers should resolve cleanly, got %v", v)
	}
}
