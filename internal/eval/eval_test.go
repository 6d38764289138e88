package eval

import (
	"testing"

	"github.com/minz/hdlsim/internal/diag"
	"github.com/minz/hdlsim/internal/simstate"
	"github.com/minz/hdlsim/pkg/fourstate"
	"github.com/minz/hdlsim/pkg/ir"
)

func lit(v uint64, w int) ir.Expr { return ir.ExprLiteral{Value: fourstate.FromUint64(v, w)} }

func mustEval(t *testing.T, e ir.Expr) fourstate.LogicVec {
	t.Helper()
	v, err := Eval(e, &simstate.SimState{}, &diag.Channel{})
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	return v
}

func TestArithmeticWrapsToWidth(t *testing.T) {
	e := ir.ExprBinary{Op: ir.OpAdd, Lhs: lit(250, 8), Rhs: lit(10, 8), Width: 8}
	v := mustEval(t, e)
	got, ok := v.ToUint64()
	if !ok || got != 4 {
		t.Fatalf("250+10 mod 256 = %d, want 4", got)
	}
}

func TestDivisionByZeroIsAllX(t *testing.T) {
	diags := &diag.Channel{}
	e := ir.ExprBinary{Op: ir.OpDiv, Lhs: lit(10, 8), Rhs: lit(0, 8), Width: 8}
	v, err := Eval(e, &simstate.SimState{}, diags)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if !v.HasUnknown() {
		t.Fatalf("division by zero should produce all-X, got %v", v)
	}
	if len(diags.All()) == 0 {
		t.Fatalf("expected a diagnostic for division by zero")
	}
}

func TestComparisonWithUnknownOperandIsSingleBitX(t *testing.T) {
	e := ir.ExprBinary{Op: ir.OpEq, Lhs: ir.ExprLiteral{Value: fourstate.NewX(4)}, Rhs: lit(3, 4)}
	v := mustEval(t, e)
	if v.Width() != 1 || v.Bits[0] != fourstate.X {
		t.Fatalf("comparison with X operand = %v, want single X bit", v)
	}
}

func TestTernaryMergesDisagreementToX(t *testing.T) {
	e := ir.ExprTernary{
		Cond:      ir.ExprLiteral{Value: fourstate.NewX(1)},
		WhenTrue:  lit(0b1010, 4),
		WhenFalse: lit(0b1100, 4),
	}
	v := mustEval(t, e)
	// bit0: 0 vs 0 -> 0; bit1: 1 vs 0 -> X; bit2: 0 vs 1 -> X; bit3: 1 vs 1 -> 1
	want := []fourstate.Logic{fourstate.Zero, fourstate.X, fourstate.X, fourstate.One}
	for i, b := range want {
		if v.Bits[i] != b {
			t.Fatalf("bit %d = %v, want %v (full=%v)", i, v.Bits[i], b, v)
		}
	}
}

func TestTernaryNonzeroConditionSelectsTrueBranch(t *testing.T) {
	// A condition with a definite 1 bit anywhere selects WhenTrue, the
	// same reduce-or rule Truthy uses for if/wait — not "every bit must
	// be 1".
	e := ir.ExprTernary{
		Cond:      lit(0b01, 2),
		WhenTrue:  lit(0xA, 4),
		WhenFalse: lit(0x5, 4),
	}
	v := mustEval(t, e)
	got, ok := v.ToUint64()
	if !ok || got != 0xA {
		t.Fatalf("ternary with nonzero cond 01 = %v, want WhenTrue (0xA)", v)
	}
}

func TestReductionOperators(t *testing.T) {
	allOnes := ir.ExprUnary{Op: ir.OpReduceAnd, Operand: lit(0b1111, 4)}
	if got := mustEval(t, allOnes); got.Bits[0] != fourstate.One {
		t.Fatalf("reduce-and of 1111 = %v, want 1", got)
	}
	notAllOnes := ir.ExprUnary{Op: ir.OpReduceAnd, Operand: lit(0b1101, 4)}
	if got := mustEval(t, notAllOnes); got.Bits[0] != fourstate.Zero {
		t.Fatalf("reduce-and of 1101 = %v, want 0", got)
	}
	anyOne := ir.ExprUnary{Op: ir.OpReduceOr, Operand: lit(0b0100, 4)}
	if got := mustEval(t, anyOne); got.Bits[0] != fourstate.One {
		t.Fatalf("reduce-or of 0100 = %v, want 1", got)
	}
}

func TestOutOfRangeSliceIsX(t *testing.T) {
	e := ir.ExprSlice{Operand: lit(0b1010, 4), Hi: 7, Lo: 4}
	v := mustEval(t, e)
	if !v.HasUnknown() || v.Width() != 4 {
		t.Fatalf("out-of-range slice = %v, want 4-bit all-X", v)
	}
}

func TestConcatOrdersMSBFirst(t *testing.T) {
	e := ir.ExprConcat{Parts: []ir.Expr{lit(0b1, 1), lit(0b0, 1)}}
	v := mustEval(t, e)
	got, _ := v.ToUint64()
	if got != 0b10 {
		t.Fatalf("concat(1,0) = %b, want 10", got)
	}
}

func TestTruthyIgnoresUnknownBits(t *testing.T) {
	if Truthy(fourstate.NewX(4)) {
		t.Fatalf("all-X should not be truthy")
	}
	if !Truthy(fourstate.FromUint64(0b0100, 4)) {
		t.Fatalf("any set bit should be truthy")
	}
	if Truthy(fourstate.NewZero(4)) {
		t.Fatalf("all-zero should not be truthy")
	}
}

func TestSignalRefReadsCurrentValue(t *testing.T) {
	state := &simstate.SimState{Signals: []simstate.FlatSignal{
		{ID: 0, Width: 8, Current: fourstate.FromUint64(42, 8)},
	}}
	e := ir.ExprSignal{Ref: ir.SigID{ID: 0}}
	v, err := Eval(e, state, &diag.Channel{})
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	got, _ := v.ToUint64()
	if got != 42 {
		t.Fatalf("signal read = %d, want 42", got)
	}
}

func TestUnknownSignalIDIsError(t *testing.T) {
	e := ir.ExprSignal{Ref: ir.SigID{ID: 5}}
	_, err := Eval(e, &simstate.SimState{}, &diag.Channel{})
	if err == nil {
		t.Fatalf("expected error reading an unknown signal id")
	}
}
