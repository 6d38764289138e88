// Package eval implements the kernel's pure expression evaluator
// (spec.md §4.2): eval(expr, state) -> LogicVec, deterministic and free of
// side effects on state.
package eval

import (
	"fmt"

	"github.com/minz/hdlsim/internal/diag"
	"github.com/minz/hdlsim/internal/simstate"
	"github.com/minz/hdlsim/pkg/fourstate"
	"github.com/minz/hdlsim/pkg/ir"
)

// Eval evaluates expr against state. Recoverable issues (division by
// zero, width problems) are reported to diags and degrade to all-X rather
// than returning an error — only malformed IR (unknown signal ids) is
// surfaced as an error, matching spec.md §7's "internal invariants" class.
func Eval(expr ir.Expr, state *simstate.SimState, diags *diag.Channel) (fourstate.LogicVec, error) {
	switch e := expr.(type) {
	case ir.ExprSignal:
		return ReadRef(e.Ref, state)

	case ir.ExprLiteral:
		return e.Value, nil

	case ir.ExprUnary:
		return evalUnary(e, state, diags)

	case ir.ExprBinary:
		return evalBinary(e, state, diags)

	case ir.ExprTernary:
		cond, err := Eval(e.Cond, state, diags)
		if err != nil {
			return fourstate.LogicVec{}, err
		}
		switch reduceToBit(cond) {
		case fourstate.One:
			return Eval(e.WhenTrue, state, diags)
		case fourstate.Zero:
			return Eval(e.WhenFalse, state, diags)
		default:
			a, err := Eval(e.WhenTrue, state, diags)
			if err != nil {
				return fourstate.LogicVec{}, err
			}
			b, err := Eval(e.WhenFalse, state, diags)
			if err != nil {
				return fourstate.LogicVec{}, err
			}
			return mergeOnDisagreement(a, b), nil
		}

	case ir.ExprConcat:
		parts := make([]fourstate.LogicVec, len(e.Parts))
		for i, p := range e.Parts {
			v, err := Eval(p, state, diags)
			if err != nil {
				return fourstate.LogicVec{}, err
			}
			parts[i] = v
		}
		return fourstate.Concat(parts...), nil

	case ir.ExprRepeat:
		v, err := Eval(e.Operand, state, diags)
		if err != nil {
			return fourstate.LogicVec{}, err
		}
		return fourstate.Repeat(v, e.N), nil

	case ir.ExprIndex:
		v, err := Eval(e.Operand, state, diags)
		if err != nil {
			return fourstate.LogicVec{}, err
		}
		return v.Index(e.Bit), nil

	case ir.ExprSlice:
		v, err := Eval(e.Operand, state, diags)
		if err != nil {
			return fourstate.LogicVec{}, err
		}
		return v.Slice(e.Hi, e.Lo), nil

	case ir.ExprFuncCall:
		return evalFuncCall(e, state, diags)

	default:
		return fourstate.LogicVec{}, fmt.Errorf("eval: unknown expression type %T", expr)
	}
}

// ReadRef reads the current value of a SignalRef, the shared primitive
// behind ExprSignal evaluation and sensitivity resolution.
func ReadRef(ref ir.SignalRef, state *simstate.SimState) (fourstate.LogicVec, error) {
	switch r := ref.(type) {
	case ir.SigID:
		sig, err := state.Signal(simstate.SimSignalId(r.ID))
		if err != nil {
			return fourstate.LogicVec{}, err
		}
		return sig.Current, nil

	case ir.SigSlice:
		sig, err := state.Signal(simstate.SimSignalId(r.ID))
		if err != nil {
			return fourstate.LogicVec{}, err
		}
		return sig.Current.Slice(r.Hi, r.Lo), nil

	case ir.SigConcat:
		parts := make([]fourstate.LogicVec, len(r.Parts))
		for i, p := range r.Parts {
			v, err := ReadRef(p, state)
			if err != nil {
				return fourstate.LogicVec{}, err
			}
			parts[i] = v
		}
		return fourstate.Concat(parts...), nil

	case ir.SigConst:
		return r.Value, nil

	default:
		return fourstate.LogicVec{}, fmt.Errorf("eval: unknown signal ref type %T", ref)
	}
}

func evalUnary(e ir.ExprUnary, state *simstate.SimState, diags *diag.Channel) (fourstate.LogicVec, error) {
	v, err := Eval(e.Operand, state, diags)
	if err != nil {
		return fourstate.LogicVec{}, err
	}
	switch e.Op {
	case ir.OpNot:
		return fourstate.Not(v), nil
	case ir.OpReduceAnd:
		return reduce(v, fourstate.And), nil
	case ir.OpReduceOr:
		return reduce(v, fourstate.Or), nil
	case ir.OpReduceXor:
		return reduce(v, fourstate.Xor), nil
	case ir.OpUnaryMinus:
		if v.HasUnknown() {
			return fourstate.NewX(v.Width()), nil
		}
		n, _ := v.ToUint64()
		mask := uint64(1)<<uint(v.Width()) - 1
		return fourstate.FromUint64((^n+1)&mask, v.Width()), nil
	default:
		return fourstate.LogicVec{}, fmt.Errorf("eval: unknown unary op %v", e.Op)
	}
}

func reduce(v fourstate.LogicVec, op func(a, b fourstate.LogicVec) fourstate.LogicVec) fourstate.LogicVec {
	if v.Width() == 0 {
		return fourstate.LogicVec{Bits: []fourstate.Logic{fourstate.Zero}}
	}
	acc := v.Index(0)
	for i := 1; i < v.Width(); i++ {
		acc = op(acc, v.Index(i))
	}
	return acc
}

func evalBinary(e ir.ExprBinary, state *simstate.SimState, diags *diag.Channel) (fourstate.LogicVec, error) {
	a, err := Eval(e.Lhs, state, diags)
	if err != nil {
		return fourstate.LogicVec{}, err
	}
	b, err := Eval(e.Rhs, state, diags)
	if err != nil {
		return fourstate.LogicVec{}, err
	}

	switch e.Op {
	case ir.OpAnd:
		return fourstate.And(a, b), nil
	case ir.OpOr:
		return fourstate.Or(a, b), nil
	case ir.OpXor:
		return fourstate.Xor(a, b), nil

	case ir.OpEq, ir.OpNe, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
		return evalComparison(e.Op, a, b), nil

	default:
		return evalArithmetic(e, a, b, diags)
	}
}

func resultWidth(e ir.ExprBinary, a, b fourstate.LogicVec) int {
	if e.Width > 0 {
		return e.Width
	}
	w := a.Width()
	if b.Width() > w {
		w = b.Width()
	}
	return w
}

func evalArithmetic(e ir.ExprBinary, a, b fourstate.LogicVec, diags *diag.Channel) (fourstate.LogicVec, error) {
	width := resultWidth(e, a, b)
	if a.HasUnknown() || b.HasUnknown() {
		return fourstate.NewX(width), nil
	}
	if e.Signed {
		if a.Width() > 0 && a.Width() < width {
			a = a.SignExtend(width)
		}
		if b.Width() > 0 && b.Width() < width {
			b = b.SignExtend(width)
		}
	}
	av, _ := a.ToUint64()
	bv, _ := b.ToUint64()

	var result uint64
	switch e.Op {
	case ir.OpAdd:
		result = av + bv
	case ir.OpSub:
		result = av - bv
	case ir.OpMul:
		result = av * bv
	case ir.OpDiv:
		if bv == 0 {
			if diags != nil {
				diags.Report(diag.Recoverable, "division by zero")
			}
			return fourstate.NewX(width), nil
		}
		result = av / bv
	case ir.OpMod:
		if bv == 0 {
			if diags != nil {
				diags.Report(diag.Recoverable, "modulo by zero")
			}
			return fourstate.NewX(width), nil
		}
		result = av % bv
	case ir.OpShl:
		result = av << uint(bv)
	case ir.OpShr:
		result = av >> uint(bv)
	default:
		return fourstate.LogicVec{}, fmt.Errorf("eval: unknown arithmetic op %v", e.Op)
	}

	if width < 64 {
		result &= (uint64(1) << uint(width)) - 1
	}
	return fourstate.FromUint64(result, width), nil
}

func evalComparison(op ir.BinaryOp, a, b fourstate.LogicVec) fourstate.LogicVec {
	if a.HasUnknown() || b.HasUnknown() {
		return fourstate.LogicVec{Bits: []fourstate.Logic{fourstate.X}}
	}
	av, _ := a.ToUint64()
	bv, _ := b.ToUint64()
	var result bool
	switch op {
	case ir.OpEq:
		result = av == bv
	case ir.OpNe:
		result = av != bv
	case ir.OpLt:
		result = av < bv
	case ir.OpLe:
		result = av <= bv
	case ir.OpGt:
		result = av > bv
	case ir.OpGe:
		result = av >= bv
	}
	if result {
		return fourstate.LogicVec{Bits: []fourstate.Logic{fourstate.One}}
	}
	return fourstate.LogicVec{Bits: []fourstate.Logic{fourstate.Zero}}
}

// Truthy reports whether v is a definite true per spec.md §4.3's branch
// rule: a condition is true if any bit is definitely 1 (reduce-or, as in
// `if (cond)` over a multi-bit expression); a condition with no definite
// 1 bit is false, including one that is entirely X/Z — ambiguous
// conditions take the else branch rather than forking simulation.
func Truthy(v fourstate.LogicVec) bool {
	for _, b := range v.Bits {
		if b == fourstate.One {
			return true
		}
	}
	return false
}

// reduceToBit collapses a condition expression's value to a single
// decision bit using the same reduce-or, nonzero-selects-true rule as
// Truthy: One if any bit is definitely 1, Zero if every bit is definitely
// 0, and X only when no bit is a definite 1 but some bit is X/Z — that
// ambiguous case is what sends the ternary to mergeOnDisagreement instead
// of picking a branch outright.
func reduceToBit(v fourstate.LogicVec) fourstate.Logic {
	hasUnknown := false
	for _, b := range v.Bits {
		if b == fourstate.One {
			return fourstate.One
		}
		if b != fourstate.Zero {
			hasUnknown = true
		}
	}
	if hasUnknown {
		return fourstate.X
	}
	return fourstate.Zero
}

// mergeOnDisagreement implements the ternary-on-X rule: agreeing bits of a
// and b are preserved, disagreeing bits become X (spec.md §4.2).
func mergeOnDisagreement(a, b fourstate.LogicVec) fourstate.LogicVec {
	w := a.Width()
	if b.Width() > w {
		w = b.Width()
	}
	a = a.ZeroExtend(w)
	b = b.ZeroExtend(w)
	bits := make([]fourstate.Logic, w)
	for i := 0; i < w; i++ {
		if a.Bits[i] == b.Bits[i] {
			bits[i] = a.Bits[i]
		} else {
			bits[i] = fourstate.X
		}
	}
	return fourstate.LogicVec{Bits: bits}
}

func evalFuncCall(e ir.ExprFuncCall, state *simstate.SimState, diags *diag.Channel) (fourstate.LogicVec, error) {
	switch e.Name {
	case "$signed":
		if len(e.Args) != 1 {
			return fourstate.LogicVec{}, fmt.Errorf("eval: $signed expects 1 argument")
		}
		return Eval(e.Args[0], state, diags)
	default:
		if diags != nil {
			diags.Report(diag.Warning, "unsupported function call %q, treated as X", e.Name)
		}
		return fourstate.NewX(1), nil
	}
}
