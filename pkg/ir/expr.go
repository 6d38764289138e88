package ir

import "github.com/minz/hdlsim/pkg/fourstate"

// SignalRef identifies what a statement reads from or writes to.
type SignalRef interface{ isSignalRef() }

// SigID is a reference to a whole flat (or pre-flatten declared) signal.
type SigID struct{ ID uint32 }

// SigSlice references bits [Hi:Lo] of a signal.
type SigSlice struct {
	ID     uint32
	Hi, Lo int
}

// SigConcat references the concatenation of several refs, MSB-first.
type SigConcat struct{ Parts []SignalRef }

// SigConst is a literal used where a SignalRef is syntactically expected
// (e.g. as an unassignable concat member).
type SigConst struct{ Value fourstate.LogicVec }

func (SigID) isSignalRef()     {}
func (SigSlice) isSignalRef()  {}
func (SigConcat) isSignalRef() {}
func (SigConst) isSignalRef()  {}

// UnaryOp enumerates the evaluator's unary operators.
type UnaryOp uint8

const (
	OpNot UnaryOp = iota // bitwise ~
	OpReduceAnd
	OpReduceOr
	OpReduceXor
	OpUnaryMinus
)

// BinaryOp enumerates the evaluator's binary operators.
type BinaryOp uint8

const (
	OpAnd BinaryOp = iota
	OpOr
	OpXor
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// Expr is the evaluator's expression sum type.
type Expr interface{ isExpr() }

// ExprSignal reads the current value of a SignalRef.
type ExprSignal struct{ Ref SignalRef }

// ExprLiteral is a fixed-width literal. Its width is never inferred from
// magnitude — the front end has already fixed it (spec.md §4.2).
type ExprLiteral struct{ Value fourstate.LogicVec }

// ExprUnary applies a unary operator.
type ExprUnary struct {
	Op      UnaryOp
	Operand Expr
}

// ExprBinary applies a binary operator. Width and Signed describe the
// result context used for width-mismatch extension.
type ExprBinary struct {
	Op       BinaryOp
	Lhs, Rhs Expr
	Width    int
	Signed   bool
}

// ExprTernary is `cond ? whenTrue : whenFalse`.
type ExprTernary struct {
	Cond, WhenTrue, WhenFalse Expr
}

// ExprConcat concatenates operands MSB-first.
type ExprConcat struct{ Parts []Expr }

// ExprRepeat is `{n{operand}}`.
type ExprRepeat struct {
	N       int
	Operand Expr
}

// ExprIndex reads a single bit.
type ExprIndex struct {
	Operand Expr
	Bit     int
}

// ExprSlice reads bits [Hi:Lo].
type ExprSlice struct {
	Operand Expr
	Hi, Lo  int
}

// ExprFuncCall models a built-in function call. The evaluator recognizes
// only `$signed`; any other name evaluates to a 1-bit X with a warning,
// so front ends may lower others away.
type ExprFuncCall struct {
	Name string
	Args []Expr
}

func (ExprSignal) isExpr()   {}
func (ExprLiteral) isExpr()  {}
func (ExprUnary) isExpr()    {}
func (ExprBinary) isExpr()   {}
func (ExprTernary) isExpr()  {}
func (ExprConcat) isExpr()   {}
func (ExprRepeat) isExpr()   {}
func (ExprIndex) isExpr()    {}
func (ExprSlice) isExpr()    {}
func (ExprFuncCall) isExpr() {}
