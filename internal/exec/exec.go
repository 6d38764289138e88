// Package exec implements the kernel's statement executor: suspend/resume
// continuations over the IR's Statement tree, with no host coroutines or
// goroutines backing a process (spec.md §4.3). Every Exec call either runs
// to completion, halts the simulation ($finish), or returns a Continuation
// the scheduler resumes later at a computed wake time or signal change.
package exec

import (
	"fmt"

	"github.com/minz/hdlsim/internal/diag"
	"github.com/minz/hdlsim/internal/eval"
	"github.com/minz/hdlsim/internal/simstate"
	"github.com/minz/hdlsim/pkg/fourstate"
	"github.com/minz/hdlsim/pkg/ir"
)

// Kind is the executor's outcome sum type.
type Kind int

const (
	// Continue means the statement ran to completion without suspending.
	Continue Kind = iota
	// Finished means a $finish statement ran; the whole simulation ends.
	Finished
	// Suspended means the process must stop here and resume later, either
	// at a wake time (Delay) or when WaitCond becomes true (Wait).
	Suspended
)

// Result is what Exec returns for one statement.
type Result struct {
	Kind Kind

	// Continuation is the statement to run when a Suspended process
	// resumes. Always non-nil when Kind == Suspended.
	Continuation ir.Statement

	// DelayFS is set when the suspension is a timed Delay: the number of
	// femtoseconds (relative to the current instant) after which the
	// scheduler should wake the process unconditionally.
	DelayFS uint64
	IsDelay bool

	// WaitCond is set when the suspension is a Wait: the scheduler
	// re-evaluates Continuation whenever a signal WaitCond reads changes.
	WaitCond ir.Expr
}

// Display is one $display-shaped line produced during execution.
type Display struct {
	ProcessIndex int
	Text         string
}

// AssertionFailure records a failed assert/assume/error statement.
type AssertionFailure struct {
	ProcessIndex int
	Kind         ir.AssertionKind
	Message      string
}

// Frame accumulates the side effects of one Exec call (or chain of calls)
// before the scheduler commits them — mirrors the teacher's pattern of
// gathering output on a call frame instead of writing through globals.
type Frame struct {
	ProcessIndex int
	Strength     fourstate.DriveStrength

	Pending    []simstate.PendingUpdate
	Displays   []Display
	Assertions []AssertionFailure

	maxIterations int
}

// NewFrame builds a Frame for executing process processIndex. strength is
// the drive strength StmtAssign writes should carry: Strong for
// procedural (reg/latch) processes, or the signal's configured static
// strength for a synthetic continuous-assignment process.
func NewFrame(processIndex int, strength fourstate.DriveStrength) *Frame {
	return &Frame{ProcessIndex: processIndex, Strength: strength, maxIterations: 100000}
}

// Exec executes stmt against state, accumulating effects onto f and
// reporting recoverable conditions to diags.
func Exec(stmt ir.Statement, state *simstate.SimState, diags *diag.Channel, f *Frame) (Result, error) {
	switch s := stmt.(type) {
	case ir.StmtNop:
		return Result{Kind: Continue}, nil

	case ir.StmtAssign:
		v, err := eval.Eval(s.Value, state, diags)
		if err != nil {
			return Result{}, err
		}
		f.Pending = append(f.Pending, simstate.PendingUpdate{
			ProcessIndex: f.ProcessIndex,
			Target:       s.Target,
			Value:        v,
			Strength:     f.Strength,
		})
		return Result{Kind: Continue}, nil

	case ir.StmtIf:
		cond, err := eval.Eval(s.Cond, state, diags)
		if err != nil {
			return Result{}, err
		}
		if eval.Truthy(cond) {
			return Exec(s.Then, state, diags, f)
		}
		if s.Else != nil {
			return Exec(s.Else, state, diags, f)
		}
		return Result{Kind: Continue}, nil

	case ir.StmtCase:
		return execCase(s, state, diags, f)

	case ir.StmtBlock:
		return execBlock(s, state, diags, f)

	case ir.StmtDelay:
		return Result{Kind: Suspended, Continuation: s.Body, IsDelay: true, DelayFS: s.DurationFS}, nil

	case ir.StmtForever:
		return execForever(s, state, diags, f)

	case ir.StmtWait:
		cond, err := eval.Eval(s.Cond, state, diags)
		if err != nil {
			return Result{}, err
		}
		if eval.Truthy(cond) {
			return Exec(s.Body, state, diags, f)
		}
		return Result{Kind: Suspended, Continuation: s, WaitCond: s.Cond}, nil

	case ir.StmtAssertion:
		return execAssertion(s, state, diags, f)

	case ir.StmtDisplay:
		text, err := formatDisplay(s, state, diags)
		if err != nil {
			return Result{}, err
		}
		f.Displays = append(f.Displays, Display{ProcessIndex: f.ProcessIndex, Text: text})
		return Result{Kind: Continue}, nil

	case ir.StmtFinish:
		return Result{Kind: Finished}, nil

	default:
		return Result{}, fmt.Errorf("exec: unknown statement type %T", stmt)
	}
}

func execBlock(s ir.StmtBlock, state *simstate.SimState, diags *diag.Channel, f *Frame) (Result, error) {
	for i, child := range s.Stmts {
		res, err := Exec(child, state, diags, f)
		if err != nil {
			return Result{}, err
		}
		switch res.Kind {
		case Continue:
			continue
		case Finished:
			return res, nil
		case Suspended:
			remaining := s.Stmts[i+1:]
			if len(remaining) == 0 {
				return res, nil
			}
			res.Continuation = ir.StmtBlock{Stmts: append([]ir.Statement{res.Continuation}, remaining...)}
			return res, nil
		}
	}
	return Result{Kind: Continue}, nil
}

// execForever loops Body until it suspends or $finish runs. A body that
// never suspends and never finishes is a zero-delay infinite loop in the
// source; maxIterations bounds the number of passes rather than hanging
// the host process, and is reported as a fatal diagnostic (spec.md §7).
func execForever(s ir.StmtForever, state *simstate.SimState, diags *diag.Channel, f *Frame) (Result, error) {
	for i := 0; ; i++ {
		if i >= f.maxIterations {
			diags.Report(diag.Fatal, "forever loop did not suspend after %d iterations (zero-delay infinite loop)", f.maxIterations)
			return Result{Kind: Finished}, nil
		}
		res, err := Exec(s.Body, state, diags, f)
		if err != nil {
			return Result{}, err
		}
		switch res.Kind {
		case Continue:
			continue
		case Finished:
			return res, nil
		case Suspended:
			res.Continuation = ir.StmtBlock{Stmts: []ir.Statement{res.Continuation, s}}
			return res, nil
		}
	}
}

func execCase(s ir.StmtCase, state *simstate.SimState, diags *diag.Channel, f *Frame) (Result, error) {
	sel, err := eval.Eval(s.Selector, state, diags)
	if err != nil {
		return Result{}, err
	}
	var defaultItem *ir.CaseItem
	for i := range s.Items {
		item := &s.Items[i]
		if item.Values == nil {
			defaultItem = item
			continue
		}
		for _, ve := range item.Values {
			v, err := eval.Eval(ve, state, diags)
			if err != nil {
				return Result{}, err
			}
			if sel.Equal(v) {
				return Exec(item.Body, state, diags, f)
			}
		}
	}
	if defaultItem != nil {
		return Exec(defaultItem.Body, state, diags, f)
	}
	return Result{Kind: Continue}, nil
}

func execAssertion(s ir.StmtAssertion, state *simstate.SimState, diags *diag.Channel, f *Frame) (Result, error) {
	v, err := eval.Eval(s.Cond, state, diags)
	if err != nil {
		return Result{}, err
	}
	if !eval.Truthy(v) {
		msg := s.Message
		if msg == "" {
			msg = "assertion failed"
		}
		f.Assertions = append(f.Assertions, AssertionFailure{ProcessIndex: f.ProcessIndex, Kind: s.Kind, Message: msg})
		if s.Kind == ir.AssertError {
			diags.Report(diag.Recoverable, "%s", msg)
		}
	}
	return Result{Kind: Continue}, nil
}

func formatDisplay(s ir.StmtDisplay, state *simstate.SimState, diags *diag.Channel) (string, error) {
	var out []byte
	argi := 0
	runes := []rune(s.Format)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '%' || i+1 >= len(runes) {
			out = append(out, string(runes[i])...)
			continue
		}
		i++
		spec := runes[i]
		if spec == '%' {
			out = append(out, '%')
			continue
		}
		if argi >= len(s.Args) {
			out = append(out, '%', byte(spec))
			continue
		}
		v, err := eval.Eval(s.Args[argi], state, diags)
		argi++
		if err != nil {
			return "", err
		}
		switch spec {
		case 'b':
			out = append(out, v.Format(2)...)
		case 'h', 'x':
			out = append(out, v.Format(16)...)
		case 'd':
			out = append(out, v.Format(10)...)
		case 's':
			out = append(out, v.Format(2)...)
		default:
			out = append(out, '%', byte(spec))
		}
	}
	return string(out), nil
}
