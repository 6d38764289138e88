package exec

import (
	"reflect"
	"testing"

	"github.com/minz/hdlsim/internal/diag"
	"github.com/minz/hdlsim/internal/simstate"
	"github.com/minz/hdlsim/pkg/fourstate"
	"github.com/minz/hdlsim/pkg/ir"
)

func newState(widths ...int) *simstate.SimState {
	sigs := make([]simstate.FlatSignal, len(widths))
	for i, w := range widths {
		sigs[i] = simstate.FlatSignal{
			ID:      simstate.SimSignalId(i),
			Name:    "s",
			Width:   w,
			Current: fourstate.NewZero(w),
		}
	}
	return &simstate.SimState{Signals: sigs}
}

func sigRef(id uint32) ir.SignalRef { return ir.SigID{ID: id} }

func TestExecAssignProducesPendingUpdate(t *testing.T) {
	state := newState(8)
	f := NewFrame(0, fourstate.Strong)
	diags := &diag.Channel{}
	stmt := ir.StmtAssign{Target: sigRef(0), Value: ir.ExprLiteral{Value: fourstate.FromUint64(5, 8)}}

	res, err := Exec(stmt, state, diags, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != Continue {
		t.Fatalf("kind = %v, want Continue", res.Kind)
	}
	if len(f.Pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(f.Pending))
	}
	got, _ := f.Pending[0].Value.ToUint64()
	if got != 5 {
		t.Fatalf("pending value = %d, want 5", got)
	}
}

func TestExecDelaySuspendsWithBodyAsContinuation(t *testing.T) {
	state := newState()
	f := NewFrame(0, fourstate.Strong)
	diags := &diag.Channel{}
	body := ir.StmtFinish{}
	stmt := ir.StmtDelay{DurationFS: 500, Body: body}

	res, err := Exec(stmt, state, diags, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != Suspended || !res.IsDelay || res.DelayFS != 500 {
		t.Fatalf("res = %+v, want suspended delay 500", res)
	}
	if res.Continuation != body {
		t.Fatalf("continuation should be the delay's body unchanged")
	}
}

func TestExecBlockWrapsRemainderOnSuspend(t *testing.T) {
	state := newState(1)
	f := NewFrame(0, fourstate.Strong)
	diags := &diag.Channel{}
	finishAssign := ir.StmtAssign{Target: sigRef(0), Value: ir.ExprLiteral{Value: fourstate.FromUint64(1, 1)}}
	block := ir.StmtBlock{Stmts: []ir.Statement{
		ir.StmtDelay{DurationFS: 10, Body: ir.StmtNop{}},
		finishAssign,
	}}

	res, err := Exec(block, state, diags, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != Suspended {
		t.Fatalf("kind = %v, want Suspended", res.Kind)
	}
	cont, ok := res.Continuation.(ir.StmtBlock)
	if !ok || len(cont.Stmts) != 2 {
		t.Fatalf("continuation = %+v, want 2-statement block (nop then remaining assign)", res.Continuation)
	}

	// Resuming the continuation should run the nop then the remaining
	// assign, producing exactly one pending update.
	f2 := NewFrame(0, fourstate.Strong)
	res2, err := Exec(cont, state, diags, f2)
	if err != nil {
		t.Fatalf("unexpected error resuming: %v", err)
	}
	if res2.Kind != Continue {
		t.Fatalf("resumed kind = %v, want Continue", res2.Kind)
	}
	if len(f2.Pending) != 1 {
		t.Fatalf("resumed pending = %d, want 1", len(f2.Pending))
	}
}

func TestExecForeverWrapsSelfOnSuspend(t *testing.T) {
	state := newState(1)
	f := NewFrame(0, fourstate.Strong)
	diags := &diag.Channel{}
	forever := ir.StmtForever{Body: ir.StmtDelay{DurationFS: 5, Body: ir.StmtNop{}}}

	res, err := Exec(forever, state, diags, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != Suspended || !res.IsDelay || res.DelayFS != 5 {
		t.Fatalf("res = %+v", res)
	}
	block, ok := res.Continuation.(ir.StmtBlock)
	if !ok || len(block.Stmts) != 2 {
		t.Fatalf("continuation should chain nop-body then the forever itself, got %+v", res.Continuation)
	}
	if _, ok := block.Stmts[1].(ir.StmtForever); !ok {
		t.Fatalf("second statement should be the forever loop, got %T", block.Stmts[1])
	}
}

func TestExecWaitResumesOnTruthyCondition(t *testing.T) {
	state := newState(1)
	state.Signals[0].Current = fourstate.FromUint64(0, 1)
	cond := ir.ExprSignal{Ref: sigRef(0)}
	body := ir.StmtAssign{Target: sigRef(0), Value: ir.ExprLiteral{Value: fourstate.FromUint64(1, 1)}}
	stmt := ir.StmtWait{Cond: cond, Body: body}
	diags := &diag.Channel{}

	f := NewFrame(0, fourstate.Strong)
	res, err := Exec(stmt, state, diags, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != Suspended || !reflect.DeepEqual(res.Continuation, ir.Statement(stmt)) {
		t.Fatalf("res = %+v, want suspended on self", res)
	}

	state.Signals[0].Current = fourstate.FromUint64(1, 1)
	f2 := NewFrame(0, fourstate.Strong)
	res2, err := Exec(res.Continuation, state, diags, f2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res2.Kind != Continue {
		t.Fatalf("resumed kind = %v, want Continue", res2.Kind)
	}
	if len(f2.Pending) != 1 {
		t.Fatalf("resumed pending = %d, want 1", len(f2.Pending))
	}
}

func TestExecAssertionFailureRecordedNotFatal(t *testing.T) {
	state := newState()
	f := NewFrame(0, fourstate.Strong)
	diags := &diag.Channel{}
	stmt := ir.StmtAssertion{Kind: ir.AssertAssert, Cond: ir.ExprLiteral{Value: fourstate.FromUint64(0, 1)}, Message: "q must be set"}

	res, err := Exec(stmt, state, diags, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != Continue {
		t.Fatalf("kind = %v, want Continue (assertion failure doesn't halt the process)", res.Kind)
	}
	if len(f.Assertions) != 1 || f.Assertions[0].Message != "q must be set" {
		t.Fatalf("assertions = %+v", f.Assertions)
	}
}

func TestExecCaseMatchesDefault(t *testing.T) {
	state := newState()
	f := NewFrame(0, fourstate.Strong)
	diags := &diag.Channel{}
	marker := ir.StmtAssign{Target: sigRef(99), Value: ir.ExprLiteral{Value: fourstate.FromUint64(7, 8)}}
	stmt := ir.StmtCase{
		Selector: ir.ExprLiteral{Value: fourstate.FromUint64(3, 2)},
		Items: []ir.CaseItem{
			{Values: []ir.Expr{ir.ExprLiteral{Value: fourstate.FromUint64(0, 2)}}, Body: ir.StmtNop{}},
			{Values: nil, Body: marker},
		},
	}
	res, err := Exec(stmt, state, diags, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != Continue {
		t.Fatalf("kind = %v", res.Kind)
	}
	if len(f.Pending) != 1 {
		t.Fatalf("expected default arm to run, pending = %d", len(f.Pending))
	}
}

func TestExecDisplayFormatsArgs(t *testing.T) {
	state := newState()
	f := NewFrame(0, fourstate.Strong)
	diags := &diag.Channel{}
	stmt := ir.StmtDisplay{
		Format: "q=%d h=%h",
		Args: []ir.Expr{
			ir.ExprLiteral{Value: fourstate.FromUint64(10, 8)},
			ir.ExprLiteral{Value: fourstate.FromUint64(255, 8)},
		},
	}
	res, err := Exec(stmt, state, diags, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != Continue {
		t.Fatalf("kind = %v", res.Kind)
	}
	if len(f.Displays) != 1 || f.Displays[0].Text != "q=10 h=ff" {
		t.Fatalf("displays = %+v", f.Displays)
	}
}

func TestExecFinishAfterAssignStillRunsPriorAssign(t *testing.T) {
	state := newState(1)
	f := NewFrame(0, fourstate.Strong)
	diags := &diag.Channel{}
	block := ir.StmtBlock{Stmts: []ir.Statement{
		ir.StmtAssign{Target: sigRef(0), Value: ir.ExprLiteral{Value: fourstate.FromUint64(1, 1)}},
		ir.StmtFinish{},
		ir.StmtAssign{Target: sigRef(0), Value: ir.ExprLiteral{Value: fourstate.FromUint64(0, 1)}},
	}}
	res, err := Exec(block, state, diags, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != Finished {
		t.Fatalf("kind = %v, want Finished", res.Kind)
	}
	if len(f.Pending) != 1 {
		t.Fatalf("pending = %d, want 1 (the assign after $finish must not run)", len(f.Pending))
	}
}
