package flatten

import (
	"fmt"

	"github.com/minz/hdlsim/internal/simstate"
	"github.com/minz/hdlsim/pkg/ir"
)

func lookup(local map[uint32]simstate.SimSignalId, id uint32) (uint32, error) {
	flat, ok := local[id]
	if !ok {
		return 0, fmt.Errorf("flatten: signal id %d has no flat binding in this instance", id)
	}
	return uint32(flat), nil
}

func rewriteSignalRef(ref ir.SignalRef, local map[uint32]simstate.SimSignalId) (ir.SignalRef, error) {
	switch r := ref.(type) {
	case ir.SigID:
		id, err := lookup(local, r.ID)
		if err != nil {
			return nil, err
		}
		return ir.SigID{ID: id}, nil
	case ir.SigSlice:
		id, err := lookup(local, r.ID)
		if err != nil {
			return nil, err
		}
		return ir.SigSlice{ID: id, Hi: r.Hi, Lo: r.Lo}, nil
	case ir.SigConcat:
		parts := make([]ir.SignalRef, len(r.Parts))
		for i, p := range r.Parts {
			rp, err := rewriteSignalRef(p, local)
			if err != nil {
				return nil, err
			}
			parts[i] = rp
		}
		return ir.SigConcat{Parts: parts}, nil
	case ir.SigConst:
		return r, nil
	default:
		return nil, fmt.Errorf("flatten: unknown signal ref type %T", ref)
	}
}

func rewriteExpr(e ir.Expr, local map[uint32]simstate.SimSignalId) (ir.Expr, error) {
	switch v := e.(type) {
	case ir.ExprSignal:
		ref, err := rewriteSignalRef(v.Ref, local)
		if err != nil {
			return nil, err
		}
		return ir.ExprSignal{Ref: ref}, nil
	case ir.ExprLiteral:
		return v, nil
	case ir.ExprUnary:
		operand, err := rewriteExpr(v.Operand, local)
		if err != nil {
			return nil, err
		}
		return ir.ExprUnary{Op: v.Op, Operand: operand}, nil
	case ir.ExprBinary:
		lhs, err := rewriteExpr(v.Lhs, local)
		if err != nil {
			return nil, err
		}
		rhs, err := rewriteExpr(v.Rhs, local)
		if err != nil {
			return nil, err
		}
		return ir.ExprBinary{Op: v.Op, Lhs: lhs, Rhs: rhs, Width: v.Width, Signed: v.Signed}, nil
	case ir.ExprTernary:
		cond, err := rewriteExpr(v.Cond, local)
		if err != nil {
			return nil, err
		}
		wt, err := rewriteExpr(v.WhenTrue, local)
		if err != nil {
			return nil, err
		}
		wf, err := rewriteExpr(v.WhenFalse, local)
		if err != nil {
			return nil, err
		}
		return ir.ExprTernary{Cond: cond, WhenTrue: wt, WhenFalse: wf}, nil
	case ir.ExprConcat:
		parts := make([]ir.Expr, len(v.Parts))
		for i, p := range v.Parts {
			rp, err := rewriteExpr(p, local)
			if err != nil {
				return nil, err
			}
			parts[i] = rp
		}
		return ir.ExprConcat{Parts: parts}, nil
	case ir.ExprRepeat:
		operand, err := rewriteExpr(v.Operand, local)
		if err != nil {
			return nil, err
		}
		return ir.ExprRepeat{N: v.N, Operand: operand}, nil
	case ir.ExprIndex:
		operand, err := rewriteExpr(v.Operand, local)
		if err != nil {
			return nil, err
		}
		return ir.ExprIndex{Operand: operand, Bit: v.Bit}, nil
	case ir.ExprSlice:
		operand, err := rewriteExpr(v.Operand, local)
		if err != nil {
			return nil, err
		}
		return ir.ExprSlice{Operand: operand, Hi: v.Hi, Lo: v.Lo}, nil
	case ir.ExprFuncCall:
		args := make([]ir.Expr, len(v.Args))
		for i, a := range v.Args {
			ra, err := rewriteExpr(a, local)
			if err != nil {
				return nil, err
			}
			args[i] = ra
		}
		return ir.ExprFuncCall{Name: v.Name, Args: args}, nil
	default:
		return nil, fmt.Errorf("flatten: unknown expression type %T", e)
	}
}

func rewriteStmt(s ir.Statement, local map[uint32]simstate.SimSignalId) (ir.Statement, error) {
	switch v := s.(type) {
	case ir.StmtNop:
		return v, nil
	case ir.StmtFinish:
		return v, nil
	case ir.StmtAssign:
		target, err := rewriteSignalRef(v.Target, local)
		if err != nil {
			return nil, err
		}
		value, err := rewriteExpr(v.Value, local)
		if err != nil {
			return nil, err
		}
		return ir.StmtAssign{Target: target, Value: value}, nil
	case ir.StmtIf:
		cond, err := rewriteExpr(v.Cond, local)
		if err != nil {
			return nil, err
		}
		then, err := rewriteStmt(v.Then, local)
		if err != nil {
			return nil, err
		}
		var els ir.Statement
		if v.Else != nil {
			els, err = rewriteStmt(v.Else, local)
			if err != nil {
				return nil, err
			}
		}
		return ir.StmtIf{Cond: cond, Then: then, Else: els}, nil
	case ir.StmtCase:
		sel, err := rewriteExpr(v.Selector, local)
		if err != nil {
			return nil, err
		}
		items := make([]ir.CaseItem, len(v.Items))
		for i, item := range v.Items {
			var values []ir.Expr
			if item.Values != nil {
				values = make([]ir.Expr, len(item.Values))
				for j, ve := range item.Values {
					rv, err := rewriteExpr(ve, local)
					if err != nil {
						return nil, err
					}
					values[j] = rv
				}
			}
			body, err := rewriteStmt(item.Body, local)
			if err != nil {
				return nil, err
			}
			items[i] = ir.CaseItem{Values: values, Body: body}
		}
		return ir.StmtCase{Selector: sel, Items: items}, nil
	case ir.StmtBlock:
		stmts := make([]ir.Statement, len(v.Stmts))
		for i, child := range v.Stmts {
			rc, err := rewriteStmt(child, local)
			if err != nil {
				return nil, err
			}
			stmts[i] = rc
		}
		return ir.StmtBlock{Stmts: stmts}, nil
	case ir.StmtDelay:
		body, err := rewriteStmt(v.Body, local)
		if err != nil {
			return nil, err
		}
		return ir.StmtDelay{DurationFS: v.DurationFS, Body: body}, nil
	case ir.StmtForever:
		body, err := rewriteStmt(v.Body, local)
		if err != nil {
			return nil, err
		}
		return ir.StmtForever{Body: body}, nil
	case ir.StmtWait:
		cond, err := rewriteExpr(v.Cond, local)
		if err != nil {
			return nil, err
		}
		body, err := rewriteStmt(v.Body, local)
		if err != nil {
			return nil, err
		}
		return ir.StmtWait{Cond: cond, Body: body}, nil
	case ir.StmtAssertion:
		cond, err := rewriteExpr(v.Cond, local)
		if err != nil {
			return nil, err
		}
		return ir.StmtAssertion{Kind: v.Kind, Cond: cond, Message: v.Message}, nil
	case ir.StmtDisplay:
		args := make([]ir.Expr, len(v.Args))
		for i, a := range v.Args {
			ra, err := rewriteExpr(a, local)
			if err != nil {
				return nil, err
			}
			args[i] = ra
		}
		return ir.StmtDisplay{Format: v.Format, Args: args}, nil
	default:
		return nil, fmt.Errorf("flatten: unknown statement type %T", s)
	}
}

func rewriteSensitivity(sens ir.Sensitivity, local map[uint32]simstate.SimSignalId) (ir.Sensitivity, error) {
	switch sens.Kind {
	case ir.SensitivityEdgeList:
		edges := make([]ir.EdgeSensitivity, len(sens.Edges))
		for i, es := range sens.Edges {
			ref, err := rewriteSignalRef(es.Signal, local)
			if err != nil {
				return ir.Sensitivity{}, err
			}
			edges[i] = ir.EdgeSensitivity{Signal: ref, Edge: es.Edge}
		}
		return ir.Sensitivity{Kind: ir.SensitivityEdgeList, Edges: edges}, nil
	case ir.SensitivitySignalList:
		refs := make([]ir.SignalRef, len(sens.Signals))
		for i, r := range sens.Signals {
			rr, err := rewriteSignalRef(r, local)
			if err != nil {
				return ir.Sensitivity{}, err
			}
			refs[i] = rr
		}
		return ir.Sensitivity{Kind: ir.SensitivitySignalList, Signals: refs}, nil
	default:
		return ir.Sensitivity{Kind: ir.SensitivityAll}, nil
	}
}

// baseSignalIDs flattens a (already-rewritten, flat-id) SignalRef down to
// the underlying flat signal ids it touches — a concat touches all of its
// parts, a literal touches none.
func baseSignalIDs(ref ir.SignalRef) []simstate.SimSignalId {
	switch r := ref.(type) {
	case ir.SigID:
		return []simstate.SimSignalId{simstate.SimSignalId(r.ID)}
	case ir.SigSlice:
		return []simstate.SimSignalId{simstate.SimSignalId(r.ID)}
	case ir.SigConcat:
		var ids []simstate.SimSignalId
		for _, p := range r.Parts {
			ids = append(ids, baseSignalIDs(p)...)
		}
		return ids
	default:
		return nil
	}
}

// collectReadRefs walks a (already flat-id-rewritten) statement tree and
// returns every SignalRef read by an expression in it, the basis for a
// combinational/latched process's implicit "sensitive to everything read"
// list (spec.md §4.1).
func collectReadRefs(s ir.Statement) []ir.SignalRef {
	var refs []ir.SignalRef
	var walkExpr func(ir.Expr)
	walkExpr = func(e ir.Expr) {
		switch v := e.(type) {
		case ir.ExprSignal:
			refs = append(refs, v.Ref)
		case ir.ExprLiteral:
		case ir.ExprUnary:
			walkExpr(v.Operand)
		case ir.ExprBinary:
			walkExpr(v.Lhs)
			walkExpr(v.Rhs)
		case ir.ExprTernary:
			walkExpr(v.Cond)
			walkExpr(v.WhenTrue)
			walkExpr(v.WhenFalse)
		case ir.ExprConcat:
			for _, p := range v.Parts {
				walkExpr(p)
			}
		case ir.ExprRepeat:
			walkExpr(v.Operand)
		case ir.ExprIndex:
			walkExpr(v.Operand)
		case ir.ExprSlice:
			walkExpr(v.Operand)
		case ir.ExprFuncCall:
			for _, a := range v.Args {
				walkExpr(a)
			}
		}
	}
	var walkStmt func(ir.Statement)
	walkStmt = func(s ir.Statement) {
		switch v := s.(type) {
		case ir.StmtAssign:
			walkExpr(v.Value)
		case ir.StmtIf:
			walkExpr(v.Cond)
			walkStmt(v.Then)
			if v.Else != nil {
				walkStmt(v.Else)
			}
		case ir.StmtCase:
			walkExpr(v.Selector)
			for _, item := range v.Items {
				for _, ve := range item.Values {
					walkExpr(ve)
				}
				walkStmt(item.Body)
			}
		case ir.StmtBlock:
			for _, child := range v.Stmts {
				walkStmt(child)
			}
		case ir.StmtDelay:
			walkStmt(v.Body)
		case ir.StmtForever:
			walkStmt(v.Body)
		case ir.StmtWait:
			walkExpr(v.Cond)
			walkStmt(v.Body)
		case ir.StmtAssertion:
			walkExpr(v.Cond)
		case ir.StmtDisplay:
			for _, a := range v.Args {
				walkExpr(a)
			}
		}
	}
	walkStmt(s)
	return refs
}
