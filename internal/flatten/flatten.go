// Package flatten turns an elaborated hierarchy (pkg/ir.Design) into the
// kernel's flat simulation state (spec.md §4.1): every signal in every
// instance gets one dense SimSignalId, cell ports are unified with the
// wire they connect to rather than copied, continuous assignments become
// synthetic combinational processes, and a sensitivity index is built so
// the scheduler knows which processes to wake on a signal change.
package flatten

import (
	"fmt"

	"github.com/minz/hdlsim/internal/simstate"
	"github.com/minz/hdlsim/pkg/fourstate"
	"github.com/minz/hdlsim/pkg/ir"
)

// BlackBox is a cell the flattener could not (or was told not to) expand
// in place: an unresolved module instance, or a primitive/memory cell
// meant to be driven by a host component such as pkg/kernel/blackbox's
// CPU core wrappers.
type BlackBox struct {
	Path  string // fully qualified instance path
	Name  string // cell name within its parent module
	Model string // target model name, resolved if an Interner was supplied
	Ports []ResolvedPort
}

// ResolvedPort is one of a BlackBox's port connections, rewritten to the
// flat SignalRef the host component should read or drive.
type ResolvedPort struct {
	Name      string
	Direction ir.PortDirection
	Signal    ir.SignalRef
}

// Flatten elaborates design starting at design.Top. interner resolves the
// interned name handles used by ir.Signal.Name and ir.Cell.Model; it may
// be nil if the design carries no cell instances (the common case for a
// design produced by the textual front end directly).
func Flatten(design *ir.Design, interner ir.Interner) (*simstate.SimState, []BlackBox, error) {
	if design.Top == "" {
		return nil, nil, fmt.Errorf("flatten: design has no top module")
	}
	top, ok := design.Modules[design.Top]
	if !ok {
		return nil, nil, fmt.Errorf("flatten: top module %q not found", design.Top)
	}

	f := &flattener{
		design:   design,
		interner: interner,
		state:    &simstate.SimState{Sensitivity: map[simstate.SimSignalId][]simstate.SensitiveProcess{}},
		visiting: map[string]bool{},
	}
	if err := f.flattenModule(top, design.Top, "", nil); err != nil {
		return nil, nil, err
	}
	f.buildSensitivityIndex()
	return f.state, f.blackboxes, nil
}

type flattener struct {
	design     *ir.Design
	interner   ir.Interner
	state      *simstate.SimState
	visiting   map[string]bool
	blackboxes []BlackBox
}

func qualify(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func (f *flattener) resolveName(handle uint32) string {
	if f.interner == nil {
		return fmt.Sprintf("%%%d", handle)
	}
	return f.interner.Resolve(handle)
}

// flattenModule flattens one instance of mod at hierarchy path path.
// bindings maps a local port signal id to an already-allocated flat id
// supplied by the parent instance (zero-copy port wiring); bindings is
// nil for the top module, which has no parent to bind from.
func (f *flattener) flattenModule(mod *ir.Module, modName, path string, bindings map[uint32]simstate.SimSignalId) error {
	if f.visiting[modName] {
		return fmt.Errorf("flatten: recursive instantiation cycle through module %q", modName)
	}
	f.visiting[modName] = true
	defer delete(f.visiting, modName)

	local := map[uint32]simstate.SimSignalId{}

	allocate := func(sig ir.Signal) {
		if flat, bound := bindings[sig.ID]; bound {
			local[sig.ID] = flat
			return
		}
		id := simstate.SimSignalId(len(f.state.Signals))
		width := sig.Width
		init := defaultInit(sig.Kind, width)
		if sig.Init != nil {
			init = sig.Init.ZeroExtend(width)
		}
		f.state.Signals = append(f.state.Signals, simstate.FlatSignal{
			ID:                   id,
			Name:                 qualify(path, f.resolveName(sig.Name)),
			Width:                width,
			Current:              init,
			Previous:             init,
			StaticDriverStrength: fourstate.Strong,
		})
		local[sig.ID] = id
	}
	for _, p := range mod.Ports {
		allocate(p)
	}
	for _, s := range mod.Signals {
		allocate(s)
	}

	rewriteRef := func(ref ir.SignalRef) (ir.SignalRef, error) { return rewriteSignalRef(ref, local) }

	for _, asn := range mod.ConcurrentAssignments {
		target, err := rewriteRef(asn.Target)
		if err != nil {
			return err
		}
		value, err := rewriteExpr(asn.Value, local)
		if err != nil {
			return err
		}
		body := ir.StmtAssign{Target: target, Value: value}
		proc := simstate.SimProcess{
			Name:        qualify(path, "assign"),
			Kind:        ir.Combinational,
			Sensitivity: ir.Sensitivity{Kind: ir.SensitivityAll},
			Body:        body,
			State:       simstate.Idle,
		}
		f.state.Processes = append(f.state.Processes, proc)
	}

	for _, proc := range mod.Processes {
		body, err := rewriteStmt(proc.Body, local)
		if err != nil {
			return err
		}
		sens, err := rewriteSensitivity(proc.Sensitivity, local)
		if err != nil {
			return err
		}
		f.state.Processes = append(f.state.Processes, simstate.SimProcess{
			Name:        qualify(path, proc.Name),
			Kind:        proc.Kind,
			Sensitivity: sens,
			Body:        body,
			State:       simstate.Idle,
		})
	}

	for _, cell := range mod.Cells {
		if err := f.flattenCell(cell, path, local); err != nil {
			return err
		}
	}

	return nil
}

func (f *flattener) flattenCell(cell ir.Cell, parentPath string, parentLocal map[uint32]simstate.SimSignalId) error {
	childPath := qualify(parentPath, cell.Name)

	if cell.Kind == ir.CellInstance {
		modelName := f.resolveName(cell.Model)
		if childMod, ok := f.design.Modules[modelName]; ok {
			bindings, err := f.resolvePortBindings(cell, childMod, parentLocal, parentPath)
			if err != nil {
				return err
			}
			return f.flattenModule(childMod, modelName, childPath, bindings)
		}
		// Unresolved instance: fall through to black-box treatment below.
	}

	ports := make([]ResolvedPort, 0, len(cell.Ports))
	for _, pc := range cell.Ports {
		ref, err := rewriteSignalRef(pc.Actual, parentLocal)
		if err != nil {
			return err
		}
		ports = append(ports, ResolvedPort{Name: pc.Name, Direction: pc.Direction, Signal: ref})
	}
	f.blackboxes = append(f.blackboxes, BlackBox{
		Path:  childPath,
		Name:  cell.Name,
		Model: f.resolveName(cell.Model),
		Ports: ports,
	})
	return nil
}

// resolvePortBindings maps each of childMod's declared port signals to the
// flat id the parent's actual expression resolves to. When the actual is a
// single whole-signal reference the binding is zero-copy: the child's
// reads and writes of that port alias the parent's wire directly. Any
// other shape (a slice, a concat, a literal) gets a fresh internal flat
// signal fed by a synthetic combinational process, since there is no
// single flat id to alias.
func (f *flattener) resolvePortBindings(cell ir.Cell, childMod *ir.Module, parentLocal map[uint32]simstate.SimSignalId, parentPath string) (map[uint32]simstate.SimSignalId, error) {
	portsByName := map[string]ir.Signal{}
	for _, p := range childMod.Ports {
		portsByName[f.resolveName(p.Name)] = p
	}

	bindings := map[uint32]simstate.SimSignalId{}
	for _, pc := range cell.Ports {
		formal, ok := portsByName[pc.Name]
		if !ok {
			return nil, fmt.Errorf("flatten: cell %q connects unknown port %q", cell.Name, pc.Name)
		}
		actual, err := rewriteSignalRef(pc.Actual, parentLocal)
		if err != nil {
			return nil, err
		}
		if sigID, ok := actual.(ir.SigID); ok {
			bindings[formal.ID] = simstate.SimSignalId(sigID.ID)
			continue
		}

		// Non-aliasable actual: materialize a fresh signal for the port
		// and, for input ports, drive it continuously from the parent
		// expression.
		id := simstate.SimSignalId(len(f.state.Signals))
		f.state.Signals = append(f.state.Signals, simstate.FlatSignal{
			ID:                   id,
			Name:                 qualify(qualify(parentPath, cell.Name), pc.Name),
			Width:                formal.Width,
			Current:              fourstate.NewZ(formal.Width),
			Previous:             fourstate.NewZ(formal.Width),
			StaticDriverStrength: fourstate.Strong,
		})
		bindings[formal.ID] = id
		if formal.Kind == ir.Port && pc.Direction != ir.DirOut {
			f.state.Processes = append(f.state.Processes, simstate.SimProcess{
				Name:        qualify(cell.Name, pc.Name+"$bind"),
				Kind:        ir.Combinational,
				Sensitivity: ir.Sensitivity{Kind: ir.SensitivityAll},
				Body:        ir.StmtAssign{Target: ir.SigID{ID: uint32(id)}, Value: exprFromRef(actual)},
				State:       simstate.Idle,
			})
		}
	}
	return bindings, nil
}

func exprFromRef(ref ir.SignalRef) ir.Expr { return ir.ExprSignal{Ref: ref} }

func defaultInit(kind ir.SignalKind, width int) fourstate.LogicVec {
	switch kind {
	case ir.Reg, ir.Latch:
		return fourstate.NewX(width)
	case ir.Const:
		return fourstate.NewZero(width)
	default: // Wire, Port
		return fourstate.NewZ(width)
	}
}

// buildSensitivityIndex populates state.Sensitivity from every process's
// rewritten Sensitivity spec, collecting implicit "sensitive to everything
// it reads" lists for combinational/latched processes with SensitivityAll.
func (f *flattener) buildSensitivityIndex() {
	for i := range f.state.Processes {
		p := &f.state.Processes[i]
		switch p.Sensitivity.Kind {
		case ir.SensitivityEdgeList:
			for _, es := range p.Sensitivity.Edges {
				for _, id := range baseSignalIDs(es.Signal) {
					f.addSensitivity(id, i, es.Edge, true)
				}
			}
		case ir.SensitivitySignalList:
			for _, ref := range p.Sensitivity.Signals {
				for _, id := range baseSignalIDs(ref) {
					f.addSensitivity(id, i, ir.BothEdges, false)
				}
			}
		case ir.SensitivityAll:
			for _, ref := range collectReadRefs(p.Body) {
				for _, id := range baseSignalIDs(ref) {
					f.addSensitivity(id, i, ir.BothEdges, false)
				}
			}
		}
	}
}

func (f *flattener) addSensitivity(id simstate.SimSignalId, procIndex int, edge ir.Edge, isEdge bool) {
	list := f.state.Sensitivity[id]
	for _, entry := range list {
		if entry.ProcessIndex == procIndex && entry.Edge == edge && entry.IsEdge == isEdge {
			return
		}
	}
	f.state.Sensitivity[id] = append(list, simstate.SensitiveProcess{ProcessIndex: procIndex, Edge: edge, IsEdge: isEdge})
}
