// Package ir defines the language-independent netlist the simulation
// kernel consumes: modules, signals, cells, and the behavioral-process
// statement/expression trees produced by an external HDL elaborator.
package ir

import "github.com/minz/hdlsim/pkg/fourstate"

// Interner resolves name handles produced by the front end's string table
// into human-readable strings. The kernel never owns one, only borrows it
// by reference (spec.md §9 "no global mutable state").
type Interner interface {
	Resolve(handle uint32) string
}

// SignalKind classifies a declared signal.
type SignalKind uint8

const (
	Wire SignalKind = iota
	Reg
	Latch
	Port
	Const
)

// Signal is a declared signal before flattening assigns it a flat id.
type Signal struct {
	ID    uint32
	Name  uint32 // interner handle
	Width int
	Kind  SignalKind
	Init  *fourstate.LogicVec // nil means "use the kind's default"
}

// PortDirection describes which way a cell port carries signal.
type PortDirection uint8

const (
	DirIn PortDirection = iota
	DirOut
	DirInOut
)

// PortConnection binds a cell's formal port name to an actual SignalRef.
type PortConnection struct {
	Name      string
	Direction PortDirection
	Actual    SignalRef
}

// CellKind distinguishes the three cell flavors the flattener must handle.
type CellKind uint8

const (
	CellInstance CellKind = iota
	CellPrimitiveOp
	CellMemory
)

// Cell is an instantiated sub-module, primitive operator, or memory.
type Cell struct {
	Name  string
	Kind  CellKind
	Model uint32 // module id for CellInstance; primitive/memory tag otherwise
	Ports []PortConnection
}

// ProcessKind distinguishes how a process is scheduled.
type ProcessKind uint8

const (
	Combinational ProcessKind = iota
	Sequential
	LatchedProcess
	InitialProcess
)

// Edge qualifies an EdgeList sensitivity entry.
type Edge uint8

const (
	Posedge Edge = iota
	Negedge
	BothEdges
)

// SensitivityKind distinguishes the three sensitivity shapes spec.md §3
// names for a process record.
type SensitivityKind uint8

const (
	SensitivityAll SensitivityKind = iota
	SensitivityEdgeList
	SensitivitySignalList
)

// EdgeSensitivity pairs a signal reference with the edge that wakes the
// process.
type EdgeSensitivity struct {
	Signal SignalRef
	Edge   Edge
}

// Sensitivity is the full sensitivity specification of a process.
type Sensitivity struct {
	Kind    SensitivityKind
	Edges   []EdgeSensitivity // used when Kind == SensitivityEdgeList
	Signals []SignalRef       // used when Kind == SensitivitySignalList
}

// Process is one behavioral process or synthetic continuous-assignment
// process created by the flattener.
type Process struct {
	Name        string
	Kind        ProcessKind
	Sensitivity Sensitivity
	Body        Statement
}

// ConcurrentAssignment is a continuous assignment (`assign target = rhs`)
// that the flattener turns into a synthetic combinational process.
type ConcurrentAssignment struct {
	Target SignalRef
	Value  Expr
}

// Module is one entry in the elaborated hierarchy.
type Module struct {
	Name                  string
	Ports                 []Signal
	Signals               []Signal
	Cells                 []Cell
	Processes             []Process
	ConcurrentAssignments []ConcurrentAssignment
}

// Design is the complete elaborated netlist handed to the kernel.
type Design struct {
	Modules   map[string]*Module
	Top       string
	SourceMap map[uint32]SourceSpan
}

// SourceSpan locates a construct in the original HDL source, carried
// through only for diagnostics.
type SourceSpan struct {
	File string
	Line int
	Col  int
}
