// Package simstate holds the kernel's single owning value: the flat
// signal arena, process table, and sensitivity index produced by
// flattening. Every other kernel package (eval, exec, driver, waveform,
// scheduler) operates on *SimState by reference; nothing here is shared
// or relocated once flattening completes (spec.md §9).
package simstate

import (
	"fmt"

	"github.com/minz/hdlsim/pkg/fourstate"
	"github.com/minz/hdlsim/pkg/ir"
)

// SimSignalId is a dense integer assigned by the flattener.
type SimSignalId uint32

// FlatSignal is one flattened signal: current/previous value, static
// drivers, and the processes sensitive to it.
type FlatSignal struct {
	ID       SimSignalId
	Name     string // fully qualified, '.'-joined
	Width    int
	Current  fourstate.LogicVec
	Previous fourstate.LogicVec

	// StaticDriverStrength is the strength continuous-assignment and
	// primitive drivers use; procedural (reg/latch) writes drive Strong.
	StaticDriverStrength fourstate.DriveStrength

	// LastDriven tracks, per driver slot index, the last value/strength
	// that driver produced — drivers that don't write this instant keep
	// driving their last value (spec.md §4.5 step 1).
	DriverCount int
	LastDriven  []fourstate.Driver
	LastWritten []bool
}

// SensitiveProcess is an entry in a signal's sensitivity list.
type SensitiveProcess struct {
	ProcessIndex int
	Edge         ir.Edge // meaningful only if the process's sensitivity is EdgeList
	IsEdge       bool
}

// ProcessState distinguishes the three states a process may occupy
// (spec.md §3 invariants).
type ProcessState int

const (
	Idle ProcessState = iota
	Queued
	Suspended
)

// SimProcess is a flattened process: its rewritten body and scheduling
// metadata.
type SimProcess struct {
	Name        string
	Kind        ir.ProcessKind
	Sensitivity ir.Sensitivity
	Body        ir.Statement
	State       ProcessState

	// Continuation is the statement to resume when a suspended process is
	// woken; nil when State != Suspended.
	Continuation ir.Statement
	WakeFS       uint64
	WaitCond     ir.Expr // set when suspended via Wait
}

// PendingUpdate is one signal write gathered during a process execution,
// collected before any are committed (spec.md §3 "Pending update").
type PendingUpdate struct {
	ProcessIndex int
	Target       ir.SignalRef
	Value        fourstate.LogicVec
	Strength     fourstate.DriveStrength
}

// SimState is the flattener's output and the scheduler's sole mutable
// state.
type SimState struct {
	Signals   []FlatSignal
	Processes []SimProcess

	// Sensitivity maps a flat signal id to the processes that must
	// re-run when it changes.
	Sensitivity map[SimSignalId][]SensitiveProcess

	Finished        bool
	DeltaCycleLimit uint32
}

// Signal returns the flat signal for id, or an error for an unknown id —
// an internal invariant violation per spec.md §7.
func (s *SimState) Signal(id SimSignalId) (*FlatSignal, error) {
	if int(id) < 0 || int(id) >= len(s.Signals) {
		return nil, fmt.Errorf("simstate: unknown signal id %d", id)
	}
	return &s.Signals[id], nil
}

// SignalByName looks up a flat signal by its fully qualified name.
func (s *SimState) SignalByName(name string) (*FlatSignal, error) {
	for i := range s.Signals {
		if s.Signals[i].Name == name {
			return &s.Signals[i], nil
		}
	}
	return nil, fmt.Errorf("simstate: unresolved signal name %q", name)
}
