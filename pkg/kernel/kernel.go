package kernel

import (
	"fmt"
	"sort"

	"github.com/minz/hdlsim/internal/diag"
	"github.com/minz/hdlsim/internal/eval"
	"github.com/minz/hdlsim/internal/exec"
	"github.com/minz/hdlsim/internal/flatten"
	"github.com/minz/hdlsim/internal/simstate"
	"github.com/minz/hdlsim/pkg/fourstate"
	"github.com/minz/hdlsim/pkg/ir"
)

// Kernel is the simulation engine for one elaborated design: flattened
// signal/process state, the event heap, and the accumulated diagnostic
// and output channels the host drains between steps.
type Kernel struct {
	state      *simstate.SimState
	blackboxes []flatten.BlackBox
	diags      *diag.Channel
	cfg        Config

	now    fourstate.SimTime
	events eventHeap

	active map[int]bool // process indices due to run this delta cycle
	waitOn map[int]bool // process indices suspended on StmtWait

	driverSlots map[simstate.SimSignalId]map[int]int
	nextSlot    map[simstate.SimSignalId]int

	displays   []exec.Display
	assertions []exec.AssertionFailure
	finished   bool

	tickHook TickHook
}

// TickHook is invoked once per quiescence point — after Initialize or a
// StepDelta finishes settling every delta cycle at an instant — letting a
// host-level script observe or force signals between events (pkg/scripting's
// testbench hook).
type TickHook func(*Kernel) error

// SetTickHook registers hook to run after every quiescence point. Pass
// nil to remove a previously registered hook.
func (k *Kernel) SetTickHook(hook TickHook) { k.tickHook = hook }

// ForceSignal sets a signal's current value directly, bypassing driver
// resolution entirely. Intended for scripted stimulus only — anything
// driven through the design's own processes should go through an assign
// statement, not this.
func (k *Kernel) ForceSignal(name string, value fourstate.LogicVec) error {
	sig, err := k.state.SignalByName(name)
	if err != nil {
		return err
	}
	sig.Previous = sig.Current
	sig.Current = value.ZeroExtend(sig.Width)
	return nil
}

// NewKernel elaborates design (already produced by an external HDL front
// end) into flat simulation state and returns a Kernel ready for
// Initialize. interner resolves the design's interned signal names; pass
// nil if the front end left names unresolved.
func NewKernel(design *ir.Design, interner ir.Interner, cfg Config) (*Kernel, error) {
	state, blackboxes, err := flatten.Flatten(design, interner)
	if err != nil {
		return nil, fmt.Errorf("kernel: elaboration failed: %w", err)
	}
	state.DeltaCycleLimit = cfg.DeltaCycleLimit
	return &Kernel{
		state:       state,
		blackboxes:  blackboxes,
		diags:       &diag.Channel{},
		cfg:         cfg,
		active:      map[int]bool{},
		waitOn:      map[int]bool{},
		driverSlots: map[simstate.SimSignalId]map[int]int{},
		nextSlot:    map[simstate.SimSignalId]int{},
	}, nil
}

// BlackBoxes returns the unresolved cells the flattener could not
// elaborate (foreign-model instances, primitive ops, memories) for a host
// package such as kernel/blackbox to bind against.
func (k *Kernel) BlackBoxes() []flatten.BlackBox { return k.blackboxes }

// Diagnostics returns the kernel's diagnostic channel for the host to
// drain or inspect (spec.md §7).
func (k *Kernel) Diagnostics() *diag.Channel { return k.diags }

// Initialize runs the design's initial and level-sensitive processes to a
// fixed point at simulation time zero (spec.md §4.4 step 1): every
// InitialProcess, Combinational, and LatchedProcess process runs at least
// once before the kernel reports any signal's resolved value.
func (k *Kernel) Initialize() error {
	k.now = fourstate.SimTime{}
	for i, p := range k.state.Processes {
		switch p.Kind {
		case ir.InitialProcess, ir.Combinational, ir.LatchedProcess:
			k.active[i] = true
		}
	}
	if err := k.settle(); err != nil {
		return err
	}
	return k.runTickHook()
}

func (k *Kernel) runTickHook() error {
	if k.tickHook == nil {
		return nil
	}
	return k.tickHook(k)
}

// StepDelta advances the kernel to the next scheduled event — the
// earliest time at which any process is due to wake — and settles every
// delta cycle at that instant. It returns false if no event is pending.
func (k *Kernel) StepDelta() (bool, error) {
	if k.finished {
		return false, nil
	}
	at, wakeups := k.popEventsAt()
	if len(wakeups) == 0 {
		return false, nil
	}
	k.now = at
	for _, idx := range wakeups {
		// Leave State/Continuation untouched: a timed wake resumes
		// exactly where the process suspended (spec.md §4.3), unlike a
		// sensitivity wake, which re-runs the process body from the top.
		k.active[idx] = true
	}
	if err := k.settle(); err != nil {
		return false, err
	}
	if err := k.runTickHook(); err != nil {
		return false, err
	}
	return true, nil
}

// RunUntil advances the kernel event by event until the next pending
// event would occur after targetFS, or the simulation finishes.
func (k *Kernel) RunUntil(targetFS uint64) error {
	for !k.finished {
		nextFS, ok := k.NextEventTimeFS()
		if !ok || nextFS > targetFS {
			return nil
		}
		if _, err := k.StepDelta(); err != nil {
			return err
		}
	}
	return nil
}

// HasPendingEvents reports whether any process is scheduled to wake in
// the future.
func (k *Kernel) HasPendingEvents() bool { return k.events.Len() > 0 }

// NextEventTimeFS returns the time of the earliest pending event, if any.
func (k *Kernel) NextEventTimeFS() (uint64, bool) {
	if k.events.Len() == 0 {
		return 0, false
	}
	return k.events[0].at.FS, true
}

// IsFinished reports whether a $finish statement ran, or the kernel
// reported a fatal diagnostic.
func (k *Kernel) IsFinished() bool { return k.finished }

// NowFS returns the kernel's current simulation time in femtoseconds.
func (k *Kernel) NowFS() uint64 { return k.now.FS }

// Timescale returns the femtoseconds-per-unit this kernel was configured
// with, for a host writing a waveform recording's header.
func (k *Kernel) Timescale() uint64 { return k.cfg.TimescaleFS }

// SignalValue returns the current resolved value of the named flat
// signal.
func (k *Kernel) SignalValue(name string) (fourstate.LogicVec, error) {
	sig, err := k.state.SignalByName(name)
	if err != nil {
		return fourstate.LogicVec{}, err
	}
	return sig.Current, nil
}

// AllSignals returns every flattened signal, for a host building a
// waveform dump or signal browser.
func (k *Kernel) AllSignals() []simstate.FlatSignal {
	return append([]simstate.FlatSignal(nil), k.state.Signals...)
}

// TakeDisplayOutput drains and returns every $display line produced since
// the last call.
func (k *Kernel) TakeDisplayOutput() []exec.Display {
	out := k.displays
	k.displays = nil
	return out
}

// TakeAssertionFailures drains and returns every assertion failure
// recorded since the last call.
func (k *Kernel) TakeAssertionFailures() []exec.AssertionFailure {
	out := k.assertions
	k.assertions = nil
	return out
}

// settle runs delta cycles at the kernel's current time until no process
// remains active, a $finish statement runs, or the configured delta-cycle
// limit is exceeded (spec.md §4.4 steps 2-5, §7 fatal diagnostics).
func (k *Kernel) settle() error {
	for len(k.active) > 0 {
		active := make([]int, 0, len(k.active))
		for idx := range k.active {
			active = append(active, idx)
		}
		sort.Ints(active)
		k.active = map[int]bool{}

		var pending []simstate.PendingUpdate
		for _, idx := range active {
			proc := &k.state.Processes[idx]
			body := proc.Body
			if proc.State == simstate.Suspended && proc.Continuation != nil {
				body = proc.Continuation
			}
			f := exec.NewFrame(idx, fourstate.Strong)
			res, err := exec.Exec(body, k.state, k.diags, f)
			if err != nil {
				return err
			}
			pending = append(pending, f.Pending...)
			k.displays = append(k.displays, f.Displays...)
			k.assertions = append(k.assertions, f.Assertions...)

			switch res.Kind {
			case exec.Continue:
				proc.State = simstate.Idle
				proc.Continuation = nil
			case exec.Finished:
				k.finished = true
				k.state.Finished = true
			case exec.Suspended:
				proc.State = simstate.Suspended
				proc.Continuation = res.Continuation
				if res.IsDelay {
					k.scheduleDelay(idx, res.DelayFS)
				} else {
					proc.WaitCond = res.WaitCond
					k.waitOn[idx] = true
				}
			}
			if k.finished {
				break
			}
		}

		// $finish still lets any other update scheduled for this same
		// instant commit: a process that finishes alongside one writing a
		// signal in the same Block must leave that write observable
		// (spec.md §4.3). Only the scheduling of further wakeups is
		// suppressed once finished.
		changed, err := k.commitPending(pending)
		if err != nil {
			return err
		}
		if k.finished {
			return nil
		}

		k.now.Delta++
		if k.now.Delta > k.cfg.DeltaCycleLimit {
			k.diags.Report(diag.Fatal, "design did not settle within %d delta cycles at time %d fs (likely a combinational loop)", k.cfg.DeltaCycleLimit, k.now.FS)
			k.finished = true
			k.state.Finished = true
			return nil
		}

		k.wakeFromChanges(changed)
		if err := k.wakeFromWait(); err != nil {
			return err
		}
	}
	return nil
}

// wakeFromChanges reactivates every process sensitive to a changed
// signal, honoring edge qualifiers for EdgeList sensitivity entries
// (spec.md §4.4 step 4).
func (k *Kernel) wakeFromChanges(changed []simstate.SimSignalId) {
	for _, id := range changed {
		sig, err := k.state.Signal(id)
		if err != nil {
			continue
		}
		for _, sp := range k.state.Sensitivity[id] {
			if sp.IsEdge && !edgeMatches(sp.Edge, sig.Previous, sig.Current) {
				continue
			}
			k.activate(sp.ProcessIndex)
		}
	}
}

// wakeFromWait re-evaluates every StmtWait-suspended process's condition
// after a delta cycle commits; a process whose condition is now true
// resumes in the same instant (spec.md §4.3).
func (k *Kernel) wakeFromWait() error {
	if len(k.waitOn) == 0 {
		return nil
	}
	woken := make([]int, 0, len(k.waitOn))
	for idx := range k.waitOn {
		proc := &k.state.Processes[idx]
		cond, err := eval.Eval(proc.WaitCond, k.state, k.diags)
		if err != nil {
			return err
		}
		if eval.Truthy(cond) {
			woken = append(woken, idx)
		}
	}
	for _, idx := range woken {
		delete(k.waitOn, idx)
		// Stay Suspended with the Continuation intact so settle resumes
		// at the Wait rather than re-running the body from the top.
		k.state.Processes[idx].WaitCond = nil
		k.active[idx] = true
	}
	return nil
}

func (k *Kernel) activate(processIndex int) {
	proc := &k.state.Processes[processIndex]
	if proc.State == simstate.Suspended && proc.WaitCond == nil {
		// Suspended on a timed Delay: a level/edge sensitivity entry must
		// not interrupt it early.
		return
	}
	proc.State = simstate.Idle
	proc.Continuation = nil
	k.active[processIndex] = true
}

func edgeMatches(edge ir.Edge, prev, cur fourstate.LogicVec) bool {
	if prev.Width() == 0 || cur.Width() == 0 {
		return false
	}
	p, c := prev.Bits[0], cur.Bits[0]
	switch edge {
	case ir.Posedge:
		return p != fourstate.One && c == fourstate.One
	case ir.Negedge:
		return p != fourstate.Zero && c == fourstate.Zero
	default:
		return p != c
	}
}
