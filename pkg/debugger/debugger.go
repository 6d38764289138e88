// Package debugger provides an interactive stepper for a running
// simulation kernel, adapted from the teacher's Z80 instruction-level
// debugger (breakpoints, watchpoints, execution history, a bufio-scanner
// REPL) onto signal values and delta-cycle events instead of PC/registers.
package debugger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/minz/hdlsim/pkg/fourstate"
	"github.com/minz/hdlsim/pkg/kernel"
)

// Debugger drives a kernel.Kernel interactively: it steps event by
// event, stopping when a breakpoint condition or watched signal fires.
type Debugger struct {
	k *kernel.Kernel

	breakpoints map[string]fourstate.LogicVec // signal name -> value to break on
	watchpoints map[string]bool               // signal name -> watched for any change
	lastValues  map[string]fourstate.LogicVec

	stepMode bool
	running  bool
	history  []HistoryEntry
	maxHist  int

	input  *bufio.Scanner
	output io.Writer

	oldTermState *term.State
}

// HistoryEntry records one settled event for the `history` command.
type HistoryEntry struct {
	TimeFS uint64
	Events int
}

// Config holds debugger construction options.
type Config struct {
	MaxHistory int
	Input      io.Reader
	Output     io.Writer
}

// New creates a Debugger stepping k.
func New(k *kernel.Kernel, config *Config) *Debugger {
	if config == nil {
		config = &Config{}
	}
	if config.MaxHistory == 0 {
		config.MaxHistory = 100
	}
	if config.Input == nil {
		config.Input = os.Stdin
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Debugger{
		k:           k,
		breakpoints: map[string]fourstate.LogicVec{},
		watchpoints: map[string]bool{},
		lastValues:  map[string]fourstate.LogicVec{},
		maxHist:     config.MaxHistory,
		input:       bufio.NewScanner(config.Input),
		output:      config.Output,
	}
}

// Run starts the interactive command loop. If stdin is a real terminal it
// is switched to raw mode for the duration of the session, matching the
// teacher's REPL terminal handling (cmd/repl/main.go).
func (d *Debugger) Run() error {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err == nil {
			d.oldTermState = oldState
			defer d.restoreTerminal()
		}
	}

	fmt.Fprintln(d.output, "hdlsim debugger — type 'help' for commands")
	d.display()

	for !d.k.IsFinished() {
		if hit := d.checkBreakpoints(); hit != "" {
			fmt.Fprintf(d.output, "\nbreakpoint hit: %s at %d fs\n", hit, d.k.NowFS())
			d.stepMode = true
		}
		if !d.stepMode && d.running {
			if err := d.stepOnce(); err != nil {
				fmt.Fprintf(d.output, "error: %v\n", err)
				d.stepMode = true
			}
			continue
		}

		fmt.Fprint(d.output, "dbg> ")
		if !d.input.Scan() {
			break
		}
		cmd := strings.TrimSpace(d.input.Text())
		if cmd == "" {
			cmd = "s"
		}
		if err := d.handleCommand(cmd); err != nil {
			fmt.Fprintf(d.output, "error: %v\n", err)
		}
		if !d.running {
			d.display()
		}
	}
	if d.k.IsFinished() {
		fmt.Fprintln(d.output, "simulation finished")
	}
	return nil
}

func (d *Debugger) restoreTerminal() {
	if d.oldTermState != nil {
		term.Restore(int(os.Stdin.Fd()), d.oldTermState)
	}
}

func (d *Debugger) handleCommand(cmd string) error {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return nil
	}
	switch parts[0] {
	case "h", "help", "?":
		d.printHelp()

	case "s", "step":
		if err := d.stepOnce(); err != nil {
			return err
		}

	case "c", "continue", "run":
		d.stepMode = false
		d.running = true
		fmt.Fprintln(d.output, "running... (a breakpoint or $finish will stop it)")

	case "b", "break", "bp":
		if len(parts) < 3 {
			d.listBreakpoints()
		} else {
			v, err := parseValue(parts[2])
			if err != nil {
				return err
			}
			d.breakpoints[parts[1]] = v
			fmt.Fprintf(d.output, "breakpoint: %s == %s\n", parts[1], parts[2])
		}

	case "d", "delete":
		if len(parts) < 2 {
			fmt.Fprintln(d.output, "usage: delete <signal>")
		} else {
			delete(d.breakpoints, parts[1])
		}

	case "w", "watch":
		if len(parts) < 2 {
			d.listWatchpoints()
		} else {
			d.watchpoints[parts[1]] = true
			fmt.Fprintf(d.output, "watching %s\n", parts[1])
		}

	case "p", "print":
		if len(parts) < 2 {
			fmt.Fprintln(d.output, "usage: print <signal>")
		} else {
			d.printSignal(parts[1])
		}

	case "force":
		if len(parts) < 3 {
			fmt.Fprintln(d.output, "usage: force <signal> <bits>")
		} else {
			v, err := parseValue(parts[2])
			if err != nil {
				return err
			}
			if err := d.k.ForceSignal(parts[1], v); err != nil {
				return err
			}
		}

	case "time":
		fmt.Fprintf(d.output, "t = %d fs\n", d.k.NowFS())

	case "history", "hist":
		d.displayHistory()

	case "q", "quit", "exit":
		fmt.Fprintln(d.output, "goodbye")
		os.Exit(0)

	default:
		fmt.Fprintf(d.output, "unknown command: %s (type 'help')\n", parts[0])
	}
	return nil
}

// stepOnce advances the kernel to the next scheduled event and records
// the watchpoint/history side effects.
func (d *Debugger) stepOnce() error {
	ran, err := d.k.StepDelta()
	if err != nil {
		return err
	}
	if !ran {
		fmt.Fprintln(d.output, "no pending events")
		d.stepMode = true
		d.running = false
		return nil
	}
	d.recordHistory()
	d.reportWatchpoints()
	return nil
}

func (d *Debugger) recordHistory() {
	d.history = append(d.history, HistoryEntry{TimeFS: d.k.NowFS()})
	if len(d.history) > d.maxHist {
		d.history = d.history[len(d.history)-d.maxHist:]
	}
}

func (d *Debugger) reportWatchpoints() {
	for name := range d.watchpoints {
		v, err := d.k.SignalValue(name)
		if err != nil {
			continue
		}
		if prev, ok := d.lastValues[name]; ok && prev.Equal(v) {
			continue
		}
		fmt.Fprintf(d.output, "watch: %s = %s at %d fs\n", name, v.Format(2), d.k.NowFS())
		d.lastValues[name] = v
	}
}

// checkBreakpoints returns the name of the first breakpoint whose signal
// currently matches its armed value, or "" if none fired.
func (d *Debugger) checkBreakpoints() string {
	for name, want := range d.breakpoints {
		v, err := d.k.SignalValue(name)
		if err != nil {
			continue
		}
		if v.Equal(want) {
			return name
		}
	}
	return ""
}

func (d *Debugger) printSignal(name string) {
	v, err := d.k.SignalValue(name)
	if err != nil {
		fmt.Fprintf(d.output, "error: %v\n", err)
		return
	}
	fmt.Fprintf(d.output, "%s = %s\n", name, v.Format(2))
}

func (d *Debugger) display() {
	fmt.Fprintf(d.output, "t = %d fs\n", d.k.NowFS())
	for _, sig := range d.k.AllSignals() {
		fmt.Fprintf(d.output, "  %-20s %s\n", sig.Name, sig.Current.Format(2))
	}
}

func (d *Debugger) listBreakpoints() {
	if len(d.breakpoints) == 0 {
		fmt.Fprintln(d.output, "no breakpoints set")
		return
	}
	for name, v := range d.breakpoints {
		fmt.Fprintf(d.output, "  %s == %s\n", name, v.Format(2))
	}
}

func (d *Debugger) listWatchpoints() {
	if len(d.watchpoints) == 0 {
		fmt.Fprintln(d.output, "no watchpoints set")
		return
	}
	for name := range d.watchpoints {
		fmt.Fprintf(d.output, "  %s\n", name)
	}
}

func (d *Debugger) displayHistory() {
	for _, h := range d.history {
		fmt.Fprintf(d.output, "  t=%d\n", h.TimeFS)
	}
}

func (d *Debugger) printHelp() {
	fmt.Fprintln(d.output, `commands:
  s, step            advance to the next scheduled event
  c, continue, run   run until a breakpoint or $finish
  b, break <sig> <v> break when signal sig equals v (binary, e.g. 101)
  d, delete <sig>    remove a breakpoint
  w, watch <sig>     print every value change of sig
  p, print <sig>     print a signal's current value
  force <sig> <v>    set a signal directly, bypassing driver resolution
  time               print the current simulation time
  history, hist      list settled events
  q, quit            exit`)
}

// parseValue parses a binary literal like "1", "0", "10x1", or a decimal
// number, using the fewest bits that hold a bare decimal's value (at least
// 1) and the string's own length for a binary literal.
func parseValue(s string) (fourstate.LogicVec, error) {
	if isBinaryLiteral(s) {
		bits := make([]fourstate.Logic, len(s))
		for i, r := range s {
			var b fourstate.Logic
			switch r {
			case '0':
				b = fourstate.Zero
			case '1':
				b = fourstate.One
			case 'x', 'X':
				b = fourstate.X
			case 'z', 'Z':
				b = fourstate.Z
			}
			bits[len(s)-1-i] = b
		}
		return fourstate.LogicVec{Bits: bits}, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fourstate.LogicVec{}, fmt.Errorf("invalid value %q", s)
	}
	width := 1
	for v := n >> 1; v > 0; v >>= 1 {
		width++
	}
	return fourstate.FromUint64(n, width), nil
}

func isBinaryLiteral(s string) bool {
	for _, r := range s {
		switch r {
		case '0', '1', 'x', 'X', 'z', 'Z':
		default:
			return false
		}
	}
	return true
}
