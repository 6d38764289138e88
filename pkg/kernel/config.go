// Package kernel wires together flattening, expression evaluation,
// statement execution, and multi-driver resolution into the scheduler
// that runs a design (spec.md §4.4): NewKernel elaborates a design,
// Initialize runs every time-0 process to a fixed point, and StepDelta /
// RunUntil advance simulated time.
package kernel

import "github.com/minz/hdlsim/pkg/fourstate"

// Config mirrors the shape of the teacher's execution-config structs
// (pkg/mirvm.Config): a small, all-exported knob bag the host CLI
// populates from flags, not a builder API.
type Config struct {
	// TimescaleFS is the femtosecond value one simulation time unit
	// represents; carried through to waveform headers.
	TimescaleFS uint64

	// DeltaCycleLimit bounds how many delta cycles may run at a single
	// instant in simulated time before the kernel reports a fatal
	// "design did not settle" diagnostic (a combinational loop, most
	// often) rather than spinning forever.
	DeltaCycleLimit uint32

	// TraceSignals holds fully qualified signal names. Neither the kernel
	// nor the cmd/hdlsim waveform recorder reads it: every signal is
	// recorded whatever it contains.
	TraceSignals []string
}

// DefaultConfig returns the kernel's out-of-the-box settings.
func DefaultConfig() Config {
	return Config{
		TimescaleFS:     fourstate.DefaultTimescaleFS,
		DeltaCycleLimit: 10000,
	}
}
