// Package blackbox adapts cells the flattener could not elaborate
// (internal/flatten.BlackBox) into host components the kernel can drive
// directly. The one implemented here is a Z80 CPU core, grounded on the
// teacher's full-coverage remogatto/z80 wrapper. The kernel neither
// creates nor steps these cells: a host builds one with NewZ80Cell from an
// entry of Kernel.BlackBoxes and drives it itself.
package blackbox

import (
	"fmt"

	"github.com/remogatto/z80"

	"github.com/minz/hdlsim/internal/flatten"
)

// memory adapts a flat 64K byte array as the core's address space,
// trimmed from the teacher's pkg/emulator Memory: ROM protection and
// self-modifying-code tracking were host/CLI concerns, not the bus model
// a simulated cell needs.
type memory struct {
	data [65536]byte
}

func (m *memory) ReadByte(address uint16) byte          { return m.data[address] }
func (m *memory) WriteByte(address uint16, value byte)  { m.data[address] = value }
func (m *memory) ReadByteInternal(address uint16) byte  { return m.ReadByte(address) }
func (m *memory) WriteByteInternal(a uint16, v byte)    { m.WriteByte(a, v) }
func (m *memory) ContendRead(address uint16, time int)  {}
func (m *memory) ContendReadNoMreq(address uint16, time int)           {}
func (m *memory) ContendReadNoMreq_loop(address uint16, time int, n uint) {}
func (m *memory) ContendWriteNoMreq(address uint16, time int)          {}
func (m *memory) ContendWriteNoMreq_loop(address uint16, time int, n uint) {}

// ports adapts the cell's bound I/O ports to the z80.PortAccessor
// interface; IORead/IOWrite are supplied by the host wiring the cell's
// ResolvedPort list to whatever the rest of the design exposes on its bus.
type ports struct {
	ioRead  func(port uint16) byte
	ioWrite func(port uint16, value byte)
}

func (p *ports) ReadPort(address uint16) byte {
	if p.ioRead != nil {
		return p.ioRead(address)
	}
	return 0xFF
}
func (p *ports) WritePort(address uint16, b byte) {
	if p.ioWrite != nil {
		p.ioWrite(address, b)
	}
}
func (p *ports) ReadPortInternal(address uint16, contend bool) byte  { return p.ReadPort(address) }
func (p *ports) WritePortInternal(address uint16, b byte, contend bool) { p.WritePort(address, b) }
func (p *ports) ContendPortPreio(address uint16)  {}
func (p *ports) ContendPortPostio(address uint16) {}

// Z80Cell is a black-box CPU cell: one remogatto/z80 core with its own
// byte-addressed memory and port space, stepped one instruction at a time
// by the host in response to its bound clock port's rising edge.
type Z80Cell struct {
	Path string

	cpu *z80.Z80
	mem *memory
	io  *ports

	cycles int
	halted bool
}

// NewZ80Cell builds a Z80Cell for the given unresolved instance. bb.Ports
// carries the formal-to-actual port bindings the flattener recorded; the
// host is responsible for wiring SetIOHandlers to whatever those ports
// connect to in the rest of the design.
func NewZ80Cell(bb flatten.BlackBox) *Z80Cell {
	mem := &memory{}
	io := &ports{}
	return &Z80Cell{
		Path: bb.Path,
		cpu:  z80.NewZ80(mem, io),
		mem:  mem,
		io:   io,
	}
}

// SetIOHandlers wires the cell's I/O port reads and writes to host
// callbacks, mirroring the teacher's SetIOHandlers on RemogattoZ80.
func (z *Z80Cell) SetIOHandlers(read func(port uint16) byte, write func(port uint16, value byte)) {
	z.io.ioRead = read
	z.io.ioWrite = write
}

// LoadProgram copies program into the cell's memory starting at address 0.
func (z *Z80Cell) LoadProgram(program []byte) error {
	if len(program) > len(z.mem.data) {
		return fmt.Errorf("blackbox: program of %d bytes exceeds the 64K address space", len(program))
	}
	copy(z.mem.data[:], program)
	return nil
}

// Reset reinitializes the core to its post-reset register state.
func (z *Z80Cell) Reset() {
	z.cpu.Reset()
	z.cycles = 0
	z.halted = false
}

// Step executes exactly one instruction and returns the T-states it took,
// which a host driving the cell can use to decide how many simulated
// clock cycles the instruction consumed (spec.md's black-box contract:
// opaque inside, but its outputs still participate in delta-cycle
// settling once the host writes them back to bound ports).
func (z *Z80Cell) Step() int {
	before := z.cpu.Tstates
	z.cpu.DoOpcode()
	used := int(z.cpu.Tstates - before)
	z.cycles += used
	if z.cpu.Halted {
		z.halted = true
	}
	return used
}

// Halted reports whether the core executed a HALT with interrupts
// disabled and is no longer making progress.
func (z *Z80Cell) Halted() bool { return z.halted }

// PC returns the current program counter, for a host driving breakpoints
// or waveform annotation against the cell's internal state.
func (z *Z80Cell) PC() uint16 { return z.cpu.PC() }

// SetPC sets the program counter, used to seed execution at a reset
// vector other than zero.
func (z *Z80Cell) SetPC(pc uint16) { z.cpu.SetPC(pc) }

// ReadByte and WriteByte give the host direct memory access for loading
// programs, inspecting state in the debugger, or DMA-style bus models.
func (z *Z80Cell) ReadByte(address uint16) byte         { return z.mem.ReadByte(address) }
func (z *Z80Cell) WriteByte(address uint16, value byte) { z.mem.WriteByte(address, value) }
