// Package driver implements multi-driver resolution (spec.md §4.5): the
// scheduler gathers every PendingUpdate touching a signal this delta
// cycle, overlays them onto the signal's per-bit driver table, and
// resolves the winning value bit by bit according to drive strength.
package driver

import (
	"sort"

	"github.com/minz/hdlsim/internal/simstate"
	"github.com/minz/hdlsim/pkg/fourstate"
)

// Resolve applies updates (all targeting the same flat signal, already
// expanded to whole-signal bit ranges by the caller) onto sig's driver
// table and returns the resolved value for this delta cycle. It mutates
// sig.LastDriven/LastWritten so drivers that don't write this instant keep
// contributing their last value (spec.md §4.5 step 1).
func Resolve(sig *simstate.FlatSignal, writes []BitRange) fourstate.LogicVec {
	ensureDriverTable(sig)

	for _, w := range writes {
		idx := w.DriverIndex
		if idx >= len(sig.LastDriven) {
			grow := make([]fourstate.Driver, idx+1)
			copy(grow, sig.LastDriven)
			sig.LastDriven = grow
			growWritten := make([]bool, idx+1)
			copy(growWritten, sig.LastWritten)
			sig.LastWritten = growWritten
		}
		sig.LastDriven[idx] = fourstate.Driver{Value: w.Value, Strength: w.Strength}
		sig.LastWritten[idx] = true
	}

	return resolveBits(sig)
}

// BitRange is one driver's contribution to a signal this delta cycle.
// DriverIndex identifies the driver slot (stable per source: the kernel
// assigns one per process writing the signal, continuous assignments
// included) so repeated non-writes correctly keep holding their
// last driven value rather than floating.
type BitRange struct {
	DriverIndex int
	Value       fourstate.LogicVec
	Strength    fourstate.DriveStrength
}

func ensureDriverTable(sig *simstate.FlatSignal) {
	if sig.LastDriven == nil {
		sig.LastDriven = make([]fourstate.Driver, 0)
	}
	if sig.LastWritten == nil {
		sig.LastWritten = make([]bool, len(sig.LastDriven))
	}
}

// resolveBits merges every active driver's value bit by bit: the highest
// strength present at a bit position wins; if more than one driver at that
// strength disagrees on the bit, the result is X (spec.md §4.5 step 3).
// A signal driven by nothing, or only by HighImpedance drivers, resolves
// to high-impedance Z.
func resolveBits(sig *simstate.FlatSignal) fourstate.LogicVec {
	width := sig.Width
	if width == 0 {
		return fourstate.LogicVec{}
	}

	active := make([]fourstate.Driver, 0, len(sig.LastDriven))
	allHighZ := true
	for i, written := range sig.LastWritten {
		if written {
			active = append(active, sig.LastDriven[i])
			if sig.LastDriven[i].Strength != fourstate.HighImpedance {
				allHighZ = false
			}
		}
	}
	if len(active) == 0 || allHighZ {
		return fourstate.NewZ(width)
	}
	if len(active) == 1 {
		return active[0].Value.ZeroExtend(width)
	}

	// Sort by descending strength so ties are adjacent and the first
	// group scanned is always the winning strength.
	sorted := append([]fourstate.Driver(nil), active...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Strength > sorted[j].Strength })

	bits := make([]fourstate.Logic, width)
	for bit := 0; bit < width; bit++ {
		bits[bit] = resolveBit(sorted, bit)
	}
	return fourstate.LogicVec{Bits: bits}
}

func resolveBit(sorted []fourstate.Driver, bit int) fourstate.Logic {
	topStrength := sorted[0].Strength
	var winner fourstate.Logic
	first := true
	for _, d := range sorted {
		if d.Strength != topStrength {
			break
		}
		v := widenedBit(d.Value, bit)
		if first {
			winner = v
			first = false
			continue
		}
		if winner != v {
			return fourstate.X
		}
	}
	return winner
}

func widenedBit(v fourstate.LogicVec, bit int) fourstate.Logic {
	if bit >= v.Width() {
		return fourstate.Zero
	}
	return v.Bits[bit]
}
