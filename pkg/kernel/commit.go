package kernel

import (
	"fmt"
	"sort"

	"github.com/minz/hdlsim/internal/driver"
	"github.com/minz/hdlsim/internal/simstate"
	"github.com/minz/hdlsim/pkg/fourstate"
	"github.com/minz/hdlsim/pkg/ir"
)

// targetWrite is one base-signal write expanded from a (possibly sliced
// or concatenated) PendingUpdate target. A slice write carries isSlice
// and sliceLo so commitPending can merge it with any other slice write
// the same process makes to the same signal in the same delta, rather
// than handing the driver layer one independent full-width write per
// slice statement.
type targetWrite struct {
	id      simstate.SimSignalId
	value   fourstate.LogicVec
	isSlice bool
	sliceLo int
}

// sliceKey identifies one process's accumulating slice overlay onto one
// signal within a single commitPending batch.
type sliceKey struct {
	id  simstate.SimSignalId
	pid int
}

// commitPending expands every pending update to its base signal(s),
// merges same-process slice writes to the same signal into one overlay
// (spec.md §4.5 — e.g. `leds[0]=cnt[0]; leds[1]=cnt[1]; ...` must land as
// one combined driver contribution, not eight independent ones that
// clobber each other in the same driver slot), resolves each touched
// signal's drivers, and returns the ids whose resolved value actually
// changed.
func (k *Kernel) commitPending(pending []simstate.PendingUpdate) ([]simstate.SimSignalId, error) {
	writesBySignal := map[simstate.SimSignalId][]driver.BitRange{}
	var order []simstate.SimSignalId
	ensureOrder := func(id simstate.SimSignalId) {
		if _, seen := writesBySignal[id]; !seen {
			writesBySignal[id] = nil
			order = append(order, id)
		}
	}

	overlays := map[sliceKey]fourstate.LogicVec{}
	strengths := map[sliceKey]fourstate.DriveStrength{}
	var sliceOrder []sliceKey

	for _, u := range pending {
		writes, err := k.expandRef(u.Target, u.Value)
		if err != nil {
			return nil, err
		}
		for _, w := range writes {
			ensureOrder(w.id)
			if !w.isSlice {
				slot := k.slotFor(w.id, u.ProcessIndex)
				writesBySignal[w.id] = append(writesBySignal[w.id], driver.BitRange{
					DriverIndex: slot,
					Value:       w.value,
					Strength:    u.Strength,
				})
				continue
			}

			key := sliceKey{id: w.id, pid: u.ProcessIndex}
			base, seen := overlays[key]
			if !seen {
				sig, err := k.state.Signal(w.id)
				if err != nil {
					return nil, err
				}
				base = sig.Current
				if base.Width() != sig.Width {
					base = fourstate.NewX(sig.Width)
				}
				sliceOrder = append(sliceOrder, key)
			}
			overlays[key] = overlayBits(base, w.value, w.sliceLo)
			strengths[key] = u.Strength
		}
	}

	for _, key := range sliceOrder {
		slot := k.slotFor(key.id, key.pid)
		writesBySignal[key.id] = append(writesBySignal[key.id], driver.BitRange{
			DriverIndex: slot,
			Value:       overlays[key],
			Strength:    strengths[key],
		})
	}

	var changed []simstate.SimSignalId
	for _, id := range order {
		sig, err := k.state.Signal(id)
		if err != nil {
			return nil, err
		}
		resolved := driver.Resolve(sig, writesBySignal[id])
		if !resolved.Equal(sig.Current) {
			sig.Previous = sig.Current
			sig.Current = resolved
			changed = append(changed, id)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed, nil
}

// overlayBits returns base with slice written starting at bit lo,
// leaving every bit outside the slice untouched.
func overlayBits(base fourstate.LogicVec, slice fourstate.LogicVec, lo int) fourstate.LogicVec {
	bits := append([]fourstate.Logic(nil), base.Bits...)
	for i := 0; i < slice.Width(); i++ {
		pos := lo + i
		if pos >= 0 && pos < len(bits) {
			bits[pos] = slice.Bits[i]
		}
	}
	return fourstate.LogicVec{Bits: bits}
}

// slotFor assigns a stable per-(signal, driver) slot index, so a driver
// that does not write in a given delta cycle keeps holding the value it
// last drove (internal/driver's contract).
func (k *Kernel) slotFor(id simstate.SimSignalId, driverKey int) int {
	m, ok := k.driverSlots[id]
	if !ok {
		m = map[int]int{}
		k.driverSlots[id] = m
	}
	if idx, ok := m[driverKey]; ok {
		return idx
	}
	idx := k.nextSlot[id]
	m[driverKey] = idx
	k.nextSlot[id] = idx + 1
	return idx
}

// expandRef splits a (possibly sliced or concatenated) assignment target
// into one or more base-signal writes. A slice write is returned as its
// narrow value plus the bit offset it targets (isSlice/sliceLo);
// commitPending overlays it onto the signal's current value after
// merging it with any other slice write the same process makes to the
// same signal in this delta, so bits outside every slice keep their last
// resolved value rather than floating to zero.
func (k *Kernel) expandRef(ref ir.SignalRef, value fourstate.LogicVec) ([]targetWrite, error) {
	switch r := ref.(type) {
	case ir.SigID:
		id := simstate.SimSignalId(r.ID)
		sig, err := k.state.Signal(id)
		if err != nil {
			return nil, err
		}
		return []targetWrite{{id: id, value: value.ZeroExtend(sig.Width)}}, nil

	case ir.SigSlice:
		id := simstate.SimSignalId(r.ID)
		width := r.Hi - r.Lo + 1
		bits := make([]fourstate.Logic, width)
		for i := range bits {
			if i < value.Width() {
				bits[i] = value.Bits[i]
			} else {
				bits[i] = fourstate.X
			}
		}
		return []targetWrite{{id: id, value: fourstate.LogicVec{Bits: bits}, isSlice: true, sliceLo: r.Lo}}, nil

	case ir.SigConcat:
		var out []targetWrite
		pos := value.Width()
		for _, part := range r.Parts {
			w, err := k.refWidth(part)
			if err != nil {
				return nil, err
			}
			if pos-w < 0 {
				return nil, fmt.Errorf("kernel: concat target total width exceeds assigned value width")
			}
			sub := fourstate.LogicVec{Bits: append([]fourstate.Logic(nil), value.Bits[pos-w:pos]...)}
			pos -= w
			writes, err := k.expandRef(part, sub)
			if err != nil {
				return nil, err
			}
			out = append(out, writes...)
		}
		return out, nil

	case ir.SigConst:
		return nil, fmt.Errorf("kernel: cannot assign to a constant reference")

	default:
		return nil, fmt.Errorf("kernel: unknown signal ref type %T", ref)
	}
}

func (k *Kernel) refWidth(ref ir.SignalRef) (int, error) {
	switch r := ref.(type) {
	case ir.SigID:
		sig, err := k.state.Signal(simstate.SimSignalId(r.ID))
		if err != nil {
			return 0, err
		}
		return sig.Width, nil
	case ir.SigSlice:
		return r.Hi - r.Lo + 1, nil
	case ir.SigConcat:
		total := 0
		for _, p := range r.Parts {
			w, err := k.refWidth(p)
			if err != nil {
				return 0, err
			}
			total += w
		}
		return total, nil
	case ir.SigConst:
		return r.Value.Width(), nil
	default:
		return 0, fmt.Errorf("kernel: unknown signal ref type %T", ref)
	}
}
