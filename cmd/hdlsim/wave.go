package main

import (
	"os"
	"sort"

	"github.com/minz/hdlsim/internal/simstate"
	"github.com/minz/hdlsim/internal/waveform"
	"github.com/minz/hdlsim/pkg/kernel"
)

// waveRecorder snapshots a kernel's signals before and after every step,
// emitting changed values to either waveform format.
type waveRecorder struct {
	k        *kernel.Kernel
	file     *os.File
	text     *waveform.TextWriter
	binary   *waveform.BinaryWriter
	signals  []waveform.SignalInfo
	lastSeen map[simstate.SimSignalId]string // formatted value, for change detection
}

func newWaveRecorder(path string, binary bool, k *kernel.Kernel) (*waveRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	flat := k.AllSignals()
	signals := make([]waveform.SignalInfo, len(flat))
	for i, s := range flat {
		signals[i] = waveform.SignalInfo{ID: s.ID, Name: s.Name, Width: s.Width}
	}

	wr := &waveRecorder{k: k, file: f, signals: signals, lastSeen: map[simstate.SimSignalId]string{}}
	if binary {
		wr.binary = waveform.NewBinaryWriter(f)
		if err := wr.binary.WriteHeader(k.Timescale(), signals); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		wr.text = waveform.NewTextWriter(f)
		if err := wr.text.WriteHeader(k.Timescale(), "top", signals); err != nil {
			f.Close()
			return nil, err
		}
	}
	return wr, nil
}

// WriteInitial records every signal's value at simulation time zero.
func (wr *waveRecorder) WriteInitial() error {
	changes := wr.snapshot()
	if wr.text != nil {
		return wr.text.WriteInitial(changes)
	}
	return wr.binary.WriteChanges(0, changes)
}

// WriteStep records every signal whose value differs from the last
// recorded snapshot, at the kernel's current time.
func (wr *waveRecorder) WriteStep() error {
	changes := wr.changedSince()
	if len(changes) == 0 {
		return nil
	}
	if wr.text != nil {
		return wr.text.WriteChanges(wr.k.NowFS(), changes)
	}
	return wr.binary.WriteChanges(wr.k.NowFS(), changes)
}

func (wr *waveRecorder) snapshot() []waveform.Change {
	flat := wr.k.AllSignals()
	changes := make([]waveform.Change, len(flat))
	for i, s := range flat {
		changes[i] = waveform.Change{TimeFS: 0, ID: s.ID, Value: s.Current}
		wr.lastSeen[s.ID] = s.Current.Format(2)
	}
	return changes
}

func (wr *waveRecorder) changedSince() []waveform.Change {
	flat := wr.k.AllSignals()
	var changes []waveform.Change
	for _, s := range flat {
		formatted := s.Current.Format(2)
		if wr.lastSeen[s.ID] == formatted {
			continue
		}
		wr.lastSeen[s.ID] = formatted
		changes = append(changes, waveform.Change{TimeFS: wr.k.NowFS(), ID: s.ID, Value: s.Current})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].ID < changes[j].ID })
	return changes
}

func (wr *waveRecorder) Close() error {
	var err error
	if wr.binary != nil {
		err = wr.binary.Close()
	}
	return errOr(wr.file.Close(), err)
}

func errOr(a, b error) error {
	if b != nil {
		return b
	}
	return a
}
