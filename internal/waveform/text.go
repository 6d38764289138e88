// Package waveform implements the kernel's two recording formats
// (spec.md §6): a VCD-shaped text format, and an FST-shaped binary format
// in binary.go grounded on the teacher's pkg/tas recording layout. Both
// satisfy the same round-trip law: writing a sequence of time steps and
// value changes, then reading the result back, reproduces the same
// sequence.
package waveform

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/minz/hdlsim/internal/simstate"
	"github.com/minz/hdlsim/pkg/fourstate"
)

// SignalInfo describes one traced signal for the header of either format.
type SignalInfo struct {
	ID    simstate.SimSignalId
	Name  string
	Width int
}

// Change is one recorded value change at a point in simulation time.
type Change struct {
	TimeFS uint64
	ID     simstate.SimSignalId
	Value  fourstate.LogicVec
}

// Recording is the decoded contents of either format, used by tests and
// tools to compare a round trip against the original stream.
type Recording struct {
	TimescaleFS uint64
	Signals     []SignalInfo
	Initial     []Change
	Changes     []Change
}

// TextWriter emits the VCD-shaped format: $timescale/$var/$enddefinitions
// preamble, `$dumpvars` initial values, then `#<time>` markers followed by
// one value-change line per changed signal.
type TextWriter struct {
	w        *bufio.Writer
	codes    map[simstate.SimSignalId]string
	header   bool
	lastTime uint64
	haveTime bool
}

// NewTextWriter wraps w. Call WriteHeader before any other method.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: bufio.NewWriter(w), codes: map[simstate.SimSignalId]string{}}
}

// WriteHeader writes the $timescale/$scope/$var preamble. signals is
// written in the given order; identifier codes are assigned deterministically
// in that same order so two writes of the same signal list produce byte-identical
// headers.
func (tw *TextWriter) WriteHeader(timescaleFS uint64, scope string, signals []SignalInfo) error {
	fmt.Fprintf(tw.w, "$timescale %d fs $end\n", timescaleFS)
	fmt.Fprintf(tw.w, "$scope module %s $end\n", scope)
	for _, s := range signals {
		code := identCode(len(tw.codes))
		tw.codes[s.ID] = code
		kind := "wire"
		fmt.Fprintf(tw.w, "$var %s %d %s %s $end\n", kind, s.Width, code, s.Name)
	}
	fmt.Fprintf(tw.w, "$upscope $end\n")
	fmt.Fprintf(tw.w, "$enddefinitions $end\n")
	tw.header = true
	return tw.w.Flush()
}

// WriteInitial writes the $dumpvars block: every traced signal's value at
// simulation time 0.
func (tw *TextWriter) WriteInitial(values []Change) error {
	fmt.Fprintf(tw.w, "$dumpvars\n")
	for _, c := range values {
		if err := tw.writeValue(c.ID, c.Value); err != nil {
			return err
		}
	}
	fmt.Fprintf(tw.w, "$end\n")
	tw.lastTime = 0
	tw.haveTime = true
	return tw.w.Flush()
}

// WriteChanges writes one `#<time>` marker followed by every change at
// that instant. Times must be written in non-decreasing order (the
// scheduler's own invariant — spec.md §3).
func (tw *TextWriter) WriteChanges(timeFS uint64, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	if tw.haveTime && timeFS < tw.lastTime {
		return fmt.Errorf("waveform: time went backwards (%d after %d)", timeFS, tw.lastTime)
	}
	fmt.Fprintf(tw.w, "#%d\n", timeFS)
	for _, c := range changes {
		if err := tw.writeValue(c.ID, c.Value); err != nil {
			return err
		}
	}
	tw.lastTime = timeFS
	tw.haveTime = true
	return tw.w.Flush()
}

func (tw *TextWriter) writeValue(id simstate.SimSignalId, v fourstate.LogicVec) error {
	code, ok := tw.codes[id]
	if !ok {
		return fmt.Errorf("waveform: value change for untraced signal id %d", id)
	}
	if v.Width() == 1 {
		fmt.Fprintf(tw.w, "%s%s\n", v.Bits[0].String(), code)
		return nil
	}
	fmt.Fprintf(tw.w, "b%s %s\n", v.Format(2), code)
	return nil
}

// identCode assigns VCD-style printable identifier codes: '!'..'~' single
// chars, then two-char combinations, matching the dense code space real
// VCD dumpers use to keep files small.
func identCode(index int) string {
	const first, last = '!', '~'
	const base = last - first + 1
	if index < base {
		return string(rune(first + index))
	}
	hi := index/base - 1
	lo := index % base
	return identCode(hi) + string(rune(first+lo))
}

// ParseText decodes a TextWriter-produced stream back into a Recording.
func ParseText(r io.Reader) (*Recording, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	rec := &Recording{}
	codeToID := map[string]simstate.SimSignalId{}
	widthByID := map[simstate.SimSignalId]int{}
	var curTime uint64
	haveTime := false
	inDumpvars := false

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "$timescale"):
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return nil, fmt.Errorf("waveform: malformed $timescale line %q", line)
			}
			ts, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("waveform: bad timescale %q: %w", fields[1], err)
			}
			rec.TimescaleFS = ts

		case strings.HasPrefix(line, "$var"):
			fields := strings.Fields(line)
			if len(fields) < 6 {
				return nil, fmt.Errorf("waveform: malformed $var line %q", line)
			}
			width, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("waveform: bad width %q: %w", fields[2], err)
			}
			code := fields[3]
			name := fields[4]
			id := simstate.SimSignalId(len(rec.Signals))
			codeToID[code] = id
			widthByID[id] = width
			rec.Signals = append(rec.Signals, SignalInfo{ID: id, Name: name, Width: width})

		case line == "$dumpvars":
			inDumpvars = true
			curTime = 0
			haveTime = true

		case line == "$end", strings.HasPrefix(line, "$scope"), strings.HasPrefix(line, "$upscope"),
			strings.HasPrefix(line, "$enddefinitions"):
			if line == "$end" {
				inDumpvars = false
			}

		case strings.HasPrefix(line, "#"):
			t, err := strconv.ParseUint(line[1:], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("waveform: bad time marker %q: %w", line, err)
			}
			curTime = t
			haveTime = true

		default:
			change, err := parseValueLine(line, codeToID, widthByID)
			if err != nil {
				return nil, err
			}
			if !haveTime {
				return nil, fmt.Errorf("waveform: value change %q before any time marker", line)
			}
			change.TimeFS = curTime
			if inDumpvars {
				rec.Initial = append(rec.Initial, change)
			} else {
				rec.Changes = append(rec.Changes, change)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.Slice(rec.Signals, func(i, j int) bool { return rec.Signals[i].ID < rec.Signals[j].ID })
	return rec, nil
}

func parseValueLine(line string, codeToID map[string]simstate.SimSignalId, widthByID map[simstate.SimSignalId]int) (Change, error) {
	if strings.HasPrefix(line, "b") {
		parts := strings.Fields(line[1:])
		if len(parts) != 2 {
			return Change{}, fmt.Errorf("waveform: malformed binary value line %q", line)
		}
		id, ok := codeToID[parts[1]]
		if !ok {
			return Change{}, fmt.Errorf("waveform: unknown identifier code %q", parts[1])
		}
		v, err := parseBits(parts[0])
		if err != nil {
			return Change{}, err
		}
		width := widthByID[id]
		if v.Width() < width {
			v = v.ZeroExtend(width)
		}
		return Change{ID: id, Value: v}, nil
	}
	if len(line) < 2 {
		return Change{}, fmt.Errorf("waveform: malformed value line %q", line)
	}
	bit, err := parseBit(line[0])
	if err != nil {
		return Change{}, err
	}
	id, ok := codeToID[line[1:]]
	if !ok {
		return Change{}, fmt.Errorf("waveform: unknown identifier code %q", line[1:])
	}
	return Change{ID: id, Value: fourstate.LogicVec{Bits: []fourstate.Logic{bit}}}, nil
}

func parseBits(s string) (fourstate.LogicVec, error) {
	bits := make([]fourstate.Logic, len(s))
	for i, r := range s {
		b, err := parseBit(byte(r))
		if err != nil {
			return fourstate.LogicVec{}, err
		}
		bits[len(s)-1-i] = b
	}
	return fourstate.LogicVec{Bits: bits}, nil
}

func parseBit(c byte) (fourstate.Logic, error) {
	switch c {
	case '0':
		return fourstate.Zero, nil
	case '1':
		return fourstate.One, nil
	case 'x', 'X':
		return fourstate.X, nil
	case 'z', 'Z':
		return fourstate.Z, nil
	default:
		return 0, fmt.Errorf("waveform: invalid bit character %q", c)
	}
}
