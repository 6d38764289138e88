package waveform

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/minz/hdlsim/internal/simstate"
	"github.com/minz/hdlsim/pkg/fourstate"
)

// fstMagic tags the FST-shaped binary format, mirroring the 8-byte magic
// the teacher's own pkg/tas recording format stamps on every file.
var fstMagic = [8]byte{'H', 'D', 'L', 'F', 'S', 'T', 0, 0}

const fstVersion = 1

// fstHeader is written with encoding/binary at a fixed size, the same
// approach pkg/tas/tas_format.go uses for its own header.
type fstHeader struct {
	Magic       [8]byte
	Version     uint16
	SignalCount uint16
	TimescaleFS uint64
	Checksum    uint32
}

// BinaryWriter emits the FST-shaped format: a fixed header, a signal
// table, then delta-encoded varint timestamps and length-prefixed value
// payloads, the whole thing gzip-compressed on Close.
type BinaryWriter struct {
	buf         bytes.Buffer
	out         io.Writer
	signals     []SignalInfo
	lastFS      uint64
	timescaleFS uint64
}

// NewBinaryWriter wraps out. Call WriteHeader before any other method;
// the compressed stream is only flushed to out when Close is called.
func NewBinaryWriter(out io.Writer) *BinaryWriter {
	return &BinaryWriter{out: out}
}

func (bw *BinaryWriter) WriteHeader(timescaleFS uint64, signals []SignalInfo) error {
	bw.signals = signals
	writeUvarint(&bw.buf, uint64(len(signals)))
	for _, s := range signals {
		writeUvarint(&bw.buf, uint64(s.ID))
		writeUvarint(&bw.buf, uint64(s.Width))
		nameBytes := []byte(s.Name)
		writeUvarint(&bw.buf, uint64(len(nameBytes)))
		bw.buf.Write(nameBytes)
	}
	bw.lastFS = 0
	bw.timescaleFS = timescaleFS
	return nil
}

func (bw *BinaryWriter) WriteChanges(timeFS uint64, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	deltaFS := timeFS - bw.lastFS
	writeUvarint(&bw.buf, deltaFS)
	writeUvarint(&bw.buf, uint64(len(changes)))
	for _, c := range changes {
		writeUvarint(&bw.buf, uint64(c.ID))
		writeBits(&bw.buf, c.Value)
	}
	bw.lastFS = timeFS
	return nil
}

// Close assembles the fixed header, computes its checksum over the body,
// gzip-compresses header and body together, and writes the result to the underlying
// writer. The BinaryWriter must not be used afterward.
func (bw *BinaryWriter) Close() error {
	body := bw.buf.Bytes()
	header := fstHeader{
		Magic:       fstMagic,
		Version:     fstVersion,
		SignalCount: uint16(len(bw.signals)),
		TimescaleFS: bw.timescaleFS,
		Checksum:    crc32.ChecksumIEEE(body),
	}

	gz := gzip.NewWriter(bw.out)
	if err := binary.Write(gz, binary.LittleEndian, header); err != nil {
		gz.Close()
		return err
	}
	if _, err := gz.Write(body); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], v)
	buf.Write(scratch[:n])
}

func writeBits(buf *bytes.Buffer, v fourstate.LogicVec) {
	writeUvarint(buf, uint64(v.Width()))
	// Pack two bits per byte (4 states fit in 2 bits), MSB-first within
	// each byte, matching the dense encoding an FST-style compressed
	// dump uses instead of one byte per bit.
	var cur byte
	nbits := 0
	for i := v.Width() - 1; i >= 0; i-- {
		cur = (cur << 2) | bitCode(v.Bits[i])
		nbits++
		if nbits == 4 {
			buf.WriteByte(cur)
			cur = 0
			nbits = 0
		}
	}
	if nbits > 0 {
		cur <<= uint(2 * (4 - nbits))
		buf.WriteByte(cur)
	}
}

func bitCode(l fourstate.Logic) byte {
	switch l {
	case fourstate.Zero:
		return 0
	case fourstate.One:
		return 1
	case fourstate.X:
		return 2
	default:
		return 3
	}
}

func codeToBit(c byte) fourstate.Logic {
	switch c & 0x3 {
	case 0:
		return fourstate.Zero
	case 1:
		return fourstate.One
	case 2:
		return fourstate.X
	default:
		return fourstate.Z
	}
}

// ParseBinary decodes a BinaryWriter-produced (gzip-compressed) stream.
func ParseBinary(r io.Reader) (*Recording, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("waveform: not a gzip-compressed FST stream: %w", err)
	}
	defer gz.Close()

	var header fstHeader
	if err := binary.Read(gz, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("waveform: short header: %w", err)
	}
	if header.Magic != fstMagic {
		return nil, fmt.Errorf("waveform: bad magic %v", header.Magic)
	}
	if header.Version != fstVersion {
		return nil, fmt.Errorf("waveform: unsupported version %d", header.Version)
	}

	body, err := io.ReadAll(gz)
	if err != nil {
		return nil, err
	}
	if crc32.ChecksumIEEE(body) != header.Checksum {
		return nil, fmt.Errorf("waveform: checksum mismatch, file is corrupt")
	}

	br := bytes.NewReader(body)
	rec := &Recording{TimescaleFS: header.TimescaleFS}

	signalCount, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < signalCount; i++ {
		id, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, err
		}
		width, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, err
		}
		nameLen, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, err
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(br, nameBytes); err != nil {
			return nil, err
		}
		rec.Signals = append(rec.Signals, SignalInfo{ID: simstate.SimSignalId(id), Width: int(width), Name: string(nameBytes)})
	}

	var curFS uint64
	for {
		deltaFS, err := binary.ReadUvarint(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		curFS += deltaFS
		count, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i < count; i++ {
			id, err := binary.ReadUvarint(br)
			if err != nil {
				return nil, err
			}
			v, err := readBits(br)
			if err != nil {
				return nil, err
			}
			rec.Changes = append(rec.Changes, Change{TimeFS: curFS, ID: simstate.SimSignalId(id), Value: v})
		}
	}
	return rec, nil
}

func readBits(br *bytes.Reader) (fourstate.LogicVec, error) {
	width64, err := binary.ReadUvarint(br)
	if err != nil {
		return fourstate.LogicVec{}, err
	}
	width := int(width64)
	nbytes := (width + 3) / 4
	bits := make([]fourstate.Logic, width)
	pos := width - 1
	for i := 0; i < nbytes; i++ {
		b, err := br.ReadByte()
		if err != nil {
			return fourstate.LogicVec{}, err
		}
		for shift := 6; shift >= 0 && pos >= 0; shift -= 2 {
			bits[pos] = codeToBit(b >> uint(shift))
			pos--
		}
	}
	return fourstate.LogicVec{Bits: bits}, nil
}
