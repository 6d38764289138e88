package fourstate

import "testing"

func TestBitwiseTruthTables(t *testing.T) {
	tests := []struct {
		name     string
		op       func(a, b LogicVec) LogicVec
		a, b     Logic
		expected Logic
	}{
		{"and 0&x", And, Zero, X, Zero},
		{"and 1&x", And, One, X, X},
		{"and z&z treated as x", And, Z, Z, X},
		{"or 1|x", Or, One, X, One},
		{"or 0|x", Or, Zero, X, X},
		{"xor 1^1", Xor, One, One, Zero},
		{"xor x^0", Xor, X, Zero, X},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.op(LogicVec{Bits: []Logic{tt.a}}, LogicVec{Bits: []Logic{tt.b}})
			if got.Bits[0] != tt.expected {
				t.Fatalf("got %v, want %v", got.Bits[0], tt.expected)
			}
		})
	}
}

func TestNot(t *testing.T) {
	v := LogicVec{Bits: []Logic{Zero, One, X, Z}}
	got := Not(v)
	want := []Logic{One, Zero, X, X}
	for i, w := range want {
		if got.Bits[i] != w {
			t.Fatalf("bit %d: got %v want %v", i, got.Bits[i], w)
		}
	}
}

func TestToUint64(t *testing.T) {
	v := FromUint64(0xAB, 8)
	n, ok := v.ToUint64()
	if !ok || n != 0xAB {
		t.Fatalf("got %d,%v want 0xAB,true", n, ok)
	}

	v2 := LogicVec{Bits: []Logic{Zero, X}}
	if _, ok := v2.ToUint64(); ok {
		t.Fatalf("expected unknown conversion to fail")
	}
}

func TestSliceOutOfRange(t *testing.T) {
	v := FromUint64(0x0F, 4)
	s := v.Slice(7, 4)
	if !s.HasUnknown() || s.Width() != 4 {
		t.Fatalf("out-of-range slice should be X of requested width, got %+v", s)
	}
}

func TestSignedZeroExtendVsSignExtend(t *testing.T) {
	neg := FromUint64(0x8, 4) // 1000
	zx := neg.ZeroExtend(8)
	sx := neg.SignExtend(8)
	if zx.Bits[7] != Zero {
		t.Fatalf("zero extend must pad with 0")
	}
	if sx.Bits[7] != One {
		t.Fatalf("sign extend must replicate MSB")
	}
}

func TestConcatAndRepeat(t *testing.T) {
	a := FromUint64(0x3, 2) // 11
	b := FromUint64(0x0, 2) // 00
	c := Concat(a, b)
	if c.Width() != 4 {
		t.Fatalf("concat width = %d, want 4", c.Width())
	}
	n, _ := c.ToUint64()
	if n != 0xC {
		t.Fatalf("concat value = %x, want c", n)
	}

	r := Repeat(FromUint64(1, 1), 3)
	n2, _ := r.ToUint64()
	if n2 != 0x7 {
		t.Fatalf("repeat value = %x, want 7", n2)
	}
}

func TestSimTimeOrdering(t *testing.T) {
	a := SimTime{FS: 10, Delta: 2}
	b := SimTime{FS: 10, Delta: 3}
	c := SimTime{FS: 11, Delta: 0}
	if !a.Before(b) || !b.Before(c) {
		t.Fatalf("expected a < b < c")
	}
	if a.Compare(a) != 0 {
		t.Fatalf("expected equal time to compare 0")
	}
}

func TestSizedZeroLiteralWidth(t *testing.T) {
	// Scenario 6: a 24-bit zero literal must stay 24 bits wide, not collapse
	// to a single-bit zero.
	v := FromUint64(0, 24)
	if v.Width() != 24 {
		t.Fatalf("width = %d, want 24", v.Width())
	}
}
