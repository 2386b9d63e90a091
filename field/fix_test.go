/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package field

import (
	"math"
	"testing"
)

// assertClose checks two reals agree within one unit of resolution.
func assertClose(t *testing.T, got, want float64, ctx string) {
	t.Helper()
	if math.Abs(got-want) > 1.0/float64(Scale) {
		t.Errorf("%s: got %g, want %g", ctx, got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, i := range []int64{0, 1, -1, 2, 7, -13, 1000, -100000, 1 << 40, -(1 << 40)} {
		f := FromInt(i)
		assertClose(t, f.Float64(), float64(i), "FromInt")
		if f.Int() != i {
			t.Errorf("Int round trip: got %d, want %d", f.Int(), i)
		}
	}
	for _, r := range [][2]int64{{1, 2}, {-1, 2}, {3, 4}, {22, 7}, {-355, 113}, {1, 65536}} {
		f := FromRatio(r[0], r[1])
		assertClose(t, f.Float64(), float64(r[0])/float64(r[1]), "FromRatio")
	}
}

func TestFieldAxioms(t *testing.T) {
	vals := []Fix{FromInt(0), FromInt(1), FromInt(-1), FromRatio(3, 2), FromInt(12345), FromRatio(-7, 16)}
	for _, a := range vals {
		for _, b := range vals {
			if !a.Add(b).Equal(b.Add(a)) {
				t.Errorf("add not commutative: %v %v", a, b)
			}
			if !a.Mul(b).Equal(b.Mul(a)) {
				t.Errorf("mul not commutative: %v %v", a, b)
			}
			for _, c := range vals {
				if !a.Add(b).Add(c).Equal(a.Add(b.Add(c))) {
					t.Errorf("add not associative: %v %v %v", a, b, c)
				}
				if !a.Mul(b).Mul(c).Equal(a.Mul(b.Mul(c))) {
					t.Errorf("mul not associative: %v %v %v", a, b, c)
				}
				if !a.Mul(b.Add(c)).Equal(a.Mul(b).Add(a.Mul(c))) {
					t.Errorf("mul not distributive: %v %v %v", a, b, c)
				}
			}
		}
	}
}

func TestSubNeg(t *testing.T) {
	a, b := FromInt(10), FromInt(3)
	if !a.Sub(b).Equal(FromInt(7)) {
		t.Errorf("10-3: got %v", a.Sub(b))
	}
	if !b.Sub(a).Equal(FromInt(-7)) {
		t.Errorf("3-10: got %v", b.Sub(a))
	}
	if !a.Add(a.Neg()).IsZero() {
		t.Errorf("a + (-a) != 0")
	}
	if !FromInt(0).Neg().IsZero() {
		t.Errorf("-0 != 0")
	}
}

func TestInv(t *testing.T) {
	for _, i := range []int64{1, 2, -2, 16, 12345, -7} {
		a := FromInt(i)
		p := a.Mul(a.Inv())
		if !p.Equal(One) {
			t.Errorf("x * 1/x != 1 for x=%d: got %v", i, p)
		}
	}
	// fractional inverse: 1/(1/2) == 2
	if !FromRatio(1, 2).Inv().Equal(FromInt(2)) {
		t.Errorf("inv(1/2): got %v", FromRatio(1, 2).Inv())
	}
}

func TestSignAndRelu(t *testing.T) {
	if FromInt(5).IsNeg() || !FromInt(-5).IsNeg() || FromInt(0).IsNeg() {
		t.Errorf("sign test broken")
	}
	if !FromInt(-5).Relu().IsZero() {
		t.Errorf("relu(-5) != 0")
	}
	if !FromInt(5).Relu().Equal(FromInt(5)) {
		t.Errorf("relu(5) != 5")
	}
	if !FromRatio(-1, 65536).Relu().IsZero() {
		t.Errorf("relu of smallest negative != 0")
	}
}

func TestOrdering(t *testing.T) {
	if !FromInt(-1).Less(FromInt(1)) {
		t.Errorf("-1 < 1 failed")
	}
	if !FromInt(2).Less(FromInt(3)) {
		t.Errorf("2 < 3 failed")
	}
	if FromInt(3).Less(FromInt(2)) {
		t.Errorf("3 < 2 passed")
	}
	if !FromInt(-3).Less(FromInt(-2)) && FromInt(-2).Less(FromInt(-3)) {
		// complement ordering inside the negative range is reversed raw order
		t.Errorf("negative ordering broken")
	}
}

func TestDot(t *testing.T) {
	a := []Fix{FromInt(1), FromInt(2), FromInt(-3)}
	b := []Fix{FromInt(4), FromRatio(1, 2), FromInt(1)}
	// 1*4 + 2*0.5 + (-3)*1 = 2
	if !Dot(a, b).Equal(FromInt(2)) {
		t.Errorf("dot: got %v, want 2", Dot(a, b))
	}
	defer func() {
		if recover() == nil {
			t.Errorf("length mismatch did not panic")
		}
	}()
	Dot(a, b[:2])
}

func TestBytesRoundTrip(t *testing.T) {
	for _, f := range []Fix{Zero, One, FromInt(-12345), FromRatio(317, 11)} {
		if g := FixFromBytes(f.Bytes()); !g.Equal(f) {
			t.Errorf("bytes round trip: got %v, want %v", g, f)
		}
	}
}

func TestHashPairDeterministic(t *testing.T) {
	a, b := FromInt(3), FromInt(5)
	h1, h2 := HashPair(a, b), HashPair(a, b)
	if !h1.Equal(h2) {
		t.Errorf("hash not deterministic")
	}
	if HashPair(a, b).Equal(HashPair(b, a)) {
		t.Errorf("hash should not be symmetric")
	}
	// (3+5)^2 + 7*3 + 1 = 64 + 21 + 1 = 86
	if !h1.Equal(FromInt(86)) {
		t.Errorf("hash value: got %v, want 86", h1)
	}
}
