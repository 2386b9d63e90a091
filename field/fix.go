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
	"fmt"

	"github.com/holiman/uint256"
)

/*

fixed-point arithmetic inside the target prime field

All numeric work in this project (feature tensors, policy weights, scores)
happens in the same 251-bit prime field the target machine computes in, as
scaled integers: a real value x is stored as x*Scale mod p. No floating
point is ever touched on any decision path, so results are bit-identical
across machines and across repeated runs.

Negative values are represented as field complements; the canonical
half-point of the field serves as the sign boundary.

*/

// ScaleBits is the fractional resolution; Scale = 2^16.
const ScaleBits = 16
const Scale = uint64(1) << ScaleBits

// prime is 2^251 + 17*2^192 + 1
var prime = uint256.MustFromHex("0x800000000000011000000000000000000000000000000000000000000000001")

// halfPrime is (prime-1)/2; canonical representatives above it count as negative
var halfPrime *uint256.Int

// invScale is Scale^-1 mod prime (one rescale after every multiplication)
var invScale *uint256.Int

// scaleSq is Scale^2 mod prime (used by Inv: 1/(x*S) * S^2 = S/x)
var scaleSq *uint256.Int

func init() {
	one := uint256.NewInt(1)
	halfPrime = new(uint256.Int).Rsh(new(uint256.Int).Sub(prime, one), 1)
	pm2 := new(uint256.Int).Sub(prime, uint256.NewInt(2))
	invScale = modpow(uint256.NewInt(Scale), pm2)
	scaleSq = new(uint256.Int).MulMod(uint256.NewInt(Scale), uint256.NewInt(Scale), prime)
}

// modpow computes base^exp mod prime by square-and-multiply
func modpow(base, exp *uint256.Int) *uint256.Int {
	result := uint256.NewInt(1)
	b := new(uint256.Int).Mod(base, prime)
	for i := exp.BitLen() - 1; i >= 0; i-- {
		result.MulMod(result, result, prime)
		if exp[i/64]>>(uint(i)%64)&1 != 0 {
			result.MulMod(result, b, prime)
		}
	}
	return result
}

// Fix is one fixed-point field element. The zero value is the number 0.
type Fix struct {
	v uint256.Int
}

var Zero = Fix{}
var One = FromInt(1)

// FromInt converts an integer to its fixed-point representation
func FromInt(i int64) Fix {
	var f Fix
	if i >= 0 {
		f.v.SetUint64(uint64(i))
		f.v.Lsh(&f.v, ScaleBits)
		f.v.Mod(&f.v, prime)
	} else {
		f.v.SetUint64(uint64(-i))
		f.v.Lsh(&f.v, ScaleBits)
		f.v.Mod(&f.v, prime)
		f.v.Sub(prime, &f.v)
	}
	return f
}

// FromRatio converts num/den; den must be positive. The quotient is rounded
// towards zero at the fixed-point resolution.
func FromRatio(num, den int64) Fix {
	if den <= 0 {
		panic("field: FromRatio denominator must be positive")
	}
	neg := num < 0
	if neg {
		num = -num
	}
	var f Fix
	f.v.SetUint64(uint64(num))
	f.v.Lsh(&f.v, ScaleBits)
	f.v.Div(&f.v, uint256.NewInt(uint64(den)))
	f.v.Mod(&f.v, prime)
	if neg && !f.v.IsZero() {
		f.v.Sub(prime, &f.v)
	}
	return f
}

// FromRaw interprets a raw field element (already scaled) as a Fix.
func FromRaw(u *uint256.Int) Fix {
	var f Fix
	f.v.Mod(u, prime)
	return f
}

// IsNeg reports the emulated sign: canonical representatives above the
// field half-point count as negative.
func (a Fix) IsNeg() bool {
	return a.v.Gt(halfPrime)
}

func (a Fix) IsZero() bool {
	return a.v.IsZero()
}

func (a Fix) Equal(b Fix) bool {
	return a.v.Eq(&b.v)
}

func (a Fix) Add(b Fix) Fix {
	var f Fix
	f.v.AddMod(&a.v, &b.v, prime)
	return f
}

func (a Fix) Sub(b Fix) Fix {
	var f Fix
	f.v.Sub(prime, &b.v)
	f.v.AddMod(&a.v, &f.v, prime)
	return f
}

func (a Fix) Neg() Fix {
	if a.v.IsZero() {
		return a
	}
	var f Fix
	f.v.Sub(prime, &a.v)
	return f
}

// Mul is a field multiplication followed by one rescale (multiplication by
// the precomputed inverse of Scale).
func (a Fix) Mul(b Fix) Fix {
	var f Fix
	f.v.MulMod(&a.v, &b.v, prime)
	f.v.MulMod(&f.v, invScale, prime)
	return f
}

// MulInt multiplies by an unscaled integer (no rescale needed)
func (a Fix) MulInt(i int64) Fix {
	return a.mulRaw(FromInt(i).rawUnscaled())
}

func (a Fix) mulRaw(b *uint256.Int) Fix {
	var f Fix
	f.v.MulMod(&a.v, b, prime)
	return f
}

func (a Fix) rawUnscaled() *uint256.Int {
	u := new(uint256.Int).MulMod(&a.v, invScale, prime)
	return u
}

// Inv is the field inverse brought back into the fixed-point domain:
// (x*S)^-1 * S^2 represents 1/x. Inverting zero panics (programmer error,
// the field has no zero inverse).
func (a Fix) Inv() Fix {
	if a.v.IsZero() {
		panic("field: inverse of zero")
	}
	pm2 := new(uint256.Int).Sub(prime, uint256.NewInt(2))
	var f Fix
	f.v.Set(modpow(&a.v, pm2))
	f.v.MulMod(&f.v, scaleSq, prime)
	return f
}

// Relu clamps negatives to zero using the half-point sign test
func (a Fix) Relu() Fix {
	if a.IsNeg() {
		return Zero
	}
	return a
}

// MaxDotLen statically bounds accumulation length. Field arithmetic never
// overflows the machine, but long accumulations of large magnitudes could
// wrap past the half-point and flip the emulated sign; callers keep inputs
// inside the documented magnitude bound, and this constant keeps the
// accumulation count itself bounded by construction.
const MaxDotLen = 4096

// Dot computes the inner product of two equal-length vectors with a single
// rescale at the end, so the intermediate sum stays exact in the field.
func Dot(a, b []Fix) Fix {
	if len(a) != len(b) {
		panic(fmt.Sprintf("field: Dot length mismatch %d != %d", len(a), len(b)))
	}
	if len(a) > MaxDotLen {
		panic(fmt.Sprintf("field: Dot accumulation length %d exceeds %d", len(a), MaxDotLen))
	}
	var acc uint256.Int
	var t uint256.Int
	for i := range a {
		t.MulMod(&a[i].v, &b[i].v, prime)
		acc.AddMod(&acc, &t, prime)
	}
	var f Fix
	f.v.MulMod(&acc, invScale, prime)
	return f
}

// Less orders by signed value (field complement ordering)
func (a Fix) Less(b Fix) bool {
	an, bn := a.IsNeg(), b.IsNeg()
	if an != bn {
		return an
	}
	return a.v.Lt(&b.v)
}

// Float64 converts to a float for display and tests only; never used on a
// decision path.
func (a Fix) Float64() float64 {
	if a.IsNeg() {
		u := new(uint256.Int).Sub(prime, &a.v)
		return -u.Float64() / float64(Scale)
	}
	return a.v.Float64() / float64(Scale)
}

// Int rounds towards zero to an integer
func (a Fix) Int() int64 {
	if a.IsNeg() {
		u := new(uint256.Int).Sub(prime, &a.v)
		u.Rsh(u, ScaleBits)
		return -int64(u.Uint64())
	}
	u := new(uint256.Int).Rsh(&a.v, ScaleBits)
	return int64(u.Uint64())
}

// Bytes returns the canonical 32-byte big-endian serialization
func (a Fix) Bytes() [32]byte {
	return a.v.Bytes32()
}

// FixFromBytes parses the canonical 32-byte big-endian serialization
func FixFromBytes(b [32]byte) Fix {
	var f Fix
	f.v.SetBytes32(b[:])
	f.v.Mod(&f.v, prime)
	return f
}

func (a Fix) String() string {
	return fmt.Sprintf("%g", a.Float64())
}

// HashPair is the deterministic two-to-one mixing function the target
// machine exposes as its hash instruction: (a+b)^2 + 7a + 1, computed in
// the fixed-point domain.
func HashPair(a, b Fix) Fix {
	t := a.Add(b)
	return t.Mul(t).Add(a.MulInt(7)).Add(One)
}
