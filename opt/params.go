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
package opt

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/launix-de/cliffopt/asm"
	"github.com/launix-de/cliffopt/field"
	"github.com/launix-de/cliffopt/ir"
)

// FeatureLen is the width of the candidate scoring feature vector:
// one histogram bucket per mnemonic, one per resource table, plus a bias.
const FeatureLen = int(asm.NumMnemonics) + asm.NumTables + 1

const paramsMagic = "CLFP"

// Params is the complete, versioned weight state of the candidate
// generator. Consumers treat a Params as immutable once built; it is only
// ever replaced whole through an atomic swap.
type Params struct {
	Layout int       // feature tensor layout this was trained against
	Seed   int64     // explicit seed for the generator's search order
	W      []field.Fix
}

// NewParams returns a neutral parameter set: zero weights rank every
// candidate equally and the tie-break keeps proposal order stable.
func NewParams(seed int64) *Params {
	return &Params{Layout: ir.LayoutVersion, Seed: seed, W: make([]field.Fix, FeatureLen)}
}

// RandomParams draws small random weights from an explicit source
func RandomParams(rng *rand.Rand, seed int64) *Params {
	p := NewParams(seed)
	for i := range p.W {
		p.W[i] = field.FromRatio(rng.Int63n(513)-256, 256)
	}
	return p
}

func (p *Params) Clone() *Params {
	c := &Params{Layout: p.Layout, Seed: p.Seed, W: make([]field.Fix, len(p.W))}
	copy(c.W, p.W)
	return c
}

// Serialize produces the canonical byte form: magic, layout, seed, count,
// then 32 bytes big-endian per weight. The content hash is derived from
// exactly these bytes, so identical parameters always hash identically.
func (p *Params) Serialize() []byte {
	buf := make([]byte, 0, 4+4+8+4+32*len(p.W))
	buf = append(buf, paramsMagic...)
	var b8 [8]byte
	binary.BigEndian.PutUint32(b8[:4], uint32(p.Layout))
	buf = append(buf, b8[:4]...)
	binary.BigEndian.PutUint64(b8[:], uint64(p.Seed))
	buf = append(buf, b8[:]...)
	binary.BigEndian.PutUint32(b8[:4], uint32(len(p.W)))
	buf = append(buf, b8[:4]...)
	for _, w := range p.W {
		wb := w.Bytes()
		buf = append(buf, wb[:]...)
	}
	return buf
}

// DeserializeParams parses the canonical byte form
func DeserializeParams(buf []byte) (*Params, error) {
	if len(buf) < 20 || string(buf[:4]) != paramsMagic {
		return nil, fmt.Errorf("opt: not a parameter blob")
	}
	p := &Params{
		Layout: int(binary.BigEndian.Uint32(buf[4:8])),
		Seed:   int64(binary.BigEndian.Uint64(buf[8:16])),
	}
	n := int(binary.BigEndian.Uint32(buf[16:20]))
	if len(buf) != 20+32*n {
		return nil, fmt.Errorf("opt: parameter blob truncated (%d weights, %d bytes)", n, len(buf))
	}
	p.W = make([]field.Fix, n)
	for i := 0; i < n; i++ {
		var wb [32]byte
		copy(wb[:], buf[20+32*i:])
		p.W[i] = field.FixFromBytes(wb)
	}
	return p, nil
}

// Hash is the content hash identifying this parameter version
func (p *Params) Hash() string {
	sum := sha256.Sum256(p.Serialize())
	return fmt.Sprintf("%x", sum[:])
}

// Crossover builds a child by picking each weight uniformly from one of
// two parents, then perturbing a fraction of the weights slightly. The
// random source is threaded in explicitly so training sessions reproduce.
func Crossover(rng *rand.Rand, a, b *Params) *Params {
	c := NewParams(a.Seed)
	for i := range c.W {
		if rng.Intn(2) == 0 {
			c.W[i] = a.W[i]
		} else {
			c.W[i] = b.W[i]
		}
		if rng.Intn(8) == 0 {
			c.W[i] = c.W[i].Add(field.FromRatio(rng.Int63n(65)-32, 256))
		}
	}
	return c
}
