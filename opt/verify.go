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
	"context"
	"math/rand"

	"github.com/launix-de/cliffopt/asm"
	"github.com/launix-de/cliffopt/field"
	"github.com/launix-de/cliffopt/ir"
)

type Verdict int

const (
	Inconclusive Verdict = iota // timeout, verifier error, gave up
	Refuted                     // definitely not equivalent
	Verified                    // definitely equivalent
)

func (v Verdict) String() string {
	switch v {
	case Verified:
		return "verified"
	case Refuted:
		return "refuted"
	}
	return "inconclusive"
}

// Verifier decides semantic equivalence of a candidate against the block
// it was generated from. The selector treats anything but Verified as a
// failed candidate. Implementations must be sound (never report Verified
// for a non-equivalent sequence) and may be conservative.
type Verifier interface {
	Verify(ctx context.Context, b *ir.Block, candidate asm.Sequence) Verdict
}

// Lowerer is the deterministic baseline lowering, assumed total and
// correct; its output is the reference for cost comparison and fallback.
type Lowerer func(b *ir.Block) asm.Sequence

// DiffVerifier checks equivalence by executing block and candidate on
// random field points and comparing the visible window. Over a 251-bit
// field, agreement of polynomial programs on enough random points refutes
// inequivalence with overwhelming probability; disagreement on any point
// is a definite refutation. Ships for tests and the bench command;
// production deployments plug in their own engine.
type DiffVerifier struct {
	Samples int
	Seed    int64
}

func (d DiffVerifier) Verify(ctx context.Context, b *ir.Block, candidate asm.Sequence) Verdict {
	if candidate.Check() != nil || b.Validate() != nil {
		return Refuted
	}
	samples := d.Samples
	if samples <= 0 {
		samples = 8
	}
	rng := rand.New(rand.NewSource(d.Seed))
	for s := 0; s < samples; s++ {
		if ctx.Err() != nil {
			return Inconclusive
		}
		var entry [asm.MemSlots]field.Fix
		for i := 0; i < ir.WindowSize; i++ {
			entry[i] = field.FromInt(rng.Int63n(1 << 30))
		}
		var blockEntry [ir.WindowSize]field.Fix
		copy(blockEntry[:], entry[:ir.WindowSize])
		want, err := b.Eval(blockEntry)
		if err != nil {
			return Inconclusive
		}
		got, err := asm.Exec(candidate, entry)
		if err != nil {
			return Refuted
		}
		for i := 0; i < ir.WindowSize; i++ {
			if !got[i].Equal(want[i]) {
				return Refuted
			}
		}
	}
	return Verified
}
