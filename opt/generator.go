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
	"github.com/launix-de/cliffopt/asm"
	"github.com/launix-de/cliffopt/field"
	"github.com/launix-de/cliffopt/ir"
)

// Candidate is one proposed instruction sequence with the generator's own
// confidence score. Candidates are ephemeral: produced per compilation and
// discarded after selection unless logged for training.
type Candidate struct {
	Seq   asm.Sequence
	Score field.Fix
}

// Generator proposes up to k candidate sequences for an encoded block.
//
// Contract: pure function of its parameters and the tensor; deterministic
// given a fixed seed; no I/O; always terminates within a bounded number of
// internal steps. Returning nothing is a valid answer (the generator may
// decline). Ill-formed sequences are not an error here; the selector skips
// them.
//
// Any conformant search procedure is substitutable: the shipped Policy is
// a rewrite-template search ranked by learned weights, but a neural
// sequence model or constraint-guided enumerator plugs in the same way.
type Generator interface {
	Propose(t *ir.FeatureTensor, k int) []Candidate
}
