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
package asm

import (
	"fmt"
	"math/bits"
	"strings"
)

/*

cliff cost model

Execution cost is governed by NumTables parallel resource counters. Each
counter is padded to the next power of two before billing, and the billed
cost is the padded maximum: crossing a power-of-two boundary in any single
table doubles the price of the whole sequence.

The per-mnemonic deltas below mirror the authoritative downstream cost
accounting; profiling a sequence must agree with it
bit for bit, which is why the deltas live in one static table and nothing
here interprets operands.

*/

// NumTables is the number of tracked resource tables
const NumTables = 6

// table indices
const (
	TableSteps = iota
	TableAlu
	TableMul
	TableMem
	TableRc
	TableHash
)

var TableNames = [NumTables]string{"steps", "alu", "mul", "mem", "rc", "hash"}

// CostProfile is one non-negative counter per resource table
type CostProfile [NumTables]uint64

func (p CostProfile) Max() uint64 {
	m := uint64(0)
	for _, v := range p {
		if v > m {
			m = v
		}
	}
	return m
}

func (p CostProfile) Add(q CostProfile) CostProfile {
	for i := range p {
		p[i] += q[i]
	}
	return p
}

func (p CostProfile) String() string {
	parts := make([]string, NumTables)
	for i, v := range p {
		parts[i] = fmt.Sprintf("%s=%d", TableNames[i], v)
	}
	return strings.Join(parts, " ")
}

// tableDeltas maps each mnemonic to its resource increments
//
//	                     steps alu mul mem rc hash
var tableDeltas = [NumMnemonics]CostProfile{
	Push:  {1, 0, 0, 0, 0, 0},
	Dup:   {1, 0, 0, 0, 0, 0},
	Swap:  {1, 0, 0, 0, 0, 0},
	Pop:   {1, 0, 0, 0, 0, 0},
	Add:   {1, 1, 0, 0, 1, 0},
	Sub:   {1, 1, 0, 0, 1, 0},
	Neg:   {1, 1, 0, 0, 1, 0},
	Mul:   {1, 0, 1, 0, 2, 0},
	Inv:   {1, 0, 4, 0, 2, 0},
	Hash:  {1, 0, 0, 0, 0, 1},
	Load:  {1, 0, 0, 2, 1, 0},
	Store: {1, 0, 0, 2, 1, 0},
}

// Deltas exposes the static per-instruction increments (read-only use)
func Deltas(m Mnemonic) CostProfile {
	return tableDeltas[m]
}

// Profile computes the exact resource profile of a straight-line sequence.
// No interpreter runs: the profile is the sum of static per-instruction
// deltas, which is exact because the ISA has no branches.
func Profile(s Sequence) CostProfile {
	var p CostProfile
	for _, in := range s {
		if in.Op < NumMnemonics {
			p = p.Add(tableDeltas[in.Op])
		}
	}
	return p
}

// Cost pads the profile maximum to the next power of two. An all-zero
// profile costs zero.
func Cost(p CostProfile) uint64 {
	m := p.Max()
	if m == 0 {
		return 0
	}
	return uint64(1) << uint(bits.Len64(m-1))
}

// SeqCost is the common shorthand
func SeqCost(s Sequence) uint64 {
	return Cost(Profile(s))
}
