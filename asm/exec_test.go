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
	"testing"

	"github.com/launix-de/cliffopt/field"
)

func TestExecArithmetic(t *testing.T) {
	// (a+b)*(a-b) from slots 0 and 1 into slot 2
	seq := Sequence{
		{Op: Load, Arg: 0},
		{Op: Load, Arg: 1},
		{Op: Add},
		{Op: Load, Arg: 0},
		{Op: Load, Arg: 1},
		{Op: Sub},
		{Op: Mul},
		{Op: Store, Arg: 2},
	}
	var entry [MemSlots]field.Fix
	entry[0], entry[1] = field.FromInt(7), field.FromInt(3)
	mem, err := Exec(seq, entry)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if !mem[2].Equal(field.FromInt(40)) {
		t.Errorf("(7+3)*(7-3): got %v, want 40", mem[2])
	}
	if !mem[0].Equal(entry[0]) || !mem[1].Equal(entry[1]) {
		t.Errorf("input slots were clobbered")
	}
}

func TestExecInvRescales(t *testing.T) {
	// x * inv(x) must come out as exactly 1 in the fixed-point domain,
	// not as the raw field inverse of the scaled representative
	for _, x := range []int64{1, 2, -2, 7, 12345} {
		seq := Sequence{
			{Op: Push, Imm: field.FromInt(x)},
			{Op: Push, Imm: field.FromInt(x)},
			{Op: Inv},
			{Op: Mul},
			{Op: Store, Arg: 0},
		}
		mem, err := Exec(seq, [MemSlots]field.Fix{})
		if err != nil {
			t.Fatalf("exec inv(%d): %v", x, err)
		}
		if !mem[0].Equal(field.One) {
			t.Errorf("x * inv(x) for x=%d: got %v, want 1", x, mem[0])
		}
	}
	// fractional: inv(1/2) == 2
	seq := Sequence{
		{Op: Push, Imm: field.FromRatio(1, 2)},
		{Op: Inv},
		{Op: Store, Arg: 0},
	}
	mem, err := Exec(seq, [MemSlots]field.Fix{})
	if err != nil {
		t.Fatalf("exec inv(1/2): %v", err)
	}
	if !mem[0].Equal(field.FromInt(2)) {
		t.Errorf("inv(1/2): got %v, want 2", mem[0])
	}
}

func TestExecInvZeroFails(t *testing.T) {
	seq := Sequence{
		{Op: Push, Imm: field.Zero},
		{Op: Inv},
		{Op: Pop},
	}
	if _, err := Exec(seq, [MemSlots]field.Fix{}); err == nil {
		t.Errorf("inverse of zero must fail")
	}
}
