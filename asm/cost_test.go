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

func TestCliffCost(t *testing.T) {
	cases := []struct {
		max  uint64
		cost uint64
	}{
		{0, 0}, {1, 1}, {2, 2}, {3, 4}, {4, 4}, {5, 8},
		{1023, 1024}, {1024, 1024}, {1025, 2048},
	}
	for _, c := range cases {
		p := CostProfile{c.max, 0, 0, 0, 0, 0}
		if got := Cost(p); got != c.cost {
			t.Errorf("cost(max=%d): got %d, want %d", c.max, got, c.cost)
		}
	}
}

func TestCostUsesMaximum(t *testing.T) {
	p := CostProfile{3, 17, 2, 0, 9, 1}
	if got := Cost(p); got != 32 {
		t.Errorf("cost: got %d, want 32 (pow2ceil of 17)", got)
	}
}

func TestProfileIsSumOfDeltas(t *testing.T) {
	seq := Sequence{
		{Op: Load, Arg: 0},
		{Op: Load, Arg: 1},
		{Op: Add},
		{Op: Store, Arg: 2},
	}
	var want CostProfile
	want = want.Add(Deltas(Load)).Add(Deltas(Load)).Add(Deltas(Add)).Add(Deltas(Store))
	if Profile(seq) != want {
		t.Errorf("profile: got %v, want %v", Profile(seq), want)
	}
	// hand check: 4 steps, 1 alu, 3*2 mem, 3+1 rc
	if want[TableSteps] != 4 || want[TableAlu] != 1 || want[TableMem] != 6 || want[TableRc] != 4 {
		t.Errorf("deltas changed: %v", want)
	}
}

func TestCheck(t *testing.T) {
	good := Sequence{
		{Op: Push, Imm: field.FromInt(1)},
		{Op: Dup, Arg: 1},
		{Op: Add},
		{Op: Store, Arg: 0},
	}
	if err := good.Check(); err != nil {
		t.Errorf("valid sequence rejected: %v", err)
	}

	underflow := Sequence{{Op: Add}}
	if _, ok := underflow.Check().(MalformedError); !ok {
		t.Errorf("stack underflow not detected")
	}

	badDup := Sequence{{Op: Push}, {Op: Dup, Arg: 2}}
	if badDup.Check() == nil {
		t.Errorf("dup below stack not detected")
	}

	badSlot := Sequence{{Op: Load, Arg: MemSlots}}
	if badSlot.Check() == nil {
		t.Errorf("slot out of range not detected")
	}
}

func TestExec(t *testing.T) {
	var entry [MemSlots]field.Fix
	entry[0] = field.FromInt(4)
	entry[1] = field.FromInt(38)
	seq := Sequence{
		{Op: Load, Arg: 0},
		{Op: Load, Arg: 1},
		{Op: Add},
		{Op: Store, Arg: 2},
	}
	out, err := Exec(seq, entry)
	if err != nil {
		t.Fatal(err)
	}
	if !out[2].Equal(field.FromInt(42)) {
		t.Errorf("exec: slot 2 = %v, want 42", out[2])
	}

	// sub order: a - b with a pushed first
	seq = Sequence{
		{Op: Push, Imm: field.FromInt(10)},
		{Op: Push, Imm: field.FromInt(3)},
		{Op: Sub},
		{Op: Store, Arg: 0},
	}
	out, err = Exec(seq, entry)
	if err != nil {
		t.Fatal(err)
	}
	if !out[0].Equal(field.FromInt(7)) {
		t.Errorf("sub: got %v, want 7", out[0])
	}

	// malformed sequences are reported, not executed
	if _, err := Exec(Sequence{{Op: Pop}}, entry); err == nil {
		t.Errorf("underflow not reported")
	}
}

func TestSequenceDigest(t *testing.T) {
	a := Sequence{{Op: Push, Imm: field.FromInt(1)}, {Op: Store, Arg: 0}}
	b := Sequence{{Op: Push, Imm: field.FromInt(2)}, {Op: Store, Arg: 0}}
	if a.Digest() != a.Clone().Digest() {
		t.Errorf("digest not stable")
	}
	if a.Digest() == b.Digest() {
		t.Errorf("digest ignores immediates")
	}
}
