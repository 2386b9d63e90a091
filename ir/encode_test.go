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
package ir

import (
	"testing"

	"github.com/launix-de/cliffopt/field"
)

// buildAddChain builds: load 0, load 1, add, store 2
func buildAddChain() *Block {
	return &Block{Nodes: []Node{
		{Kind: OpLoad, Slot: 0, Dep1: NoDep, Dep2: NoDep},
		{Kind: OpLoad, Slot: 1, Dep1: NoDep, Dep2: NoDep},
		{Kind: OpAdd, Dep1: 0, Dep2: 1},
		{Kind: OpStore, Dep1: 2, Slot: 2, Dep2: NoDep},
	}}
}

func TestValidate(t *testing.T) {
	if err := buildAddChain().Validate(); err != nil {
		t.Fatalf("valid block rejected: %v", err)
	}

	big := &Block{Nodes: make([]Node, MaxNodes+1)}
	for i := range big.Nodes {
		big.Nodes[i] = Node{Kind: OpConst, Dep1: NoDep, Dep2: NoDep}
	}
	if _, ok := big.Validate().(BlockTooLargeError); !ok {
		t.Errorf("oversized block: got %v, want BlockTooLargeError", big.Validate())
	}

	dangling := &Block{Nodes: []Node{
		{Kind: OpConst, Dep1: NoDep, Dep2: NoDep},
		{Kind: OpAdd, Dep1: 0, Dep2: 1}, // references itself
	}}
	if _, ok := dangling.Validate().(InvalidReferenceError); !ok {
		t.Errorf("dangling reference: got %v, want InvalidReferenceError", dangling.Validate())
	}

	badSlot := &Block{Nodes: []Node{{Kind: OpLoad, Slot: WindowSize, Dep1: NoDep, Dep2: NoDep}}}
	if badSlot.Validate() == nil {
		t.Errorf("out-of-range slot accepted")
	}
}

func TestEncodeRejectsMalformed(t *testing.T) {
	big := &Block{Nodes: make([]Node, MaxNodes+1)}
	for i := range big.Nodes {
		big.Nodes[i] = Node{Kind: OpConst, Dep1: NoDep, Dep2: NoDep}
	}
	if _, err := Encode(big, EntryContext{}); err == nil {
		t.Fatalf("encoder accepted oversized block")
	}
}

func TestEncodeDeterministic(t *testing.T) {
	b := buildAddChain()
	var entry EntryContext
	entry.Occupied[0], entry.Live[0] = true, true
	entry.Occupied[1] = true
	t1, err := Encode(b, entry)
	if err != nil {
		t.Fatal(err)
	}
	t2, _ := Encode(b, entry)
	if t1.Digest() != t2.Digest() {
		t.Errorf("encoding not deterministic")
	}
	entry.Live[1] = true
	t3, _ := Encode(b, entry)
	if t1.Digest() == t3.Digest() {
		t.Errorf("entry context not part of the encoding")
	}
}

func TestEncodeDecodeLossless(t *testing.T) {
	b := &Block{Nodes: []Node{
		{Kind: OpConst, Imm: field.FromRatio(7, 2), Dep1: NoDep, Dep2: NoDep},
		{Kind: OpLoad, Slot: 3, Dep1: NoDep, Dep2: NoDep},
		{Kind: OpMul, Dep1: 0, Dep2: 1},
		{Kind: OpNeg, Dep1: 2, Dep2: NoDep},
		{Kind: OpHash, Dep1: 2, Dep2: 3},
		{Kind: OpStore, Dep1: 4, Slot: 0, Dep2: NoDep},
	}}
	var entry EntryContext
	entry.Occupied[3], entry.Live[3] = true, true
	tensor, err := Encode(b, entry)
	if err != nil {
		t.Fatal(err)
	}
	got, err := tensor.DecodeBlock()
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Nodes) != len(b.Nodes) {
		t.Fatalf("node count: got %d, want %d", len(got.Nodes), len(b.Nodes))
	}
	for i := range b.Nodes {
		w, g := b.Nodes[i], got.Nodes[i]
		if g.Kind != w.Kind || g.Type != w.Type {
			t.Errorf("node %d: kind/type mismatch", i)
		}
		ar := w.Kind.Arity()
		if ar >= 1 && g.Dep1 != w.Dep1 || ar >= 2 && g.Dep2 != w.Dep2 {
			t.Errorf("node %d: dep mismatch got (%d,%d) want (%d,%d)", i, g.Dep1, g.Dep2, w.Dep1, w.Dep2)
		}
		if (w.Kind == OpLoad || w.Kind == OpStore) && g.Slot != w.Slot {
			t.Errorf("node %d: slot mismatch", i)
		}
		if w.Kind == OpConst && !g.Imm.Equal(w.Imm) {
			t.Errorf("node %d: immediate mismatch", i)
		}
	}
	if tensor.DecodeEntry() != entry {
		t.Errorf("entry context mismatch")
	}
}

func TestLiveness(t *testing.T) {
	b := buildAddChain()
	last := b.lastUses()
	// node 0 and 1 are last used by the add at 2; the add by the store at 3
	if last[0] != 2 || last[1] != 2 || last[2] != 3 {
		t.Errorf("liveness: got %v", last)
	}
	// the store itself is never used
	if last[3] != 3 {
		t.Errorf("unused node should keep its own index, got %d", last[3])
	}
}

func TestEval(t *testing.T) {
	b := buildAddChain()
	var entry [WindowSize]field.Fix
	entry[0] = field.FromInt(4)
	entry[1] = field.FromInt(38)
	out, err := b.Eval(entry)
	if err != nil {
		t.Fatal(err)
	}
	if !out[2].Equal(field.FromInt(42)) {
		t.Errorf("eval: slot 2 = %v, want 42", out[2])
	}
	if !out[0].Equal(entry[0]) || !out[1].Equal(entry[1]) {
		t.Errorf("eval clobbered untouched slots")
	}
}
