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
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/launix-de/cliffopt/field"
)

/*

feature tensor layout (LayoutVersion 1)

Per node, one fixed-size record of NodeRecordLen fixed-point values:

  [0..NumOpKinds)                 operation one-hot
  [NumOpKinds..+NumTypeTags)      type one-hot
  depOff+0, depOff+1              (dep+1)/MaxNodes, 0 if unused
  liveOff+0, liveOff+1            liveness interval start/end, /MaxNodes
  slotOff                         (slot+1)/MaxNodes, 0 if no slot
  immOff                          immediate value (OpConst only)

Records are zero-padded to MaxNodes. The entry context appends two values
per window slot (occupied flag, live flag). All divisors are powers of two
below Scale, so every field decodes exactly: the tensor is a lossless
encoding of the block, which is what lets the trainer replay generation
from logged tensors alone.

This layout is the generator's input contract; bumping it invalidates all
persisted generator parameters, hence the explicit version constant.

*/

const LayoutVersion = 1

const (
	depOff  = int(NumOpKinds) + int(NumTypeTags)
	liveOff = depOff + 2
	slotOff = liveOff + 2
	immOff  = slotOff + 1

	// NodeRecordLen is the per-node record width
	NodeRecordLen = immOff + 1

	// EntryLen is the entry-context vector width
	EntryLen = WindowSize * 2

	// TensorLen is the total flattened width
	TensorLen = MaxNodes*NodeRecordLen + EntryLen
)

type NodeRecord [NodeRecordLen]field.Fix

// EntryContext describes the caller-supplied machine state at block entry:
// which near-window slots hold a value and which of those are live-out.
type EntryContext struct {
	Occupied [WindowSize]bool
	Live     [WindowSize]bool
}

// FeatureTensor is the bounded numeric encoding of one basic block. It is
// recomputed on demand and never mutated.
type FeatureTensor struct {
	N     int
	Node  [MaxNodes]NodeRecord
	Entry [EntryLen]field.Fix
}

// Encode is the deterministic, total encoding function. Malformed blocks
// are rejected with the validation error; there is no recovery or
// truncation here.
func Encode(b *Block, entry EntryContext) (*FeatureTensor, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	t := new(FeatureTensor)
	t.N = len(b.Nodes)
	last := b.lastUses()
	for i, n := range b.Nodes {
		rec := &t.Node[i]
		rec[int(n.Kind)] = field.One
		rec[int(NumOpKinds)+int(n.Type)] = field.One
		ar := n.Kind.Arity()
		if ar >= 1 {
			rec[depOff] = field.FromRatio(int64(n.Dep1)+1, MaxNodes)
		}
		if ar >= 2 {
			rec[depOff+1] = field.FromRatio(int64(n.Dep2)+1, MaxNodes)
		}
		rec[liveOff] = field.FromRatio(int64(i), MaxNodes)
		rec[liveOff+1] = field.FromRatio(int64(last[i]), MaxNodes)
		if n.Kind == OpLoad || n.Kind == OpStore {
			rec[slotOff] = field.FromRatio(int64(n.Slot)+1, MaxNodes)
		}
		if n.Kind == OpConst {
			rec[immOff] = n.Imm
		}
	}
	for s := 0; s < WindowSize; s++ {
		if entry.Occupied[s] {
			t.Entry[2*s] = field.One
		}
		if entry.Live[s] {
			t.Entry[2*s+1] = field.One
		}
	}
	return t, nil
}

// Vector flattens the tensor into a single []field.Fix of TensorLen values
func (t *FeatureTensor) Vector() []field.Fix {
	v := make([]field.Fix, 0, TensorLen)
	for i := 0; i < MaxNodes; i++ {
		v = append(v, t.Node[i][:]...)
	}
	v = append(v, t.Entry[:]...)
	return v
}

// Digest is the content hash of the tensor (and therefore of the encoded
// block plus entry context); used to key cached verification verdicts.
func (t *FeatureTensor) Digest() string {
	h := sha256.New()
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], LayoutVersion)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(t.N))
	h.Write(hdr[:])
	for _, f := range t.Vector() {
		b := f.Bytes()
		h.Write(b[:])
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// decode helpers: all encoded indices are (i+1)/MaxNodes, exact at the
// fixed-point resolution because MaxNodes divides Scale
func decodeIndex(f field.Fix) int {
	return int(f.MulInt(MaxNodes).Int()) - 1
}

// DecodeBlock reconstructs the block structure from the tensor. The tensor
// is lossless by construction, so this cannot fail on a tensor produced by
// Encode; a tensor from a different layout version yields an error from the
// block validation.
func (t *FeatureTensor) DecodeBlock() (*Block, error) {
	b := &Block{Nodes: make([]Node, t.N)}
	for i := 0; i < t.N; i++ {
		rec := &t.Node[i]
		n := &b.Nodes[i]
		n.Kind = NumOpKinds
		for k := 0; k < int(NumOpKinds); k++ {
			if rec[k].Equal(field.One) {
				n.Kind = OpKind(k)
				break
			}
		}
		if n.Kind == NumOpKinds {
			return nil, fmt.Errorf("ir: tensor node %d has no operation tag", i)
		}
		for tt := 0; tt < int(NumTypeTags); tt++ {
			if rec[int(NumOpKinds)+tt].Equal(field.One) {
				n.Type = TypeTag(tt)
			}
		}
		n.Dep1, n.Dep2 = NoDep, NoDep
		ar := n.Kind.Arity()
		if ar >= 1 {
			n.Dep1 = decodeIndex(rec[depOff])
		}
		if ar >= 2 {
			n.Dep2 = decodeIndex(rec[depOff+1])
		}
		if n.Kind == OpLoad || n.Kind == OpStore {
			n.Slot = decodeIndex(rec[slotOff])
		}
		if n.Kind == OpConst {
			n.Imm = rec[immOff]
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// DecodeEntry reconstructs the entry context from the tensor
func (t *FeatureTensor) DecodeEntry() EntryContext {
	var e EntryContext
	for s := 0; s < WindowSize; s++ {
		e.Occupied[s] = t.Entry[2*s].Equal(field.One)
		e.Live[s] = t.Entry[2*s+1].Equal(field.One)
	}
	return e
}
