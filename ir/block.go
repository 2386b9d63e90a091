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
	"fmt"

	"github.com/launix-de/cliffopt/field"
)

// MaxNodes bounds the block size; the upstream IR builder splits larger
// blocks before they reach this subsystem.
const MaxNodes = 32

// WindowSize is the size of the machine's near-register window described
// by the entry context.
const WindowSize = 8

type OpKind uint8

const (
	OpConst OpKind = iota // immediate value
	OpLoad                // read entry window slot
	OpAdd
	OpSub
	OpMul
	OpNeg
	OpHash  // two-to-one field mix
	OpStore // write result of Dep1 to window slot
	NumOpKinds
)

var opNames = [NumOpKinds]string{"const", "load", "add", "sub", "mul", "neg", "hash", "store"}

func (k OpKind) String() string {
	if int(k) < len(opNames) {
		return opNames[k]
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// arity per op kind (number of data dependencies)
var opArity = [NumOpKinds]int{0, 0, 2, 2, 2, 1, 2, 1}

func (k OpKind) Arity() int { return opArity[k] }

type TypeTag uint8

const (
	TypeFelt TypeTag = iota
	TypeBool
	NumTypeTags
)

// NoDep marks an unused dependency slot
const NoDep = -1

// Node is one IR operation. Dep1/Dep2 reference earlier nodes in the same
// block; Slot is the window slot for OpLoad/OpStore; Imm is only meaningful
// for OpConst.
type Node struct {
	Kind OpKind
	Type TypeTag
	Dep1 int
	Dep2 int
	Slot int
	Imm  field.Fix
}

// Block is an immutable straight-line sequence of operations. Blocks are
// produced once by the upstream IR builder; this subsystem only reads them.
type Block struct {
	Nodes []Node
}

type BlockTooLargeError struct {
	Nodes int
}

func (e BlockTooLargeError) Error() string {
	return fmt.Sprintf("ir: block has %d nodes, maximum is %d (split upstream)", e.Nodes, MaxNodes)
}

type InvalidReferenceError struct {
	Node int
	Ref  int
}

func (e InvalidReferenceError) Error() string {
	return fmt.Sprintf("ir: node %d references %d which is not an earlier node", e.Node, e.Ref)
}

// Validate checks the structural preconditions: node count within MaxNodes,
// every used dependency referencing a strictly earlier node, window slots in
// range. It never mutates the block.
func (b *Block) Validate() error {
	if len(b.Nodes) > MaxNodes {
		return BlockTooLargeError{len(b.Nodes)}
	}
	for i, n := range b.Nodes {
		if n.Kind >= NumOpKinds || n.Type >= NumTypeTags {
			return InvalidReferenceError{i, -1}
		}
		ar := n.Kind.Arity()
		if ar >= 1 {
			if n.Dep1 < 0 || n.Dep1 >= i {
				return InvalidReferenceError{i, n.Dep1}
			}
		}
		if ar >= 2 {
			if n.Dep2 < 0 || n.Dep2 >= i {
				return InvalidReferenceError{i, n.Dep2}
			}
		}
		if n.Kind == OpLoad || n.Kind == OpStore {
			if n.Slot < 0 || n.Slot >= WindowSize {
				return InvalidReferenceError{i, n.Slot}
			}
		}
	}
	return nil
}

// lastUses computes, in one backward pass, the index of the last use of
// every node's value; a node that is never used keeps its own index.
func (b *Block) lastUses() []int {
	last := make([]int, len(b.Nodes))
	for i := range last {
		last[i] = i
	}
	for i := len(b.Nodes) - 1; i >= 0; i-- {
		n := b.Nodes[i]
		ar := n.Kind.Arity()
		if ar >= 1 && last[n.Dep1] == n.Dep1 {
			last[n.Dep1] = i
		}
		if ar >= 2 && last[n.Dep2] == n.Dep2 {
			last[n.Dep2] = i
		}
	}
	return last
}

// Eval executes the block against an entry window, returning the final
// window contents. This is the reference semantics used by the differential
// verifier and by tests; the compiler never calls it on a hot path.
func (b *Block) Eval(entry [WindowSize]field.Fix) ([WindowSize]field.Fix, error) {
	if err := b.Validate(); err != nil {
		return entry, err
	}
	vals := make([]field.Fix, len(b.Nodes))
	window := entry
	for i, n := range b.Nodes {
		switch n.Kind {
		case OpConst:
			vals[i] = n.Imm
		case OpLoad:
			vals[i] = window[n.Slot]
		case OpAdd:
			vals[i] = vals[n.Dep1].Add(vals[n.Dep2])
		case OpSub:
			vals[i] = vals[n.Dep1].Sub(vals[n.Dep2])
		case OpMul:
			vals[i] = vals[n.Dep1].Mul(vals[n.Dep2])
		case OpNeg:
			vals[i] = vals[n.Dep1].Neg()
		case OpHash:
			vals[i] = field.HashPair(vals[n.Dep1], vals[n.Dep2])
		case OpStore:
			window[n.Slot] = vals[n.Dep1]
			vals[i] = vals[n.Dep1]
		}
	}
	return window, nil
}
