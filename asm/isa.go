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
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/launix-de/cliffopt/field"
)

/*

target instruction set

A stack machine over the prime field. Straight-line only: the ISA this
subsystem emits has no branch mnemonics, so every candidate sequence is
trivially loop-free and its resource profile is a static function of the
instruction stream.

Memory is a window of MemSlots field elements. The first WindowSize slots
are the architectural near-register window visible across blocks; slots
beyond that are per-block scratch.

*/

// MemSlots is the number of addressable window slots
const MemSlots = 64

// ScratchBase is the first slot private to a block's lowering
const ScratchBase = 8

// MaxDup is the deepest stack element Dup can copy
const MaxDup = 16

type Mnemonic uint8

const (
	Push Mnemonic = iota // push immediate
	Dup                  // copy n-th element from top (1-based)
	Swap                 // exchange top two
	Pop                  // drop top
	Add                  // pop b, pop a, push a+b
	Sub                  // pop b, pop a, push a-b
	Mul                  // pop b, pop a, push a*b
	Neg                  // negate top
	Inv                  // field-inverse top
	Hash                 // pop b, pop a, push hash(a,b)
	Load                 // push window[slot]
	Store                // pop into window[slot]
	NumMnemonics
)

var mnemonicNames = [NumMnemonics]string{
	"push", "dup", "swap", "pop", "add", "sub", "mul", "neg", "inv", "hash", "load", "store",
}

func (m Mnemonic) String() string {
	if int(m) < len(mnemonicNames) {
		return mnemonicNames[m]
	}
	return fmt.Sprintf("op(%d)", int(m))
}

// Instr is one instruction. Imm is only meaningful for Push; Arg is the
// Dup depth or the Load/Store slot.
type Instr struct {
	Op  Mnemonic
	Imm field.Fix
	Arg int
}

func (i Instr) String() string {
	switch i.Op {
	case Push:
		return fmt.Sprintf("push %s", formatImm(i.Imm))
	case Dup, Load, Store:
		return fmt.Sprintf("%s %d", i.Op, i.Arg)
	default:
		return i.Op.String()
	}
}

// formatImm prints an immediate as an exact rational over the scale so a
// parse of the output reproduces the same field element
func formatImm(f field.Fix) string {
	neg := f.IsNeg()
	orig := f
	if neg {
		f = f.Neg()
	}
	raw := f.Bytes()
	// magnitudes past one machine word fall back to the full canonical
	// representative in hex
	for _, b := range raw[:24] {
		if b != 0 {
			full := orig.Bytes()
			return fmt.Sprintf("0x%x", full[:])
		}
	}
	var mag uint64
	for _, b := range raw[24:] {
		mag = mag<<8 | uint64(b)
	}
	s := fmt.Sprintf("%d/%d", mag, field.Scale)
	if mag%field.Scale == 0 {
		s = fmt.Sprintf("%d", mag/field.Scale)
	}
	if neg {
		s = "-" + s
	}
	return s
}

// Sequence is a candidate or baseline instruction stream
type Sequence []Instr

func (s Sequence) String() string {
	parts := make([]string, len(s))
	for i, in := range s {
		parts[i] = in.String()
	}
	return strings.Join(parts, "\n")
}

// Digest content-hashes the sequence; used to key cached verification
// verdicts together with the block tensor digest.
func (s Sequence) Digest() string {
	h := sha256.New()
	for _, in := range s {
		b := in.Imm.Bytes()
		h.Write([]byte{byte(in.Op), byte(in.Arg >> 8), byte(in.Arg)})
		h.Write(b[:])
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (s Sequence) Clone() Sequence {
	c := make(Sequence, len(s))
	copy(c, s)
	return c
}

type MalformedError struct {
	Index int
	Instr Instr
	Why   string
}

func (e MalformedError) Error() string {
	return fmt.Sprintf("asm: instruction %d (%s): %s", e.Index, e.Instr, e.Why)
}

// Check validates a sequence against the machine grammar: known mnemonics,
// argument bounds, and a stack depth that never goes negative. Ill-formed
// generator output fails here and is skipped by the selector; this is not a
// hard error anywhere.
func (s Sequence) Check() error {
	depth := 0
	for i, in := range s {
		switch in.Op {
		case Push, Load:
			if in.Op == Load && (in.Arg < 0 || in.Arg >= MemSlots) {
				return MalformedError{i, in, "slot out of range"}
			}
			depth++
		case Dup:
			if in.Arg < 1 || in.Arg > MaxDup {
				return MalformedError{i, in, "dup depth out of range"}
			}
			if depth < in.Arg {
				return MalformedError{i, in, "dup reaches below the stack"}
			}
			depth++
		case Swap:
			if depth < 2 {
				return MalformedError{i, in, "stack underflow"}
			}
		case Pop, Neg, Inv:
			if depth < 1 {
				return MalformedError{i, in, "stack underflow"}
			}
			if in.Op == Pop {
				depth--
			}
		case Add, Sub, Mul, Hash:
			if depth < 2 {
				return MalformedError{i, in, "stack underflow"}
			}
			depth--
		case Store:
			if in.Arg < 0 || in.Arg >= MemSlots {
				return MalformedError{i, in, "slot out of range"}
			}
			if depth < 1 {
				return MalformedError{i, in, "stack underflow"}
			}
			depth--
		default:
			return MalformedError{i, in, "unknown mnemonic"}
		}
	}
	return nil
}
