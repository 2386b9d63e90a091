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

	"github.com/launix-de/cliffopt/field"
)

// Exec runs a sequence against an entry window and returns the final
// window. This is the reference semantics for differential verification
// and tooling; production cost accounting never executes anything.
func Exec(s Sequence, entry [MemSlots]field.Fix) ([MemSlots]field.Fix, error) {
	if err := s.Check(); err != nil {
		return entry, err
	}
	window := entry
	stack := make([]field.Fix, 0, 32)
	pop := func() field.Fix {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	for i, in := range s {
		switch in.Op {
		case Push:
			stack = append(stack, in.Imm)
		case Dup:
			stack = append(stack, stack[len(stack)-in.Arg])
		case Swap:
			stack[len(stack)-1], stack[len(stack)-2] = stack[len(stack)-2], stack[len(stack)-1]
		case Pop:
			pop()
		case Add:
			b, a := pop(), pop()
			stack = append(stack, a.Add(b))
		case Sub:
			b, a := pop(), pop()
			stack = append(stack, a.Sub(b))
		case Mul:
			b, a := pop(), pop()
			stack = append(stack, a.Mul(b))
		case Neg:
			stack[len(stack)-1] = stack[len(stack)-1].Neg()
		case Inv:
			if stack[len(stack)-1].IsZero() {
				return window, fmt.Errorf("asm: instruction %d: inverse of zero", i)
			}
			stack[len(stack)-1] = stack[len(stack)-1].Inv()
		case Hash:
			b, a := pop(), pop()
			stack = append(stack, field.HashPair(a, b))
		case Load:
			stack = append(stack, window[in.Arg])
		case Store:
			window[in.Arg] = pop()
		}
	}
	return window, nil
}
