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
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	packrat "github.com/launix-de/go-packrat"

	"github.com/launix-de/cliffopt/field"
)

/*

textual corpus format

One mnemonic per instruction, immediates as integers or exact rationals
(num/den), sequences separated by a "--" line, C-style comments skipped:

	load 0      // a
	load 1      // b
	add
	store 2
	--
	push 3/2
	mul

The console's bench command and the oracle conformance tests read this
format; Sequence.String() emits it back (modulo comments).

*/

type corpusGrammar struct {
	root      packrat.Parser
	separator packrat.Parser
	withArg   map[packrat.Parser]Mnemonic
	bare      map[packrat.Parser]Mnemonic
}

var grammar = buildGrammar()

func buildGrammar() *corpusGrammar {
	g := &corpusGrammar{
		withArg: make(map[packrat.Parser]Mnemonic),
		bare:    make(map[packrat.Parser]Mnemonic),
	}
	num := packrat.NewRegexParser(`0x[0-9a-f]+|-?[0-9]+(/[0-9]+)?`, false, true)
	alternatives := make([]packrat.Parser, 0, int(NumMnemonics)+1)
	for m := Push; m < NumMnemonics; m++ {
		switch m {
		case Push, Dup, Load, Store:
			p := packrat.NewAndParser(packrat.NewAtomParser(m.String(), false, true), num)
			g.withArg[p] = m
			alternatives = append(alternatives, p)
		default:
			p := packrat.NewAtomParser(m.String(), false, true)
			g.bare[p] = m
			alternatives = append(alternatives, p)
		}
	}
	g.separator = packrat.NewAtomParser("--", false, true)
	alternatives = append(alternatives, g.separator)
	item := packrat.NewOrParser(alternatives...)
	g.root = packrat.NewAndParser(
		packrat.NewKleeneParser(item, packrat.NewEmptyParser()),
		packrat.NewEndParser(true),
	)
	return g
}

// parseImm parses an integer, a num/den rational, or the full hex form of
// a canonical representative into the fixed-point domain
func parseImm(s string) (field.Fix, error) {
	if strings.HasPrefix(s, "0x") {
		raw, err := hex.DecodeString(s[2:])
		if err != nil || len(raw) != 32 {
			return field.Zero, fmt.Errorf("asm: bad hex immediate %q", s)
		}
		var b [32]byte
		copy(b[:], raw)
		return field.FixFromBytes(b), nil
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseInt(num, 10, 64)
		d, err2 := strconv.ParseInt(den, 10, 64)
		if err1 != nil || err2 != nil || d <= 0 {
			return field.Zero, fmt.Errorf("asm: bad rational immediate %q", s)
		}
		return field.FromRatio(n, d), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return field.Zero, fmt.Errorf("asm: bad immediate %q", s)
	}
	return field.FromInt(n), nil
}

// collect walks the parse tree in source order and rebuilds instructions;
// a separator node closes the current sequence
func (g *corpusGrammar) collect(n *packrat.Node, seqs *[]Sequence, cur *Sequence) error {
	if n.Parser == g.separator {
		*seqs = append(*seqs, *cur)
		*cur = nil
		return nil
	}
	if m, ok := g.bare[n.Parser]; ok {
		*cur = append(*cur, Instr{Op: m})
		return nil
	}
	if m, ok := g.withArg[n.Parser]; ok {
		fields := strings.Fields(n.Matched)
		if len(fields) < 2 {
			return fmt.Errorf("asm: %s needs an argument", m)
		}
		arg := fields[len(fields)-1]
		if m == Push {
			imm, err := parseImm(arg)
			if err != nil {
				return err
			}
			*cur = append(*cur, Instr{Op: Push, Imm: imm})
			return nil
		}
		v, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("asm: bad argument for %s: %q", m, arg)
		}
		*cur = append(*cur, Instr{Op: m, Arg: v})
		return nil
	}
	for _, child := range n.Children {
		if err := g.collect(child, seqs, cur); err != nil {
			return err
		}
	}
	return nil
}

// ParseSequences parses a corpus text into its instruction sequences
func ParseSequences(src string) ([]Sequence, error) {
	scanner := packrat.NewScanner(src, packrat.SkipWhitespaceAndCommentsRegex)
	node, err := packrat.Parse(grammar.root, scanner)
	if err != nil {
		return nil, fmt.Errorf("asm: parse error: %w", err)
	}
	var seqs []Sequence
	var cur Sequence
	if err := grammar.collect(&node, &seqs, &cur); err != nil {
		return nil, err
	}
	seqs = append(seqs, cur)
	return seqs, nil
}

// ParseSequence parses a corpus text expected to hold exactly one sequence
func ParseSequence(src string) (Sequence, error) {
	seqs, err := ParseSequences(src)
	if err != nil {
		return nil, err
	}
	if len(seqs) != 1 {
		return nil, fmt.Errorf("asm: expected one sequence, got %d", len(seqs))
	}
	return seqs[0], nil
}
