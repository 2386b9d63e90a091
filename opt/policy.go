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
	"math/rand"
	"sort"

	"github.com/launix-de/cliffopt/asm"
	"github.com/launix-de/cliffopt/field"
	"github.com/launix-de/cliffopt/ir"
)

/*

the shipped generator: a rewrite-template search

The policy reconstructs the block from its (lossless) feature tensor,
produces a deliberately dumb canonical lowering that parks every value in
a scratch window slot, and then enumerates variants by applying
semantics-preserving peephole rewrites in different combinations and
orders. A learned linear scorer over instruction histograms and resource
pressure ranks the variants; the top k become candidates.

Every rewrite is safe by local construction, but nothing downstream trusts
that: the selector still verifies any candidate before it can win.

*/

// Policy is the learned generator. It is a pure function of its parameters
// and the tensor; the only randomness is the seeded rule-order shuffle.
type Policy struct {
	Params *Params
}

func NewPolicy(p *Params) *Policy {
	return &Policy{Params: p}
}

// Propose implements Generator
func (p *Policy) Propose(t *ir.FeatureTensor, k int) []Candidate {
	if k <= 0 || p.Params == nil || p.Params.Layout != ir.LayoutVersion {
		return nil
	}
	block, err := t.DecodeBlock()
	if err != nil {
		// undecodable tensor: decline rather than guess
		return nil
	}
	variants := enumerate(block, p.Params.Seed)
	cands := make([]Candidate, 0, len(variants))
	for _, seq := range variants {
		cands = append(cands, Candidate{Seq: seq, Score: p.score(seq)})
	}
	// rank by learned score, digest as the deterministic tie-break
	sort.SliceStable(cands, func(i, j int) bool {
		if !cands[i].Score.Equal(cands[j].Score) {
			return cands[j].Score.Less(cands[i].Score)
		}
		return cands[i].Seq.Digest() < cands[j].Seq.Digest()
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	return cands
}

// score is the learned ranking: w · (mnemonic histogram ‖ resource profile ‖ 1)
func (p *Policy) score(seq asm.Sequence) field.Fix {
	f := make([]field.Fix, FeatureLen)
	for _, in := range seq {
		f[int(in.Op)] = f[int(in.Op)].Add(field.One)
	}
	prof := asm.Profile(seq)
	for i, v := range prof {
		f[int(asm.NumMnemonics)+i] = field.FromInt(int64(v))
	}
	f[FeatureLen-1] = field.One
	return field.Dot(p.Params.W, f)
}

// scratch returns the private window slot parking node i's value
func scratch(i int) int {
	return asm.ScratchBase + i
}

// Lower emits the canonical unoptimized lowering of a block. Callers
// without their own code generator use it as the baseline sequence.
func Lower(b *ir.Block) asm.Sequence {
	return naiveLower(b)
}

// naiveLower is the canonical lowering every variant is rewritten from:
// each node loads its operands from scratch, computes, and stores its own
// result back to scratch.
func naiveLower(b *ir.Block) asm.Sequence {
	seq := make(asm.Sequence, 0, len(b.Nodes)*4)
	for i, n := range b.Nodes {
		switch n.Kind {
		case ir.OpConst:
			seq = append(seq, asm.Instr{Op: asm.Push, Imm: n.Imm})
		case ir.OpLoad:
			seq = append(seq, asm.Instr{Op: asm.Load, Arg: n.Slot})
		case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpHash:
			seq = append(seq,
				asm.Instr{Op: asm.Load, Arg: scratch(n.Dep1)},
				asm.Instr{Op: asm.Load, Arg: scratch(n.Dep2)},
				asm.Instr{Op: lowerBinop(n.Kind)})
		case ir.OpNeg:
			seq = append(seq,
				asm.Instr{Op: asm.Load, Arg: scratch(n.Dep1)},
				asm.Instr{Op: asm.Neg})
		case ir.OpStore:
			seq = append(seq,
				asm.Instr{Op: asm.Load, Arg: scratch(n.Dep1)},
				asm.Instr{Op: asm.Dup, Arg: 1},
				asm.Instr{Op: asm.Store, Arg: n.Slot})
		}
		seq = append(seq, asm.Instr{Op: asm.Store, Arg: scratch(i)})
	}
	return seq
}

func lowerBinop(k ir.OpKind) asm.Mnemonic {
	switch k {
	case ir.OpAdd:
		return asm.Add
	case ir.OpSub:
		return asm.Sub
	case ir.OpMul:
		return asm.Mul
	default:
		return asm.Hash
	}
}

// a rewrite rule returns the rewritten sequence and whether it changed it
type rewriteRule func(asm.Sequence) (asm.Sequence, bool)

// loadsOf counts Load instructions targeting slot s
func loadsOf(seq asm.Sequence, s int, from int) int {
	n := 0
	for _, in := range seq[from:] {
		if in.Op == asm.Load && in.Arg == s {
			n++
		}
	}
	return n
}

// forwardStoreLoad removes an adjacent "store s; load s" pair for a
// scratch slot that is loaded exactly once: the value simply stays on the
// stack.
func forwardStoreLoad(seq asm.Sequence) (asm.Sequence, bool) {
	for i := 0; i+1 < len(seq); i++ {
		if seq[i].Op == asm.Store && seq[i].Arg >= asm.ScratchBase &&
			seq[i+1].Op == asm.Load && seq[i+1].Arg == seq[i].Arg &&
			loadsOf(seq, seq[i].Arg, 0) == 1 {
			out := append(seq[:i:i], seq[i+2:]...)
			return out, true
		}
	}
	return seq, false
}

// dupReload turns an adjacent reload of the same slot into a stack copy
func dupReload(seq asm.Sequence) (asm.Sequence, bool) {
	for i := 0; i+1 < len(seq); i++ {
		if seq[i].Op == asm.Load && seq[i+1].Op == asm.Load && seq[i].Arg == seq[i+1].Arg {
			out := seq.Clone()
			out[i+1] = asm.Instr{Op: asm.Dup, Arg: 1}
			return out, true
		}
	}
	return seq, false
}

// dropDeadStore pops instead of storing to a scratch slot nobody reads
func dropDeadStore(seq asm.Sequence) (asm.Sequence, bool) {
	for i, in := range seq {
		if in.Op == asm.Store && in.Arg >= asm.ScratchBase && loadsOf(seq, in.Arg, i+1) == 0 {
			out := seq.Clone()
			out[i] = asm.Instr{Op: asm.Pop}
			return out, true
		}
	}
	return seq, false
}

// dropDupPop removes an adjacent "dup n; pop" pair (net stack no-op)
func dropDupPop(seq asm.Sequence) (asm.Sequence, bool) {
	for i := 0; i+1 < len(seq); i++ {
		if seq[i].Op == asm.Dup && seq[i+1].Op == asm.Pop {
			out := append(seq[:i:i], seq[i+2:]...)
			return out, true
		}
	}
	return seq, false
}

// dropPushPop removes an adjacent "push x; pop" pair
func dropPushPop(seq asm.Sequence) (asm.Sequence, bool) {
	for i := 0; i+1 < len(seq); i++ {
		if seq[i].Op == asm.Push && seq[i+1].Op == asm.Pop {
			out := append(seq[:i:i], seq[i+2:]...)
			return out, true
		}
	}
	return seq, false
}

// foldConst folds "push a; push b; <binop>" at compile time
func foldConst(seq asm.Sequence) (asm.Sequence, bool) {
	for i := 0; i+2 < len(seq); i++ {
		if seq[i].Op != asm.Push || seq[i+1].Op != asm.Push {
			continue
		}
		a, b := seq[i].Imm, seq[i+1].Imm
		var v field.Fix
		switch seq[i+2].Op {
		case asm.Add:
			v = a.Add(b)
		case asm.Sub:
			v = a.Sub(b)
		case asm.Mul:
			v = a.Mul(b)
		case asm.Hash:
			v = field.HashPair(a, b)
		default:
			continue
		}
		out := append(seq[:i:i], asm.Instr{Op: asm.Push, Imm: v})
		out = append(out, seq[i+3:]...)
		return out, true
	}
	return seq, false
}

var allRules = []rewriteRule{forwardStoreLoad, dupReload, dropDeadStore, dropDupPop, dropPushPop, foldConst}

// maxRewritePasses bounds the fixpoint iteration so generation always
// terminates within a bounded number of internal steps
const maxRewritePasses = 256

// applyFixpoint applies the given rules round-robin until none fires
func applyFixpoint(seq asm.Sequence, rules []rewriteRule) asm.Sequence {
	for pass := 0; pass < maxRewritePasses; pass++ {
		changed := false
		for _, r := range rules {
			var c bool
			seq, c = r(seq)
			changed = changed || c
		}
		if !changed {
			return seq
		}
	}
	return seq
}

// enumerate produces the deterministic variant set: the canonical lowering,
// each rule's own fixpoint, the all-rules fixpoint, and a few seeded rule
// permutations. Duplicates are dropped by digest.
func enumerate(b *ir.Block, seed int64) []asm.Sequence {
	base := naiveLower(b)
	variants := []asm.Sequence{base}
	seen := map[string]bool{base.Digest(): true}
	add := func(s asm.Sequence) {
		d := s.Digest()
		if !seen[d] {
			seen[d] = true
			variants = append(variants, s)
		}
	}
	for _, r := range allRules {
		add(applyFixpoint(base, []rewriteRule{r}))
	}
	add(applyFixpoint(base, allRules))
	rng := rand.New(rand.NewSource(seed))
	for perm := 0; perm < 4; perm++ {
		rules := make([]rewriteRule, len(allRules))
		copy(rules, allRules)
		rng.Shuffle(len(rules), func(i, j int) { rules[i], rules[j] = rules[j], rules[i] })
		// a truncated rule set explores partially rewritten shapes
		add(applyFixpoint(base, rules[:1+rng.Intn(len(rules))]))
	}
	return variants
}
