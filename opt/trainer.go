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
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/launix-de/cliffopt/asm"
	"github.com/launix-de/cliffopt/ir"
)

/*

population training

Gradient-free search over parameter vectors: evaluate every member by
re-running generation against logged feature tensors, counting only
candidates whose verification verdict was cached during live compilation.
Fitness is the negative total cost the member would have achieved. The
trainer runs out-of-band: it reads the replay log and the checkpoint
store, and its single interaction with live compilation is the atomic
promotion of a strictly better parameter set.

*/

// Trainer improves generator parameters from logged outcomes
type Trainer struct {
	cfg   Config
	store Store
	log   *ReplayLog

	// OnPromote is called after a successful promotion (e.g. to hot-swap
	// the live optimizer); may be nil.
	OnPromote func(hash string, p *Params)

	// NewGenerator mirrors Optimizer.NewGenerator so training evaluates
	// the same search procedure that runs live.
	NewGenerator func(*Params) Generator
}

func NewTrainer(cfg Config, store Store, log *ReplayLog) *Trainer {
	return &Trainer{
		cfg:          cfg,
		store:        store,
		log:          log,
		NewGenerator: func(p *Params) Generator { return NewPolicy(p) },
	}
}

type member struct {
	params  *Params
	hash    string
	fitness int64
}

// batchItem indexes one deduplicated outcome by its tensor digest
type batchItem struct {
	digest  string
	outcome Outcome
}

// Train runs one bounded training session. It returns the promoted hash,
// or "" if no population member beat the active parameters by the margin:
// in that case the active parameters are left untouched. Cancelling the
// context discards all partial population state; nothing is ever promoted
// from a cancelled session.
func (t *Trainer) Train(ctx context.Context) (string, error) {
	session := uuid.New()

	activeHash, err := t.store.Active()
	if err != nil {
		return "", err
	}
	active, err := t.store.Load(activeHash)
	if err != nil {
		return "", err
	}

	outcomes, verdicts, err := t.log.ReadAll()
	if err != nil {
		return "", err
	}

	// deduplicate newest-first by block so repeated compilations of the
	// same block count once; the btree keeps membership checks and the
	// iteration order deterministic
	index := btree.NewG[batchItem](16, func(a, b batchItem) bool { return a.digest < b.digest })
	var recent []Outcome
	for i := len(outcomes) - 1; i >= 0 && len(recent) < 2*t.cfg.BatchSize; i-- {
		item := batchItem{digest: outcomes[i].Tensor.Digest(), outcome: outcomes[i]}
		if _, dup := index.Get(item); dup {
			continue
		}
		index.ReplaceOrInsert(item)
		recent = append(recent, outcomes[i])
	}
	if len(recent) < 2 {
		return "", fmt.Errorf("opt: training session %s: replay log too small (%d usable blocks)", session, len(recent))
	}
	split := len(recent) / 2
	validation, training := recent[:split], recent[split:]

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	popSize := t.cfg.Population
	if popSize < 4 {
		popSize = 4
	}
	pop := make([]member, 0, popSize)
	pop = append(pop, member{params: active.Clone()})
	for len(pop) < popSize {
		if len(pop)%4 == 0 {
			pop = append(pop, member{params: RandomParams(rng, active.Seed)})
		} else {
			pop = append(pop, member{params: Crossover(rng, active, active)})
		}
	}

	for gen := 0; gen < t.cfg.Generations; gen++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		for i := range pop {
			pop[i].hash = pop[i].params.Hash()
			pop[i].fitness = t.evaluate(pop[i].params, training, verdicts)
		}
		sortMembers(pop)
		survivors := pop[:popSize/4]
		next := make([]member, 0, popSize)
		next = append(next, survivors...)
		for len(next) < popSize {
			a := survivors[rng.Intn(len(survivors))].params
			b := survivors[rng.Intn(len(survivors))].params
			next = append(next, member{params: Crossover(rng, a, b)})
		}
		pop = next
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	// final ranking on the training batch, then the challenger must beat
	// the active parameters on fresh validation data by the margin
	for i := range pop {
		pop[i].hash = pop[i].params.Hash()
		pop[i].fitness = t.evaluate(pop[i].params, training, verdicts)
	}
	sortMembers(pop)
	best := pop[0]

	fitBest := t.evaluate(best.params, validation, verdicts)
	fitActive := t.evaluate(active, validation, verdicts)
	if fitBest < fitActive+t.cfg.PromoteMargin {
		return "", nil // no improvement: training never regresses the live generator
	}
	hash, err := t.store.Save(best.params)
	if err != nil {
		return "", err
	}
	if err := t.store.SetActive(hash); err != nil {
		return "", err
	}
	if t.OnPromote != nil {
		t.OnPromote(hash, best.params)
	}
	return hash, nil
}

// evaluate scores one parameter set against a batch: the negative sum of
// the cost its generator would have achieved, counting only candidates
// whose live verification verdict is cached as Verified.
func (t *Trainer) evaluate(p *Params, batch []Outcome, verdicts map[string]Verdict) int64 {
	gen := t.NewGenerator(p)
	total := int64(0)
	for _, out := range batch {
		best := out.BaselineCost
		tensorDigest := out.Tensor.Digest()
		for _, c := range proposeSafely(gen, out.Tensor, t.cfg.K) {
			if c.Seq.Check() != nil {
				continue
			}
			cost := asm.SeqCost(c.Seq)
			if cost >= best {
				continue
			}
			if verdicts[tensorDigest+"/"+c.Seq.Digest()] == Verified {
				best = cost
			}
		}
		total -= int64(best)
	}
	return total
}

// proposeSafely catches generator panics the way the live boundary does:
// a failing member simply scores no improvement on that block.
func proposeSafely(gen Generator, tensor *ir.FeatureTensor, k int) (cands []Candidate) {
	defer func() {
		if recover() != nil {
			cands = nil
		}
	}()
	return gen.Propose(tensor, k)
}

// sortMembers ranks by fitness, hash as the deterministic tie-break
func sortMembers(pop []member) {
	sort.SliceStable(pop, func(i, j int) bool {
		if pop[i].fitness != pop[j].fitness {
			return pop[i].fitness > pop[j].fitness
		}
		return pop[i].hash < pop[j].hash
	})
}
