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
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/launix-de/cliffopt/asm"
	"github.com/launix-de/cliffopt/ir"
)

/*

speculative selection

The deterministic baseline lowering is authoritative; the learned search
only ever replaces it with a candidate that is (a) strictly cheaper under
the cliff cost model and (b) independently verified equivalent. There is
no third code path: anything that goes wrong anywhere in here degrades to
the untouched baseline.

*/

// Config carries the resource knobs of the compilation-time pipeline and
// the training loop.
type Config struct {
	K             int           // candidates requested per block
	GenBudget     time.Duration // wall-clock cap per block for generation
	VerifyTimeout time.Duration // per-candidate verification cap
	VerifyWorkers int           // bound on concurrent verifications
	Population    int           // trainer population size
	Generations   int           // trainer generations per session
	BatchSize     int           // trainer evaluation batch size
	PromoteMargin int64         // fitness margin a challenger must clear
	Seed          int64         // explicit seed for all stochastic parts
}

// fallbackWarnStreak is how many consecutive fallbacks trigger the
// degraded-generator warning
const fallbackWarnStreak = 64

func DefaultConfig() Config {
	return Config{
		K:             32,
		GenBudget:     50 * time.Millisecond,
		VerifyTimeout: 200 * time.Millisecond,
		VerifyWorkers: 4,
		Population:    16,
		Generations:   12,
		BatchSize:     64,
		PromoteMargin: 1,
		Seed:          1,
	}
}

// Outcome is the append-only record of one compiled block
type Outcome struct {
	ID           uuid.UUID
	Tensor       *ir.FeatureTensor
	Baseline     asm.Sequence
	BaselineCost uint64
	Chosen       asm.Sequence
	ChosenCost   uint64
	Verified     bool // false means the baseline was emitted untouched
	Generator    string
}

// Stats are the selector's atomic counters, sampled by the dashboard
type Stats struct {
	Blocks        atomic.Uint64
	Improved      atomic.Uint64
	Fallbacks     atomic.Uint64
	VerifyCalls   atomic.Uint64
	VerifyTimeout atomic.Uint64
	GenFailures   atomic.Uint64
}

// Optimizer is the compilation-time entry point. Safe for concurrent use
// across independent blocks: the only shared mutable state is the active
// parameter handle, which is swapped atomically.
type Optimizer struct {
	cfg      Config
	active   atomic.Pointer[Params]
	verifier Verifier
	log      *ReplayLog
	sem      chan struct{} // verification worker bound
	Stats    Stats

	fallbackStreak atomic.Uint64

	// NewGenerator builds the generator for a parameter snapshot; replace
	// it to plug in a different search procedure. Defaults to the shipped
	// rewrite-template Policy.
	NewGenerator func(*Params) Generator
}

func NewOptimizer(cfg Config, params *Params, verifier Verifier, log *ReplayLog) *Optimizer {
	if cfg.VerifyWorkers < 1 {
		cfg.VerifyWorkers = 1
	}
	o := &Optimizer{cfg: cfg, verifier: verifier, log: log,
		sem: make(chan struct{}, cfg.VerifyWorkers)}
	o.NewGenerator = func(p *Params) Generator { return NewPolicy(p) }
	o.active.Store(params)
	return o
}

// ActiveParams returns the current parameter snapshot
func (o *Optimizer) ActiveParams() *Params {
	return o.active.Load()
}

// Install atomically swaps the active parameters; in-flight compilations
// keep the snapshot they already loaded.
func (o *Optimizer) Install(p *Params) {
	o.active.Store(p)
}

// Optimize is the drop-in post-pass after baseline lowering. It returns
// either the untouched baseline or a strictly cheaper verified candidate,
// always together with the outcome record it appended to the replay log.
// The only error case is a malformed block, which is a caller bug.
func (o *Optimizer) Optimize(block *ir.Block, baseline asm.Sequence, entry ir.EntryContext) (asm.Sequence, Outcome, error) {
	baseCost := asm.SeqCost(baseline)

	tensor, err := ir.Encode(block, entry)
	if err != nil {
		return nil, Outcome{}, err
	}
	o.Stats.Blocks.Add(1)

	params := o.active.Load()
	out := Outcome{
		ID:           uuid.New(),
		Tensor:       tensor,
		Baseline:     baseline,
		BaselineCost: baseCost,
		Chosen:       baseline,
		ChosenCost:   baseCost,
		Generator:    params.Hash(),
	}

	type scored struct {
		cand Candidate
		cost uint64
	}
	var pool []scored
	for _, c := range o.propose(params, tensor) {
		if c.Seq.Check() != nil {
			continue // ill-formed output is a failed candidate, not an error
		}
		cost := asm.SeqCost(c.Seq)
		if cost >= baseCost {
			continue // cannot win, no verification attempted
		}
		pool = append(pool, scored{c, cost})
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].cost != pool[j].cost {
			return pool[i].cost < pool[j].cost
		}
		return pool[i].cand.Seq.Digest() < pool[j].cand.Seq.Digest()
	})

	tensorDigest := tensor.Digest()
	for _, s := range pool {
		verdict := o.verifyOne(block, s.cand.Seq)
		if o.log != nil {
			o.log.AppendVerdict(VerdictRecord{
				Tensor:   tensorDigest,
				Sequence: s.cand.Seq.Digest(),
				Verdict:  verdict,
			})
		}
		if verdict == Verified {
			// first verified wins: the sort made it the cheapest one
			out.Chosen = s.cand.Seq
			out.ChosenCost = s.cost
			out.Verified = true
			break
		}
	}

	if out.Verified {
		o.Stats.Improved.Add(1)
		o.fallbackStreak.Store(0)
	} else {
		o.Stats.Fallbacks.Add(1)
		// a long unbroken fallback run means the generator degraded
		if streak := o.fallbackStreak.Add(1); streak == fallbackWarnStreak {
			fmt.Printf("optimizer degraded: %d consecutive blocks kept their baseline (generator %s)\n",
				streak, out.Generator)
		}
	}
	if o.log != nil {
		o.log.Append(out)
	}
	return out.Chosen, out, nil
}

// propose calls the generator under the wall-clock budget, catching panics
// at the boundary: a generator failure is zero candidates, never an error.
func (o *Optimizer) propose(params *Params, tensor *ir.FeatureTensor) []Candidate {
	gen := o.NewGenerator(params)
	done := make(chan []Candidate, 1)
	go func() {
		defer func() {
			if recover() != nil {
				o.Stats.GenFailures.Add(1)
				done <- nil
			}
		}()
		done <- gen.Propose(tensor, o.cfg.K)
	}()
	budget := o.cfg.GenBudget
	if budget <= 0 {
		return <-done
	}
	select {
	case c := <-done:
		return c
	case <-time.After(budget):
		// over budget: the result is abandoned, the block keeps its baseline
		o.Stats.GenFailures.Add(1)
		return nil
	}
}

// verifyOne runs one verification under the worker bound and the
// per-candidate timeout. A timeout only fails this candidate; the caller
// proceeds to the next one.
func (o *Optimizer) verifyOne(block *ir.Block, seq asm.Sequence) Verdict {
	o.sem <- struct{}{}
	defer func() { <-o.sem }()
	o.Stats.VerifyCalls.Add(1)

	ctx := context.Background()
	var cancel context.CancelFunc
	if o.cfg.VerifyTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.cfg.VerifyTimeout)
		defer cancel()
	}
	done := make(chan Verdict, 1)
	go func() {
		defer func() {
			if recover() != nil {
				done <- Inconclusive
			}
		}()
		done <- o.verifier.Verify(ctx, block, seq)
	}()
	select {
	case v := <-done:
		return v
	case <-ctx.Done():
		o.Stats.VerifyTimeout.Add(1)
		return Inconclusive
	}
}
