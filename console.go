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
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/launix-de/cliffopt/asm"
	"github.com/launix-de/cliffopt/field"
	"github.com/launix-de/cliffopt/ir"
	"github.com/launix-de/cliffopt/opt"
)

const newprompt = "\033[32m>\033[0m "
const resultprompt = "\033[31m=\033[0m "

var ReplInstance *readline.Instance

// Console runs the interactive shell until exit or EOF
func Console(optimizer *opt.Optimizer, store opt.Store, log *opt.ReplayLog) {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            newprompt,
		HistoryFile:       ".cliffopt-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	ReplInstance = l
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			} else {
				continue
			}
		} else if err == io.EOF {
			break
		} else if err != nil {
			panic(err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		// anti-panic func
		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Println("panic:", r, string(debug.Stack()))
				}
			}()
			runCommand(line, optimizer, store, log)
		}()
	}
}

func runCommand(line string, optimizer *opt.Optimizer, store opt.Store, log *opt.ReplayLog) {
	args := strings.Fields(line)
	switch args[0] {
	case "help":
		fmt.Print(`commands:
  help                 show this help
  stats                show live optimizer counters
  checkpoints          list stored parameter sets (* marks active)
  activate <hash>      repoint the active parameters and hot-swap them
  train [generations]  run one training session now
  bench <file>         parse a sequence corpus and report cost profiles
  settings [key [val]] show or change runtime settings
  demo                 compile a sample block and show the result
  exit                 quit
`)
	case "stats":
		fmt.Print(resultprompt)
		fmt.Printf("%+v\n", optimizer.Snapshot())
	case "checkpoints":
		lister, ok := store.(interface{ List() ([]string, error) })
		if !ok {
			fmt.Println("this backend cannot enumerate checkpoints")
			return
		}
		hashes, err := lister.List()
		if err != nil {
			fmt.Println("list failed:", err)
			return
		}
		active, _ := store.Active()
		for _, h := range hashes {
			if h == active {
				fmt.Println("*", h)
			} else {
				fmt.Println(" ", h)
			}
		}
	case "activate":
		if len(args) < 2 {
			fmt.Println("usage: activate <hash>")
			return
		}
		p, err := store.Load(args[1])
		if err != nil {
			fmt.Println("load failed:", err)
			return
		}
		if err := store.SetActive(args[1]); err != nil {
			fmt.Println("activate failed:", err)
			return
		}
		optimizer.Install(p)
		fmt.Println("activated", args[1])
	case "train":
		cfg := opt.Settings.ToConfig()
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				fmt.Println("usage: train [generations]")
				return
			}
			cfg.Generations = n
		}
		trainer := opt.NewTrainer(cfg, store, log)
		trainer.OnPromote = func(hash string, p *opt.Params) {
			optimizer.Install(p)
		}
		start := time.Now()
		hash, err := trainer.Train(context.Background())
		if err != nil {
			fmt.Println("training failed:", err)
		} else if hash == "" {
			fmt.Println("training done in", time.Since(start), "- no improvement")
		} else {
			fmt.Println("training done in", time.Since(start), "- promoted", hash)
		}
	case "bench":
		if len(args) < 2 {
			fmt.Println("usage: bench <file>")
			return
		}
		src, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Println("cannot read", args[1], ":", err)
			return
		}
		seqs, err := asm.ParseSequences(string(src))
		if err != nil {
			fmt.Println("parse failed:", err)
			return
		}
		var total uint64
		for i, seq := range seqs {
			p := asm.Profile(seq)
			c := asm.Cost(p)
			total += c
			fmt.Printf("#%d: %d instructions, profile %v, cost %d\n", i, len(seq), p, c)
		}
		fmt.Println("total cost:", total)
	case "settings":
		fmt.Print(opt.ChangeSettings(args[1:]...))
		if len(args) > 1 {
			fmt.Println()
		}
	case "demo":
		demoBlock(optimizer)
	default:
		fmt.Println("unknown command:", args[0], "- type help")
	}
}

// demoBlock compiles (a+b)*(a-b) from window slots 0 and 1 and stores the
// result in slot 2.
func demoBlock(optimizer *opt.Optimizer) {
	block := &ir.Block{Nodes: []ir.Node{
		{Kind: ir.OpLoad, Type: ir.TypeFelt, Dep1: ir.NoDep, Dep2: ir.NoDep, Slot: 0},
		{Kind: ir.OpLoad, Type: ir.TypeFelt, Dep1: ir.NoDep, Dep2: ir.NoDep, Slot: 1},
		{Kind: ir.OpAdd, Type: ir.TypeFelt, Dep1: 0, Dep2: 1},
		{Kind: ir.OpSub, Type: ir.TypeFelt, Dep1: 0, Dep2: 1},
		{Kind: ir.OpMul, Type: ir.TypeFelt, Dep1: 2, Dep2: 3},
		{Kind: ir.OpStore, Type: ir.TypeFelt, Dep1: 4, Dep2: ir.NoDep, Slot: 2},
	}}
	entry := ir.EntryContext{}
	entry.Occupied[0], entry.Occupied[1] = true, true
	entry.Live[2] = true

	baseline := opt.Lower(block)
	chosen, out, err := optimizer.Optimize(block, baseline, entry)
	if err != nil {
		fmt.Println("optimize failed:", err)
		return
	}
	fmt.Println("baseline cost", out.BaselineCost, ":")
	fmt.Println(baseline.String())
	if out.Verified {
		fmt.Println("chosen cost", out.ChosenCost, "(verified):")
	} else {
		fmt.Println("chosen cost", out.ChosenCost, "(baseline kept):")
	}
	fmt.Println(chosen.String())
	var a, b field.Fix = field.FromInt(7), field.FromInt(3)
	fmt.Println("spot check (7+3)*(7-3) =", mustEval(chosen, a, b))
}

func mustEval(seq asm.Sequence, a, b field.Fix) float64 {
	var entry [asm.MemSlots]field.Fix
	entry[0], entry[1] = a, b
	mem, err := asm.Exec(seq, entry)
	if err != nil {
		panic(err)
	}
	return mem[2].Float64()
}
