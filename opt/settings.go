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
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dc0d/onexit"
)

type SettingsT struct {
	K               int
	GenBudgetMs     int
	VerifyTimeoutMs int
	VerifyWorkers   int
	Population      int
	Generations     int
	BatchSize       int
	PromoteMargin   int64
	Seed            int64
	SyncVerdicts    bool // flush the replay log after every compilation
}

var Settings SettingsT = SettingsT{32, 50, 200, 4, 16, 12, 64, 1, 1, false}

// call this after you filled Settings
func InitSettings(log *ReplayLog) {
	if log != nil {
		onexit.Register(func() { log.Close() }) // flush the replay log on exit
	}
}

// ToConfig maps the mutable runtime settings onto a selector/trainer Config.
func (s SettingsT) ToConfig() Config {
	cfg := DefaultConfig()
	cfg.K = s.K
	cfg.GenBudget = time.Duration(s.GenBudgetMs) * time.Millisecond
	cfg.VerifyTimeout = time.Duration(s.VerifyTimeoutMs) * time.Millisecond
	cfg.VerifyWorkers = s.VerifyWorkers
	cfg.Population = s.Population
	cfg.Generations = s.Generations
	cfg.BatchSize = s.BatchSize
	cfg.PromoteMargin = s.PromoteMargin
	cfg.Seed = s.Seed
	return cfg
}

// ChangeSettings reads or writes one named setting; with no key it lists
// every setting. Unknown keys panic.
func ChangeSettings(a ...string) string {
	get := map[string]func() string{
		"K":               func() string { return strconv.Itoa(Settings.K) },
		"GenBudgetMs":     func() string { return strconv.Itoa(Settings.GenBudgetMs) },
		"VerifyTimeoutMs": func() string { return strconv.Itoa(Settings.VerifyTimeoutMs) },
		"VerifyWorkers":   func() string { return strconv.Itoa(Settings.VerifyWorkers) },
		"Population":      func() string { return strconv.Itoa(Settings.Population) },
		"Generations":     func() string { return strconv.Itoa(Settings.Generations) },
		"BatchSize":       func() string { return strconv.Itoa(Settings.BatchSize) },
		"PromoteMargin":   func() string { return strconv.FormatInt(Settings.PromoteMargin, 10) },
		"Seed":            func() string { return strconv.FormatInt(Settings.Seed, 10) },
		"SyncVerdicts":    func() string { return strconv.FormatBool(Settings.SyncVerdicts) },
	}
	if len(a) == 0 {
		keys := make([]string, 0, len(get))
		for k := range get {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := ""
		for _, k := range keys {
			out += fmt.Sprintf("%s = %s\n", k, get[k]())
		}
		return out
	}
	g, ok := get[a[0]]
	if !ok {
		panic("unknown setting: " + a[0])
	}
	if len(a) == 1 {
		return g()
	}
	switch a[0] {
	case "K":
		Settings.K = mustAtoi(a[1])
	case "GenBudgetMs":
		Settings.GenBudgetMs = mustAtoi(a[1])
	case "VerifyTimeoutMs":
		Settings.VerifyTimeoutMs = mustAtoi(a[1])
	case "VerifyWorkers":
		Settings.VerifyWorkers = mustAtoi(a[1])
	case "Population":
		Settings.Population = mustAtoi(a[1])
	case "Generations":
		Settings.Generations = mustAtoi(a[1])
	case "BatchSize":
		Settings.BatchSize = mustAtoi(a[1])
	case "PromoteMargin":
		Settings.PromoteMargin = int64(mustAtoi(a[1]))
	case "Seed":
		Settings.Seed = int64(mustAtoi(a[1]))
	case "SyncVerdicts":
		b, err := strconv.ParseBool(a[1])
		if err != nil {
			panic("invalid bool for SyncVerdicts: " + a[1])
		}
		Settings.SyncVerdicts = b
	}
	return g()
}

func mustAtoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		panic("invalid number: " + s)
	}
	return n
}
