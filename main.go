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
/*
	cliffopt self-optimizing code generator for cliff-cost stack machines
*/
package main

import "os"
import "io"
import "fmt"
import "flag"
import "time"
import "sync"
import "errors"
import "context"
import "syscall"
import "runtime"
import "os/signal"
import "crypto/rand"
import "runtime/pprof"
import "github.com/google/uuid"
import "github.com/launix-de/cliffopt/opt"

// workaround for flags package to allow multiple values
type arrayFlags []string

func (i *arrayFlags) String() string {
	return "dummy"
}

func (i *arrayFlags) Set(value string) error {
	*i = append(*i, value)
	return nil
}

func main() {
	fmt.Print(`cliffopt Copyright (C) 2026   Carl-Philip Hänsch
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;

`)

	// init random generator for UUIDs
	uuid.SetRand(rand.Reader)

	// parse command line options
	var commands arrayFlags
	flag.Var(&commands, "c", "Execute console command")

	basepath := "data"
	flag.StringVar(&basepath, "data", "data", "Data folder for checkpoints and the replay log")

	backend := "files"
	flag.StringVar(&backend, "backend", "files", "Checkpoint backend: files or s3")

	initStore := false
	flag.BoolVar(&initStore, "init", false, "Bootstrap the checkpoint store with fresh parameters")

	dashboard := ""
	flag.StringVar(&dashboard, "dashboard", "", "Port for the HTTP/websocket status dashboard")

	profile := ""
	flag.StringVar(&profile, "profile", "", "Write a CPU profile to this file")

	trainEvery := 15
	flag.IntVar(&trainEvery, "train-every", 15, "Minutes between background training sessions (0 = off)")

	flag.Parse()

	store, err := opt.NewStore(opt.BackendConfig{Backend: backend, Path: basepath})
	if err != nil {
		fmt.Println("cannot open checkpoint store:", err)
		os.Exit(1)
	}

	// bootstrap or load the active parameter set
	activeHash, err := store.Active()
	if err != nil {
		if !initStore {
			fmt.Println("no active checkpoint in", basepath, "- run with -init to bootstrap:", err)
			os.Exit(1)
		}
		p := opt.NewParams(opt.Settings.Seed)
		activeHash, err = store.Save(p)
		if err == nil {
			err = store.SetActive(activeHash)
		}
		if err != nil {
			fmt.Println("cannot bootstrap checkpoint store:", err)
			os.Exit(1)
		}
		fmt.Println("bootstrapped checkpoint store with", activeHash)
	}
	params, err := store.Load(activeHash)
	if err != nil {
		fmt.Println("cannot load active checkpoint:", err)
		os.Exit(1)
	}

	log, err := opt.OpenReplayLog(basepath + "/replay.log")
	if err != nil {
		fmt.Println("cannot open replay log:", err)
		os.Exit(1)
	}
	opt.InitSettings(log)

	optimizer := opt.NewOptimizer(opt.Settings.ToConfig(), params, &opt.DiffVerifier{}, log)
	fmt.Println("active parameters:", activeHash)

	// hot-swap parameters promoted by other processes
	var watcher io.Closer
	if fs, ok := store.(*opt.FileStore); ok {
		watcher, err = fs.Watch(func(hash string, p *opt.Params) {
			fmt.Println("hot-swapping parameters:", hash)
			optimizer.Install(p)
		})
		if err != nil {
			fmt.Println("cannot watch checkpoint store:", err)
		}
	}

	if dashboard != "" {
		optimizer.ServeDashboard(dashboard)
		fmt.Println("dashboard listening on port " + dashboard)
	}

	for _, command := range commands {
		fmt.Println("Executing " + command + " ...")
		runCommand(command, optimizer, store, log)
	}

	// install exit handler
	cancelChan := make(chan os.Signal, 1)
	signal.Notify(cancelChan, syscall.SIGTERM, syscall.SIGINT)
	go (func() {
		<-cancelChan
		exitroutine(watcher, log)
		os.Exit(1)
	})()

	fmt.Print(`

    Type help to show available commands

`)
	// init profiling
	if profile != "" {
		f, err := os.Create(profile)
		if err != nil {
			panic(err)
		}
		defer f.Close()
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	// start cron
	go cronroutine(trainEvery, optimizer, store, log)

	// REPL shell
	Console(optimizer, store, log)

	// normal shutdown
	exitroutine(watcher, log)
}

var exitsignal chan bool = make(chan bool, 1) // set true to start shutdown routine and wait for all jobs
var exitable sync.WaitGroup

func cronroutine(minutes int, optimizer *opt.Optimizer, store opt.Store, log *opt.ReplayLog) {
	if minutes <= 0 {
		return
	}
	exitable.Add(1)
	for {
		// wait first
		select {
		case <-exitsignal:
			// about to exit; confirm the waitgroup and exit
			exitable.Done()
			return
		case <-time.After(time.Duration(minutes) * time.Minute):
			// continue
		}

		fmt.Println("running training cron ...")
		trainer := opt.NewTrainer(opt.Settings.ToConfig(), store, log)
		trainer.OnPromote = func(hash string, p *opt.Params) {
			fmt.Println("promoted parameters:", hash)
			optimizer.Install(p)
		}
		start := time.Now()
		hash, err := trainer.Train(context.Background())
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Println("training failed:", err)
		} else if hash == "" {
			fmt.Println("training done in", time.Since(start), "- no improvement")
		} else {
			fmt.Println("training done in", time.Since(start), "- promoted", hash)
		}
	}
}

func exitroutine(watcher io.Closer, log *opt.ReplayLog) {
	exitsignal <- true
	exitable.Wait()
	fmt.Println("Exit procedure...")
	if ReplInstance != nil {
		// in case it dosen't exit properly
		ReplInstance.Close()
	}
	if watcher != nil {
		watcher.Close()
	}
	fmt.Println("finalizing replay log...")
	log.Close()
	runtime.GC()
	fmt.Println("Exit procedure finished")
}
