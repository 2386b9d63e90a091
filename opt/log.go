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
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"

	"github.com/launix-de/cliffopt/asm"
	"github.com/launix-de/cliffopt/field"
	"github.com/launix-de/cliffopt/ir"
)

/*

replay log

Append-only, line-framed: "outcome {json}" and "verdict {json}" records.
All producers funnel through one buffered channel drained by a single
writer goroutine, so concurrent compilation threads never interleave
partial writes. Each line is independently deserializable and the file is
safe to truncate at any record boundary; a partial trailing line after a
crash is simply skipped on replay.

*/

// VerdictRecord caches one live verification result for the trainer, so
// training never has to call the verifier itself.
type VerdictRecord struct {
	Tensor   string  `json:"tensor"`
	Sequence string  `json:"seq"`
	Verdict  Verdict `json:"verdict"`
}

func (v VerdictRecord) key() string {
	return v.Tensor + "/" + v.Sequence
}

type outcomeJSON struct {
	ID           string `json:"id"`
	N            int    `json:"n"`
	Tensor       string `json:"tensor"`
	Baseline     string `json:"baseline"`
	BaselineCost uint64 `json:"baseline_cost"`
	Chosen       string `json:"chosen"`
	ChosenCost   uint64 `json:"chosen_cost"`
	Verified     bool   `json:"verified"`
	Generator    string `json:"generator"`
}

func tensorToB64(t *ir.FeatureTensor) string {
	vec := t.Vector()
	buf := make([]byte, 0, len(vec)*32)
	for _, f := range vec {
		b := f.Bytes()
		buf = append(buf, b[:]...)
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func tensorFromB64(n int, s string) (*ir.FeatureTensor, error) {
	if n < 0 || n > ir.MaxNodes {
		return nil, fmt.Errorf("opt: tensor node count %d out of range", n)
	}
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(buf) != ir.TensorLen*32 {
		return nil, fmt.Errorf("opt: tensor blob has %d bytes, want %d", len(buf), ir.TensorLen*32)
	}
	t := new(ir.FeatureTensor)
	t.N = n
	pos := 0
	next := func() field.Fix {
		var b [32]byte
		copy(b[:], buf[pos:])
		pos += 32
		return field.FixFromBytes(b)
	}
	for i := 0; i < ir.MaxNodes; i++ {
		for j := 0; j < ir.NodeRecordLen; j++ {
			t.Node[i][j] = next()
		}
	}
	for i := 0; i < ir.EntryLen; i++ {
		t.Entry[i] = next()
	}
	return t, nil
}

func encodeOutcome(o Outcome) ([]byte, error) {
	j := outcomeJSON{
		ID:           o.ID.String(),
		N:            o.Tensor.N,
		Tensor:       tensorToB64(o.Tensor),
		Baseline:     o.Baseline.String(),
		BaselineCost: o.BaselineCost,
		Chosen:       o.Chosen.String(),
		ChosenCost:   o.ChosenCost,
		Verified:     o.Verified,
		Generator:    o.Generator,
	}
	return json.Marshal(j)
}

func decodeOutcome(b []byte) (Outcome, error) {
	var j outcomeJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return Outcome{}, err
	}
	tensor, err := tensorFromB64(j.N, j.Tensor)
	if err != nil {
		return Outcome{}, err
	}
	baseline, err := asm.ParseSequence(j.Baseline)
	if err != nil {
		return Outcome{}, err
	}
	chosen := baseline
	if j.Chosen != j.Baseline {
		chosen, err = asm.ParseSequence(j.Chosen)
		if err != nil {
			return Outcome{}, err
		}
	}
	id, _ := uuid.Parse(j.ID)
	return Outcome{
		ID:           id,
		Tensor:       tensor,
		Baseline:     baseline,
		BaselineCost: j.BaselineCost,
		Chosen:       chosen,
		ChosenCost:   j.ChosenCost,
		Verified:     j.Verified,
		Generator:    j.Generator,
	}, nil
}

type logmsg struct {
	line   []byte
	sync   chan struct{} // non-nil: flush request
	rotate chan error    // non-nil: seal the segment and reopen
}

// ReplayLog is the append-only outcome log with a single writer goroutine
type ReplayLog struct {
	path    string
	ch      chan logmsg
	done    chan struct{}
	closing sync.Once
}

func OpenReplayLog(path string) (*ReplayLog, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
	if err != nil {
		return nil, err
	}
	l := &ReplayLog{path: path, ch: make(chan logmsg, 256), done: make(chan struct{})}
	go l.writer(f)
	return l, nil
}

func (l *ReplayLog) writer(f *os.File) {
	defer close(l.done)
	for m := range l.ch {
		if m.line != nil {
			f.Write(m.line)
		}
		if m.sync != nil {
			f.Sync()
			close(m.sync)
		}
		if m.rotate != nil {
			f.Sync()
			f.Close()
			sealed := fmt.Sprintf("%s.%d", l.path, time.Now().Unix())
			err := os.Rename(l.path, sealed)
			if err == nil {
				go compressSegment(sealed)
			}
			f, _ = os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
			m.rotate <- err
		}
	}
	f.Sync()
	f.Close()
}

// Append queues one outcome record; it never blocks compilation on disk
func (l *ReplayLog) Append(o Outcome) {
	b, err := encodeOutcome(o)
	if err != nil {
		return // an unloggable outcome degrades training, never compilation
	}
	var buf bytes.Buffer
	buf.WriteString("outcome ")
	buf.Write(b)
	buf.WriteString("\n")
	l.ch <- logmsg{line: buf.Bytes()}
}

// AppendVerdict queues one cached verification verdict
func (l *ReplayLog) AppendVerdict(v VerdictRecord) {
	b, _ := json.Marshal(v)
	var buf bytes.Buffer
	buf.WriteString("verdict ")
	buf.Write(b)
	buf.WriteString("\n")
	l.ch <- logmsg{line: buf.Bytes()}
}

// Sync flushes everything queued so far to disk and waits for it
func (l *ReplayLog) Sync() {
	c := make(chan struct{})
	l.ch <- logmsg{sync: c}
	<-c
}

// Close is idempotent: the exit hook and an explicit shutdown may both
// reach it.
func (l *ReplayLog) Close() {
	l.closing.Do(func() { close(l.ch) })
	<-l.done
}

// Size reports the current byte size of the live segment
func (l *ReplayLog) Size() int64 {
	st, err := os.Stat(l.path)
	if err != nil {
		return 0
	}
	return st.Size()
}

// ReadAll replays the log from disk: all outcome records in write order
// plus the verdict cache keyed by tensor digest + sequence digest. It stops
// silently at the first undecodable line, which after a crash is the
// partial tail.
func (l *ReplayLog) ReadAll() ([]Outcome, map[string]Verdict, error) {
	return readLogFile(l.path)
}

func readLogFile(path string) ([]Outcome, map[string]Verdict, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, map[string]Verdict{}, nil
		}
		return nil, nil, err
	}
	defer f.Close()
	return readLog(f)
}

func readLog(r io.Reader) ([]Outcome, map[string]Verdict, error) {
	var outcomes []Outcome
	verdicts := make(map[string]Verdict)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "outcome "):
			o, err := decodeOutcome([]byte(line[len("outcome "):]))
			if err != nil {
				return outcomes, verdicts, nil
			}
			outcomes = append(outcomes, o)
		case strings.HasPrefix(line, "verdict "):
			var v VerdictRecord
			if err := json.Unmarshal([]byte(line[len("verdict "):]), &v); err != nil {
				return outcomes, verdicts, nil
			}
			verdicts[v.key()] = v.Verdict
		case line == "":
			// nop
		default:
			return outcomes, verdicts, nil
		}
	}
	return outcomes, verdicts, scanner.Err()
}

// Rotate seals the live segment away under a timestamped name and
// compresses it in the background; the log keeps appending to a fresh
// file through the same channel.
func (l *ReplayLog) Rotate() error {
	c := make(chan error, 1)
	l.ch <- logmsg{rotate: c}
	return <-c
}

func compressSegment(path string) {
	in, err := os.Open(path)
	if err != nil {
		return
	}
	defer in.Close()
	out, err := os.Create(path + ".xz")
	if err != nil {
		return
	}
	w, err := xz.NewWriter(out)
	if err != nil {
		out.Close()
		return
	}
	if _, err := io.Copy(w, in); err == nil {
		w.Close()
		out.Close()
		os.Remove(path)
	} else {
		w.Close()
		out.Close()
		os.Remove(path + ".xz")
	}
}
