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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/docker/go-units"
	"github.com/gorilla/websocket"
)

// StatsSnapshot is one consistent sample of the live counters
type StatsSnapshot struct {
	Blocks        uint64 `json:"blocks"`
	Improved      uint64 `json:"improved"`
	Fallbacks     uint64 `json:"fallbacks"`
	VerifyCalls   uint64 `json:"verifyCalls"`
	VerifyTimeout uint64 `json:"verifyTimeouts"`
	GenFailures   uint64 `json:"genFailures"`
	ActiveParams  string `json:"activeParams"`
	LogSize       string `json:"logSize"`
}

func (o *Optimizer) Snapshot() StatsSnapshot {
	s := StatsSnapshot{
		Blocks:        o.Stats.Blocks.Load(),
		Improved:      o.Stats.Improved.Load(),
		Fallbacks:     o.Stats.Fallbacks.Load(),
		VerifyCalls:   o.Stats.VerifyCalls.Load(),
		VerifyTimeout: o.Stats.VerifyTimeout.Load(),
		GenFailures:   o.Stats.GenFailures.Load(),
	}
	if p := o.ActiveParams(); p != nil {
		s.ActiveParams = p.Hash()
	}
	if o.log != nil {
		s.LogSize = units.HumanSize(float64(o.log.Size()))
	}
	return s
}

// ServeDashboard starts the HTTP status endpoint: GET /stats returns one
// JSON snapshot, GET /ws upgrades to a websocket that pushes a snapshot
// every second until the client disconnects.
func (o *Optimizer) ServeDashboard(port string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", func(res http.ResponseWriter, req *http.Request) {
		res.Header().Set("Content-Type", "application/json")
		json.NewEncoder(res).Encode(o.Snapshot())
	})
	mux.HandleFunc("/ws", func(res http.ResponseWriter, req *http.Request) {
		var upgrader = websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		}
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
		ws, err := upgrader.Upgrade(res, req, nil)
		if err != nil {
			return
		}
		go func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Println("error in websocket push:", r)
				}
				ws.Close()
			}()
			ticker := time.NewTicker(1 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				b, _ := json.Marshal(o.Snapshot())
				if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
					return // closed connection
				}
			}
		}()
		go func() {
			for {
				// discard inbound frames, detect close
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
	server := &http.Server{
		Addr:           fmt.Sprintf(":%v", port),
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go server.ListenAndServe()
}
