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
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/launix-de/NonLockingReadMap"
	"github.com/pierrec/lz4/v4"
)

/*

checkpoint store

Generator parameters are content-addressed: the key is the sha256 of the
canonical serialization, so saving identical parameters twice writes
nothing. Blobs are lz4 frames under sha-sharded directories; the active
version is a one-line ACTIVE file replaced atomically (write-to-temp plus
rename), so a concurrent loader sees the old pointer or the new one, never
a torn mix.

*/

type NotFoundError struct {
	Hash string
}

func (e NotFoundError) Error() string {
	return "opt: checkpoint not found: " + e.Hash
}

// Store persists generator parameters keyed by content hash
type Store interface {
	Save(p *Params) (string, error)
	Load(hash string) (*Params, error)
	Active() (string, error)
	SetActive(hash string) error
}

// checkpointEntry caches a loaded parameter set in the read-optimized map
type checkpointEntry struct {
	hash   string
	params *Params
}

func (e checkpointEntry) GetKey() string { return e.hash }
func (e checkpointEntry) ComputeSize() uint {
	return uint(len(e.hash)) + 32*uint(len(e.params.W))
}

// FileStore is the directory-backed checkpoint store
type FileStore struct {
	path  string
	cache NonLockingReadMap.NonLockingReadMap[checkpointEntry, string]
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(path+"/blob", 0750); err != nil {
		return nil, err
	}
	return &FileStore{path: path, cache: NonLockingReadMap.New[checkpointEntry, string]()}, nil
}

func (s *FileStore) blobPath(hash string) string {
	if len(hash) >= 4 {
		return s.path + "/blob/" + hash[:2] + "/" + hash[2:4] + "/" + hash
	}
	return s.path + "/blob/" + hash
}

// Save is idempotent: identical parameters hash identically and are not
// re-written.
func (s *FileStore) Save(p *Params) (string, error) {
	hash := p.Hash()
	dst := s.blobPath(hash)
	if st, err := os.Stat(dst); err == nil && st.Size() > 0 {
		return hash, nil
	}
	if err := os.MkdirAll(dst[:strings.LastIndex(dst, "/")], 0750); err != nil {
		return "", err
	}
	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	w := lz4.NewWriter(f)
	_, err = w.Write(p.Serialize())
	if err == nil {
		err = w.Close()
	} else {
		w.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", err
	}
	s.cache.Set(&checkpointEntry{hash: hash, params: p.Clone()})
	return hash, nil
}

func (s *FileStore) Load(hash string) (*Params, error) {
	if e := s.cache.Get(hash); e != nil {
		return e.params, nil
	}
	f, err := os.Open(s.blobPath(hash))
	if err != nil {
		return nil, NotFoundError{hash}
	}
	defer f.Close()
	buf, err := io.ReadAll(lz4.NewReader(f))
	if err != nil {
		return nil, err
	}
	p, err := DeserializeParams(buf)
	if err != nil {
		return nil, err
	}
	if p.Hash() != hash {
		return nil, fmt.Errorf("opt: checkpoint %s fails its integrity check", hash)
	}
	s.cache.Set(&checkpointEntry{hash: hash, params: p})
	return p, nil
}

// List returns all stored checkpoint hashes, sorted
func (s *FileStore) List() ([]string, error) {
	var hashes []string
	err := filepath.WalkDir(s.path+"/blob", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && !strings.HasSuffix(d.Name(), ".tmp") {
			hashes = append(hashes, d.Name())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(hashes)
	return hashes, nil
}

func (s *FileStore) activePath() string {
	return s.path + "/ACTIVE"
}

func (s *FileStore) Active() (string, error) {
	b, err := os.ReadFile(s.activePath())
	if err != nil {
		return "", NotFoundError{"ACTIVE"}
	}
	return strings.TrimSpace(string(b)), nil
}

// SetActive atomically repoints the active version; the hash must already
// be saved.
func (s *FileStore) SetActive(hash string) error {
	if _, err := os.Stat(s.blobPath(hash)); err != nil {
		return NotFoundError{hash}
	}
	tmp := s.activePath() + ".tmp"
	if err := os.WriteFile(tmp, []byte(hash+"\n"), 0640); err != nil {
		return err
	}
	return os.Rename(tmp, s.activePath())
}

// Watch hot-swaps parameters promoted by another process: whenever the
// ACTIVE file is replaced, the new version is loaded and handed to onSwap.
// Close the returned watcher to stop.
func (s *FileStore) Watch(onSwap func(hash string, p *Params)) (io.Closer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return nil, err
	}
	last, _ := s.Active()
	go func() {
		for ev := range watcher.Events {
			if !strings.HasSuffix(ev.Name, "/ACTIVE") {
				continue
			}
			hash, err := s.Active()
			if err != nil || hash == last {
				continue
			}
			p, err := s.Load(hash)
			if err != nil {
				continue // partial writes are impossible, stale reads are not fatal
			}
			last = hash
			onSwap(hash, p)
		}
	}()
	return watcher, nil
}
