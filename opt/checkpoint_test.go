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
	"errors"
	"math/rand"
	"testing"

	"github.com/launix-de/cliffopt/field"
)

func TestParamsSerializeRoundTrip(t *testing.T) {
	p := RandomParams(rand.New(rand.NewSource(42)), 7)
	q, err := DeserializeParams(p.Serialize())
	if err != nil {
		t.Fatalf("DeserializeParams failed: %v", err)
	}
	if q.Hash() != p.Hash() {
		t.Errorf("round trip changed the content hash")
	}
	if q.Layout != p.Layout || q.Seed != p.Seed {
		t.Errorf("round trip lost header fields")
	}
}

func TestStoreSaveLoad(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	p := RandomParams(rand.New(rand.NewSource(1)), 1)
	hash, err := s.Save(p)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if hash != p.Hash() {
		t.Errorf("store key %s is not the content hash %s", hash, p.Hash())
	}

	// idempotent: identical parameters save to the same key
	hash2, err := s.Save(p.Clone())
	if err != nil || hash2 != hash {
		t.Errorf("re-saving identical parameters gave %s, %v", hash2, err)
	}

	q, err := s.Load(hash)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if q.Hash() != hash {
		t.Errorf("loaded parameters hash to %s, want %s", q.Hash(), hash)
	}
}

func TestStoreNotFound(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	var nf NotFoundError
	if _, err := s.Load("deadbeef"); !errors.As(err, &nf) {
		t.Errorf("Load of unknown hash returned %v, want NotFoundError", err)
	}
	if _, err := s.Active(); !errors.As(err, &nf) {
		t.Errorf("Active on empty store returned %v, want NotFoundError", err)
	}
	if err := s.SetActive("deadbeef"); !errors.As(err, &nf) {
		t.Errorf("SetActive of unknown hash returned %v, want NotFoundError", err)
	}
}

func TestStoreActivePointer(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	a := NewParams(1)
	b := NewParams(1)
	b.W[0] = field.One
	hashA, _ := s.Save(a)
	hashB, _ := s.Save(b)
	if hashA == hashB {
		t.Fatalf("distinct parameters collided")
	}

	if err := s.SetActive(hashA); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if got, _ := s.Active(); got != hashA {
		t.Errorf("Active = %s, want %s", got, hashA)
	}
	if err := s.SetActive(hashB); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if got, _ := s.Active(); got != hashB {
		t.Errorf("Active = %s, want %s after repoint", got, hashB)
	}

	hashes, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(hashes) != 2 {
		t.Errorf("List returned %d checkpoints, want 2", len(hashes))
	}
}

func TestStoreIntegrityCheck(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	p := NewParams(1)
	hash, err := s.Save(p)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	// a second store handle has a cold cache and must hit the blob
	s2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	q, err := s2.Load(hash)
	if err != nil {
		t.Fatalf("cold Load failed: %v", err)
	}
	if q.Hash() != hash {
		t.Errorf("cold-loaded parameters fail the integrity check")
	}
}
