// Copyright 2026 The jcxfs Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memstore is an in-memory reference implementation of the
// internal/store contract. It exists for unit tests: fast, deterministic,
// and disposable. It is not the encrypted append-only engine jcxfs ships;
// see internal/store/filestore for that.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jrivard/jcxfs/internal/store"
)

type entry struct {
	key   []byte
	value []byte
}

type table struct {
	mode    store.TableMode
	entries []entry // kept sorted by key, then by insertion order within a key
}

// Env is an in-memory store.Env. All operations serialize on a single mutex;
// this is a correctness reference, not a performance one.
type Env struct {
	mu     sync.Mutex
	tables map[string]*table
	closed bool
}

// New returns a fresh, empty environment.
func New() *Env {
	return &Env{tables: make(map[string]*table)}
}

type txnHandle struct{}

func (e *Env) ExecuteInTransaction(ctx context.Context, fn func(store.Txn) error) error {
	_, err := e.ComputeInTransaction(ctx, func(txn store.Txn) (any, error) {
		return nil, fn(txn)
	})
	return err
}

func (e *Env) ComputeInTransaction(ctx context.Context, fn func(store.Txn) (any, error)) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("memstore: environment closed")
	}

	// Snapshot tables so an aborted transaction leaves no trace.
	saved := make(map[string]*table, len(e.tables))
	for name, t := range e.tables {
		cp := &table{mode: t.mode, entries: append([]entry(nil), t.entries...)}
		saved[name] = cp
	}

	v, err := fn(txnHandle{})
	if err != nil {
		e.tables = saved
		return nil, err
	}

	return v, nil
}

func (e *Env) OpenStore(name string, mode store.TableMode, _ store.Txn) (store.Store, error) {
	// Called from inside a transaction, which already holds e.mu.
	t, ok := e.tables[name]
	if !ok {
		t = &table{mode: mode}
		e.tables[name] = t
	} else if t.mode != mode {
		return nil, fmt.Errorf("memstore: table %q reopened with a different mode", name)
	}

	return &tableHandle{env: e, name: name}, nil
}

func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

type tableHandle struct {
	env  *Env
	name string
}

func (h *tableHandle) table() *table {
	return h.env.tables[h.name]
}

// findFirst returns the index of the first entry with the given key, or the
// insertion point if none matches.
func findFirst(entries []entry, key []byte) (idx int, found bool) {
	idx = sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].key, key) >= 0
	})
	found = idx < len(entries) && bytes.Equal(entries[idx].key, key)
	return
}

func (h *tableHandle) Get(_ store.Txn, key []byte) ([]byte, error) {
	t := h.table()
	idx, found := findFirst(t.entries, key)
	if !found {
		return nil, nil
	}
	return append([]byte(nil), t.entries[idx].value...), nil
}

func (h *tableHandle) Put(_ store.Txn, key, value []byte) error {
	t := h.table()
	idx, found := findFirst(t.entries, key)
	e := entry{key: append([]byte(nil), key...), value: append([]byte(nil), value...)}

	if t.mode == store.Unique {
		if found {
			t.entries[idx] = e
		} else {
			t.entries = append(t.entries, entry{})
			copy(t.entries[idx+1:], t.entries[idx:])
			t.entries[idx] = e
		}
		return nil
	}

	// Duplicate mode: append after the last entry sharing this key, preserving
	// insertion order among duplicates.
	end := idx
	for end < len(t.entries) && bytes.Equal(t.entries[end].key, key) {
		end++
	}
	t.entries = append(t.entries, entry{})
	copy(t.entries[end+1:], t.entries[end:])
	t.entries[end] = e

	return nil
}

func (h *tableHandle) Delete(_ store.Txn, key []byte) error {
	t := h.table()
	idx, found := findFirst(t.entries, key)
	if !found {
		return fmt.Errorf("memstore: key not present")
	}

	end := idx
	for end < len(t.entries) && bytes.Equal(t.entries[end].key, key) {
		end++
	}
	t.entries = append(t.entries[:idx], t.entries[end:]...)

	return nil
}

func (h *tableHandle) Count(_ store.Txn) (uint64, error) {
	return uint64(len(h.table().entries)), nil
}

func (h *tableHandle) OpenCursor(_ store.Txn) (store.Cursor, error) {
	return &cursor{t: h.table(), pos: -1}, nil
}

type cursor struct {
	t   *table
	pos int
}

func (c *cursor) SeekKey(key []byte) (bool, error) {
	idx, found := findFirst(c.t.entries, key)
	if !found {
		c.pos = len(c.t.entries)
		return false, nil
	}
	c.pos = idx
	return true, nil
}

func (c *cursor) SeekKeyValue(key, value []byte) (bool, error) {
	idx, found := findFirst(c.t.entries, key)
	if !found {
		c.pos = len(c.t.entries)
		return false, nil
	}
	for i := idx; i < len(c.t.entries) && bytes.Equal(c.t.entries[i].key, key); i++ {
		if bytes.Equal(c.t.entries[i].value, value) {
			c.pos = i
			return true, nil
		}
	}
	c.pos = len(c.t.entries)
	return false, nil
}

func (c *cursor) Next() (bool, error) {
	c.pos++
	if c.pos >= len(c.t.entries) {
		c.pos = len(c.t.entries)
		return false, nil
	}
	return true, nil
}

func (c *cursor) NextDup() (bool, error) {
	if c.pos < 0 || c.pos >= len(c.t.entries) {
		return false, nil
	}
	key := c.t.entries[c.pos].key
	if c.pos+1 >= len(c.t.entries) || !bytes.Equal(c.t.entries[c.pos+1].key, key) {
		return false, nil
	}
	c.pos++
	return true, nil
}

func (c *cursor) Key() []byte {
	if c.pos < 0 || c.pos >= len(c.t.entries) {
		return nil
	}
	return c.t.entries[c.pos].key
}

func (c *cursor) Value() []byte {
	if c.pos < 0 || c.pos >= len(c.t.entries) {
		return nil
	}
	return c.t.entries[c.pos].value
}

func (c *cursor) DeleteCurrent() error {
	if c.pos < 0 || c.pos >= len(c.t.entries) {
		return fmt.Errorf("memstore: cursor not positioned on an entry")
	}
	c.t.entries = append(c.t.entries[:c.pos], c.t.entries[c.pos+1:]...)
	c.pos--
	return nil
}

func (c *cursor) Close() error { return nil }
