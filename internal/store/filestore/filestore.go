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

// Package filestore is the production-shaped store.Env: an encrypted,
// append-only mutation log on disk, replayed into an in-memory index on
// open, guarded by an exclusive process lock. This is the concrete engine
// jcxfs ships behind the abstract store.Env interface.
//
// Every record appended to the log is individually encrypted with
// ChaCha20 under the database's DEK, one random 12-byte nonce per record —
// there is no page cache or B-tree here, just a durable history of puts and
// deletes replayed in order at open time. That keeps the store's on-disk
// bytes opaque ciphertext without requiring a full LSM/B-tree
// implementation.
package filestore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/sys/unix"

	"github.com/jrivard/jcxfs/internal/store"
)

const (
	lockFileName = "xd.lck"
	logFileName  = "jcxfs.log"
	nonceSize    = chacha20.NonceSize // 12 bytes
)

// Mutation opcodes, one byte, prefixed to every log record.
const (
	opPut byte = iota + 1
	opDelete
	opCreateTable
)

type entry struct {
	key, value []byte
}

type table struct {
	mode    store.TableMode
	entries []entry
}

// Env is the on-disk encrypted append-only store. One Env owns one
// directory; Open takes an exclusive flock on lockFileName for the lifetime
// of the process, so only one writer can hold a given store open at a time.
type Env struct {
	mu     sync.Mutex
	dir    string
	dek    []byte
	lockFd *os.File
	log    *os.File
	tables map[string]*table
	closed bool
}

// Open locks dir/xd.lck exclusively, then replays dir/jcxfs.log (creating it
// if absent) to rebuild the in-memory table index. dek is the already-unwrapped
// data encryption key (see internal/keyhier); the caller obtained it before
// ever reaching this package.
func Open(dir string, dek []byte) (*Env, error) {
	if len(dek) != chacha20.KeySize {
		return nil, fmt.Errorf("filestore: dek must be %d bytes, got %d", chacha20.KeySize, len(dek))
	}

	lockFd, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("filestore: opening lock file: %w", err)
	}
	if err := unix.Flock(int(lockFd.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lockFd.Close()
		return nil, fmt.Errorf("filestore: environment already locked by another process: %w", err)
	}

	logFd, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		unix.Flock(int(lockFd.Fd()), unix.LOCK_UN)
		lockFd.Close()
		return nil, fmt.Errorf("filestore: opening log file: %w", err)
	}

	e := &Env{
		dir:    dir,
		dek:    append([]byte(nil), dek...),
		lockFd: lockFd,
		log:    logFd,
		tables: make(map[string]*table),
	}

	if err := e.replay(); err != nil {
		e.Close()
		return nil, fmt.Errorf("filestore: replaying log: %w", err)
	}

	return e, nil
}

// replay reads every record in the log from the start and applies it to the
// in-memory tables, in order. Called once, under no concurrent access, during
// Open.
func (e *Env) replay() error {
	if _, err := e.log.Seek(0, io.SeekStart); err != nil {
		return err
	}

	r := &countingReader{r: e.log}
	for {
		rec, err := readRecord(r, e.dek)
		if err == io.EOF {
			break
		}
		if err != nil {
			// A torn trailing write (process killed mid-append) is tolerated:
			// anything after the last complete record is simply not replayed.
			if r.n > 0 {
				break
			}
			return err
		}
		e.apply(rec)
	}

	if _, err := e.log.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	return nil
}

func (e *Env) apply(rec record) {
	switch rec.op {
	case opCreateTable:
		if _, ok := e.tables[rec.table]; !ok {
			e.tables[rec.table] = &table{mode: store.TableMode(rec.mode)}
		}
	case opPut:
		t := e.tables[rec.table]
		putEntry(t, rec.key, rec.value)
	case opDelete:
		t := e.tables[rec.table]
		deleteKey(t, rec.key)
	}
}

type txnHandle struct {
	// pending buffers the records this transaction will append on commit.
	pending []record
}

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
		return nil, fmt.Errorf("filestore: environment closed")
	}

	saved := make(map[string]*table, len(e.tables))
	for name, t := range e.tables {
		saved[name] = &table{mode: t.mode, entries: append([]entry(nil), t.entries...)}
	}

	txn := &txnHandle{}
	v, err := fn(txn)
	if err != nil {
		e.tables = saved
		return nil, err
	}

	for _, rec := range txn.pending {
		if err := writeRecord(e.log, e.dek, rec); err != nil {
			e.tables = saved
			return nil, fmt.Errorf("filestore: appending to log: %w", err)
		}
	}
	if err := e.log.Sync(); err != nil {
		e.tables = saved
		return nil, fmt.Errorf("filestore: syncing log: %w", err)
	}

	return v, nil
}

func (e *Env) OpenStore(name string, mode store.TableMode, txn store.Txn) (store.Store, error) {
	// Called from inside a transaction, which already holds e.mu.
	t, ok := e.tables[name]
	if !ok {
		t = &table{mode: mode}
		e.tables[name] = t
		th := txn.(*txnHandle)
		th.pending = append(th.pending, record{op: opCreateTable, table: name, mode: byte(mode)})
	} else if t.mode != mode {
		return nil, fmt.Errorf("filestore: table %q reopened with a different mode", name)
	}

	return &tableHandle{env: e, name: name}, nil
}

func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	if err := e.log.Close(); err != nil {
		firstErr = err
	}
	unix.Flock(int(e.lockFd.Fd()), unix.LOCK_UN)
	if err := e.lockFd.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

type tableHandle struct {
	env  *Env
	name string
}

func (h *tableHandle) table() *table { return h.env.tables[h.name] }

func findFirst(entries []entry, key []byte) (idx int, found bool) {
	idx = sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].key, key) >= 0
	})
	found = idx < len(entries) && bytes.Equal(entries[idx].key, key)
	return
}

func putEntry(t *table, key, value []byte) {
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
		return
	}

	end := idx
	for end < len(t.entries) && bytes.Equal(t.entries[end].key, key) {
		end++
	}
	t.entries = append(t.entries, entry{})
	copy(t.entries[end+1:], t.entries[end:])
	t.entries[end] = e
}

func deleteKey(t *table, key []byte) bool {
	idx, found := findFirst(t.entries, key)
	if !found {
		return false
	}
	end := idx
	for end < len(t.entries) && bytes.Equal(t.entries[end].key, key) {
		end++
	}
	t.entries = append(t.entries[:idx], t.entries[end:]...)
	return true
}

func (h *tableHandle) Get(_ store.Txn, key []byte) ([]byte, error) {
	t := h.table()
	idx, found := findFirst(t.entries, key)
	if !found {
		return nil, nil
	}
	return append([]byte(nil), t.entries[idx].value...), nil
}

func (h *tableHandle) Put(txn store.Txn, key, value []byte) error {
	th := txn.(*txnHandle)
	putEntry(h.table(), key, value)
	th.pending = append(th.pending, record{op: opPut, table: h.name, key: key, value: value})
	return nil
}

func (h *tableHandle) Delete(txn store.Txn, key []byte) error {
	if !deleteKey(h.table(), key) {
		return fmt.Errorf("filestore: key not present")
	}
	th := txn.(*txnHandle)
	th.pending = append(th.pending, record{op: opDelete, table: h.name, key: key})
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
		return fmt.Errorf("filestore: cursor not positioned on an entry")
	}
	c.t.entries = append(c.t.entries[:c.pos], c.t.entries[c.pos+1:]...)
	c.pos--
	return nil
}

func (c *cursor) Close() error { return nil }

// record is the decrypted shape of one log entry.
type record struct {
	op    byte
	table string
	mode  byte // only meaningful for opCreateTable
	key   []byte
	value []byte
}

// On-disk record wire format (all fields inside the encrypted envelope):
//
//	op byte
//	tableLen uint16, table bytes
//	mode byte
//	keyLen uint32, key bytes
//	valueLen uint32, value bytes
func encodeRecord(rec record) []byte {
	var buf bytes.Buffer
	buf.WriteByte(rec.op)

	writeUint16Prefixed(&buf, []byte(rec.table))
	buf.WriteByte(rec.mode)
	writeUint32Prefixed(&buf, rec.key)
	writeUint32Prefixed(&buf, rec.value)

	return buf.Bytes()
}

func decodeRecord(b []byte) (record, error) {
	var rec record
	if len(b) < 1 {
		return rec, fmt.Errorf("filestore: truncated record")
	}
	rec.op = b[0]
	if rec.op != opPut && rec.op != opDelete && rec.op != opCreateTable {
		return rec, fmt.Errorf("filestore: unrecognized opcode %d", rec.op)
	}
	b = b[1:]

	tbl, rest, err := readUint16Prefixed(b)
	if err != nil {
		return rec, err
	}
	rec.table = string(tbl)
	b = rest

	if len(b) < 1 {
		return rec, fmt.Errorf("filestore: truncated record")
	}
	rec.mode = b[0]
	b = b[1:]

	key, rest, err := readUint32Prefixed(b)
	if err != nil {
		return rec, err
	}
	rec.key = key
	b = rest

	value, rest, err := readUint32Prefixed(b)
	if err != nil {
		return rec, err
	}
	rec.value = value
	b = rest

	if len(b) != 0 {
		return rec, fmt.Errorf("filestore: trailing bytes in record")
	}
	return rec, nil
}

func writeUint16Prefixed(buf *bytes.Buffer, data []byte) {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

func writeUint32Prefixed(buf *bytes.Buffer, data []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

func readUint16Prefixed(b []byte) (data, rest []byte, err error) {
	if len(b) < 2 {
		return nil, nil, fmt.Errorf("filestore: truncated length prefix")
	}
	n := binary.BigEndian.Uint16(b)
	b = b[2:]
	if len(b) < int(n) {
		return nil, nil, fmt.Errorf("filestore: truncated field")
	}
	return b[:n], b[n:], nil
}

func readUint32Prefixed(b []byte) (data, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("filestore: truncated length prefix")
	}
	n := binary.BigEndian.Uint32(b)
	b = b[4:]
	if len(b) < int(n) {
		return nil, nil, fmt.Errorf("filestore: truncated field")
	}
	return b[:n], b[n:], nil
}

// writeRecord encrypts rec with a fresh random nonce and appends
// [nonce(12) | uint32 ciphertext length | ciphertext] to w.
func writeRecord(w io.Writer, dek []byte, rec record) error {
	plain := encodeRecord(rec)

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}

	cipherStream, err := chacha20.NewUnauthenticatedCipher(dek, nonce[:])
	if err != nil {
		return err
	}
	ciphertext := make([]byte, len(plain))
	cipherStream.XORKeyStream(ciphertext, plain)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(ciphertext)))

	if _, err := w.Write(nonce[:]); err != nil {
		return err
	}
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(ciphertext)
	return err
}

// countingReader tracks how many complete top-level reads succeeded, so
// replay can distinguish "empty trailing torn write" from "corrupt log" when
// readRecord fails partway through the first record it attempts.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) { return c.r.Read(p) }

// readRecord is the inverse of writeRecord: reads one nonce+length+ciphertext
// envelope and decrypts it. Returns io.EOF exactly when r is positioned at
// the end of the log with nothing left to read.
func readRecord(r *countingReader, dek []byte) (record, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(r, nonce[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return record{}, fmt.Errorf("filestore: truncated record header")
		}
		return record{}, err
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return record{}, fmt.Errorf("filestore: truncated record length")
	}
	n := binary.BigEndian.Uint32(lenBuf[:])

	ciphertext := make([]byte, n)
	if _, err := io.ReadFull(r, ciphertext); err != nil {
		return record{}, fmt.Errorf("filestore: truncated record body")
	}

	cipherStream, err := chacha20.NewUnauthenticatedCipher(dek, nonce[:])
	if err != nil {
		return record{}, err
	}
	plain := make([]byte, len(ciphertext))
	cipherStream.XORKeyStream(plain, ciphertext)

	rec, err := decodeRecord(plain)
	if err != nil {
		return record{}, err
	}
	r.n++
	return rec, nil
}
