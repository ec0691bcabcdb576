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

// Package inode implements the inode store: a cached id → record index over
// a single Unique-mode table, plus the id issuer that mints fresh inode
// ids. Lookups are cached with internal/cache/lrucache, a bounded LRU
// rather than an unbounded map.
package inode

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/jrivard/jcxfs/internal/cache/lrucache"
	"github.com/jrivard/jcxfs/internal/ferrors"
	"github.com/jrivard/jcxfs/internal/store"
	"github.com/jrivard/jcxfs/internal/timeutil"
)

// ID is a 64-bit inode identifier. 1 is the reserved root.
type ID uint64

// RootID is the reserved id of the filesystem root, always a directory.
const RootID ID = 1

const (
	// minAllocID and maxAllocID bound the range new ids are drawn from.
	// maxAllocID is exclusive.
	minAllocID ID = 1 << 31
	maxAllocID ID = (1 << 63) - 10

	idCounterKey = "ID_COUNTER"
	inodeTable   = "INODE"
	metaTable    = "META"
)

// POSIX file-type mode masks.
const (
	ModeTypeMask = 0xF000
	ModeDir      = 0x4000
	ModeRegular  = 0x8000
	ModeSymlink  = 0xA000
)

// Record is one inode's metadata. Field names are abbreviated in its JSON
// encoding to keep the stored record compact.
type Record struct {
	Mode  uint32 `json:"m"`
	Atime int64  `json:"at"` // unix seconds
	Ctime int64  `json:"ct"`
	Btime int64  `json:"bt"`
	Mtime int64  `json:"mt"`
	UID   int32  `json:"u"`
	GID   int32  `json:"g"`

	// TargetPath is populated only for symlinks.
	TargetPath *string `json:"tp,omitempty"`
}

// FileType returns the Record's type mask (one of ModeDir/ModeRegular/ModeSymlink).
func (r *Record) FileType() uint32 { return r.Mode & ModeTypeMask }

func (r *Record) IsDir() bool     { return r.FileType() == ModeDir }
func (r *Record) IsRegular() bool { return r.FileType() == ModeRegular }
func (r *Record) IsSymlink() bool { return r.FileType() == ModeSymlink }

// NewRecord builds a Record, rejecting any mode whose type bits don't match
// exactly one of ModeDir, ModeRegular, or ModeSymlink.
func NewRecord(mode uint32, uid, gid int32, now int64) (*Record, error) {
	switch mode & ModeTypeMask {
	case ModeDir, ModeRegular, ModeSymlink:
	default:
		return nil, ferrors.Wrap(ferrors.IOError, nil, fmt.Sprintf("invalid inode type bits in mode 0%o", mode))
	}
	return &Record{Mode: mode, Atime: now, Ctime: now, Btime: now, Mtime: now, UID: uid, GID: gid}, nil
}

func (r *Record) clone() *Record {
	cp := *r
	if r.TargetPath != nil {
		tp := *r.TargetPath
		cp.TargetPath = &tp
	}
	return &cp
}

func encodeRecord(r *Record) ([]byte, error) { return json.Marshal(r) }

func decodeRecord(b []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// EncodeID renders id as a compressed signed varint: zigzag-encoded to keep
// small magnitudes (the common case, since every live id is positive)
// compact, then standard base-128 varint — the same two building blocks
// protobuf's varint integers use.
func EncodeID(id ID) []byte {
	zigzag := (uint64(id) << 1) ^ uint64(int64(id)>>63)
	buf := make([]byte, 0, binary.MaxVarintLen64)
	return binary.AppendUvarint(buf, zigzag)
}

// DecodeID is the inverse of EncodeID.
func DecodeID(b []byte) (ID, error) {
	zigzag, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, fmt.Errorf("inode: malformed compressed id")
	}
	signed := int64(zigzag>>1) ^ -int64(zigzag&1)
	return ID(signed), nil
}

// absent is the sentinel cached for ids known not to exist, distinguishing
// "cache miss" from "cached negative lookup" (a nil value from LookUp always
// means "not cached").
type absent struct{}

var absentEntry = &absent{}

func cacheKey(id ID) string { return strconv.FormatUint(uint64(id), 10) }

// Store is the cached inode index plus id issuer.
type Store struct {
	env   store.Env
	clock timeutil.Clock

	cacheMu sync.Mutex
	cache   *lrucache.Cache

	issuerMu sync.Mutex
}

// NewStore returns a Store backed by env, caching up to cacheSize records.
func NewStore(env store.Env, clock timeutil.Clock, cacheSize int) *Store {
	return &Store{env: env, clock: clock, cache: lrucache.New(cacheSize)}
}

func (s *Store) table(txn store.Txn) (store.Store, error) {
	return s.env.OpenStore(inodeTable, store.Unique, txn)
}

func (s *Store) meta(txn store.Txn) (store.Store, error) {
	return s.env.OpenStore(metaTable, store.Unique, txn)
}

// EnsureRoot writes the root directory inode if it is not already present,
// owned by uid/gid and permission bits dirMode.
func (s *Store) EnsureRoot(txn store.Txn, uid, gid int32, dirMode uint32) error {
	present, err := s.HasID(txn, RootID)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	now := s.clock.Now().Unix()
	rec, err := NewRecord(ModeDir|(dirMode&0o7777), uid, gid, now)
	if err != nil {
		return err
	}
	return s.CreateEntry(txn, RootID, rec)
}

// CreateEntry is an idempotent put of id → record.
func (s *Store) CreateEntry(txn store.Txn, id ID, rec *Record) error {
	t, err := s.table(txn)
	if err != nil {
		return err
	}
	b, err := encodeRecord(rec)
	if err != nil {
		return ferrors.Wrap(ferrors.IOError, err, "encoding inode record")
	}
	if err := t.Put(txn, EncodeID(id), b); err != nil {
		return ferrors.Wrap(ferrors.IOError, err, "writing inode record")
	}

	s.cacheMu.Lock()
	s.cache.Insert(cacheKey(id), rec.clone())
	s.cacheMu.Unlock()
	return nil
}

// ReadEntry returns the record for id, or ok=false if absent.
func (s *Store) ReadEntry(txn store.Txn, id ID) (rec *Record, ok bool, err error) {
	key := cacheKey(id)

	s.cacheMu.Lock()
	if cached := s.cache.LookUp(key); cached != nil {
		s.cacheMu.Unlock()
		if _, isAbsent := cached.(*absent); isAbsent {
			return nil, false, nil
		}
		return cached.(*Record).clone(), true, nil
	}
	s.cacheMu.Unlock()

	t, err := s.table(txn)
	if err != nil {
		return nil, false, err
	}
	b, err := t.Get(txn, EncodeID(id))
	if err != nil {
		return nil, false, ferrors.Wrap(ferrors.IOError, err, "reading inode record")
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if b == nil {
		s.cache.Insert(key, absentEntry)
		return nil, false, nil
	}

	rec, err = decodeRecord(b)
	if err != nil {
		return nil, false, ferrors.Wrap(ferrors.IOError, err, "decoding inode record")
	}
	s.cache.Insert(key, rec.clone())
	return rec, true, nil
}

// HasID is equivalent to ReadEntry(id) being present.
func (s *Store) HasID(txn store.Txn, id ID) (bool, error) {
	_, ok, err := s.ReadEntry(txn, id)
	return ok, err
}

// UpdateEntry replaces the full record for id and invalidates the cache
// entry (rather than repopulating it, so a racing reader never observes a
// stale record even transiently).
func (s *Store) UpdateEntry(txn store.Txn, id ID, rec *Record) error {
	t, err := s.table(txn)
	if err != nil {
		return err
	}
	b, err := encodeRecord(rec)
	if err != nil {
		return ferrors.Wrap(ferrors.IOError, err, "encoding inode record")
	}
	if err := t.Put(txn, EncodeID(id), b); err != nil {
		return ferrors.Wrap(ferrors.IOError, err, "writing inode record")
	}

	s.cacheMu.Lock()
	s.cache.Erase(cacheKey(id))
	s.cacheMu.Unlock()
	return nil
}

// RemoveEntry deletes id's record. It is an invariant violation — not a
// normal filesystem-level failure — to call this on an id that doesn't
// exist; callers only ever call it after resolving a path to a live id.
func (s *Store) RemoveEntry(txn store.Txn, id ID) error {
	t, err := s.table(txn)
	if err != nil {
		return err
	}
	if err := t.Delete(txn, EncodeID(id)); err != nil {
		return ferrors.Wrap(ferrors.IOError, err, fmt.Sprintf("inode %d not present", id))
	}

	s.cacheMu.Lock()
	s.cache.Erase(cacheKey(id))
	s.cacheMu.Unlock()
	return nil
}

// NextID mints a fresh, unused id in [minAllocID, maxAllocID). Serialized by
// issuerMu so only one issuance is in flight per process at a time.
func (s *Store) NextID(txn store.Txn) (ID, error) {
	s.issuerMu.Lock()
	defer s.issuerMu.Unlock()

	meta, err := s.meta(txn)
	if err != nil {
		return 0, err
	}

	counter, err := s.readCounter(txn, meta)
	if err != nil {
		return 0, err
	}

	maxAttempts := uint64(maxAllocID - minAllocID)
	for attempt := uint64(0); attempt < maxAttempts; attempt++ {
		counter++
		if ID(counter) >= maxAllocID {
			counter = uint64(minAllocID)
		}

		id := ID(counter)
		present, err := s.HasID(txn, id)
		if err != nil {
			return 0, err
		}
		if present {
			continue
		}

		if err := s.writeCounter(txn, meta, counter); err != nil {
			return 0, err
		}
		return id, nil
	}

	return 0, ferrors.Wrap(ferrors.IOError, nil, "inode id space exhausted")
}

func (s *Store) readCounter(txn store.Txn, meta store.Store) (uint64, error) {
	b, err := meta.Get(txn, []byte(idCounterKey))
	if err != nil {
		return 0, ferrors.Wrap(ferrors.IOError, err, "reading id counter")
	}
	if b == nil {
		return uint64(minAllocID), nil
	}
	if len(b) != 8 {
		return 0, ferrors.Wrap(ferrors.IOError, nil, "malformed id counter")
	}
	return binary.BigEndian.Uint64(b), nil
}

func (s *Store) writeCounter(txn store.Txn, meta store.Store, counter uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], counter)
	if err := meta.Put(txn, []byte(idCounterKey), b[:]); err != nil {
		return ferrors.Wrap(ferrors.IOError, err, "persisting id counter")
	}
	return nil
}
