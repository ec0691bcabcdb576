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

// Package data implements the data store: paged file content keyed by
// (inode id, page index), per-inode logical length, and the random-access
// read/write/truncate/delete operations with trailing-zero elision over a
// fixed page size.
package data

import (
	"encoding/binary"
	"math"

	"github.com/jrivard/jcxfs/internal/ferrors"
	"github.com/jrivard/jcxfs/internal/fs/inode"
	"github.com/jrivard/jcxfs/internal/store"
)

const (
	dataTable    = "DATA"
	dataLenTable = "DATALEN"
)

// PageIndex is a signed 32-bit page number, bounding maximum file size to
// pageSize × 2^31 bytes.
type PageIndex int32

// DataKey identifies one page: (inodeId, pageIndex), encoded as 12
// big-endian bytes so all pages of one inode form a contiguous key range in
// page order.
func encodeDataKey(id inode.ID, page PageIndex) []byte {
	var b [12]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(id))
	binary.BigEndian.PutUint32(b[8:12], uint32(page))
	return b[:]
}

// Store is paged content plus logical length, over a page-size fixed at
// database creation.
type Store struct {
	env      store.Env
	pageSize int32
}

// NewStore returns a Store backed by env with the given fixed page size.
func NewStore(env store.Env, pageSize int32) *Store {
	return &Store{env: env, pageSize: pageSize}
}

func (s *Store) dataT(txn store.Txn) (store.Store, error) {
	return s.env.OpenStore(dataTable, store.Unique, txn)
}

func (s *Store) lenT(txn store.Txn) (store.Store, error) {
	return s.env.OpenStore(dataLenTable, store.Unique, txn)
}

func lengthKey(id inode.ID) []byte { return inode.EncodeID(id) }

// Length returns id's logical length, 0 if no length entry exists.
func (s *Store) Length(txn store.Txn, id inode.ID) (uint64, error) {
	t, err := s.lenT(txn)
	if err != nil {
		return 0, err
	}
	b, err := t.Get(txn, lengthKey(id))
	if err != nil {
		return 0, ferrors.Wrap(ferrors.IOError, err, "reading data length")
	}
	if b == nil {
		return 0, nil
	}
	if len(b) != 8 {
		return 0, ferrors.Wrap(ferrors.IOError, nil, "malformed data length entry")
	}
	return binary.BigEndian.Uint64(b), nil
}

func (s *Store) setLength(txn store.Txn, id inode.ID, length uint64) error {
	t, err := s.lenT(txn)
	if err != nil {
		return err
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], length)
	if err := t.Put(txn, lengthKey(id), b[:]); err != nil {
		return ferrors.Wrap(ferrors.IOError, err, "writing data length")
	}
	return nil
}

func (s *Store) readPage(txn store.Txn, t store.Store, id inode.ID, page PageIndex) ([]byte, error) {
	b, err := t.Get(txn, encodeDataKey(id, page))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.IOError, err, "reading data page")
	}
	return b, nil
}

// writePage elides trailing zero bytes before storing.
func (s *Store) writePage(txn store.Txn, t store.Store, id inode.ID, page PageIndex, content []byte) error {
	trimmed := trimTrailingZeros(content)
	if err := t.Put(txn, encodeDataKey(id, page), trimmed); err != nil {
		return ferrors.Wrap(ferrors.IOError, err, "writing data page")
	}
	return nil
}

func trimTrailingZeros(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}

// ReadData copies up to count bytes starting at offset into buf (which must
// be at least count bytes), zero-filling holes, and clamping to the
// inode's logical length. Returns the number of bytes actually copied.
func (s *Store) ReadData(txn store.Txn, id inode.ID, buf []byte, count int, offset uint64) (int, error) {
	length, err := s.Length(txn, id)
	if err != nil {
		return 0, err
	}
	if offset >= length {
		return 0, nil
	}
	if remaining := length - offset; uint64(count) > remaining {
		count = int(remaining)
	}
	if count <= 0 {
		return 0, nil
	}

	t, err := s.dataT(txn)
	if err != nil {
		return 0, err
	}

	S := uint64(s.pageSize)
	written := 0
	for written < count {
		absPos := offset + uint64(written)
		page := PageIndex(absPos / S)
		posInPage := int(absPos % S)

		stored, err := s.readPage(txn, t, id, page)
		if err != nil {
			return written, err
		}

		chunk := count - written
		if room := int(S) - posInPage; chunk > room {
			chunk = room
		}

		for i := 0; i < chunk; i++ {
			srcIdx := posInPage + i
			if srcIdx < len(stored) {
				buf[written+i] = stored[srcIdx]
			} else {
				buf[written+i] = 0
			}
		}
		written += chunk
	}

	return written, nil
}

// WriteData writes count bytes from buf starting at offset, growing the
// logical length as needed.
func (s *Store) WriteData(txn store.Txn, id inode.ID, buf []byte, count int, offset uint64) (int, error) {
	if count == 0 {
		return 0, nil
	}
	if offset > math.MaxUint64-uint64(count) {
		return 0, ferrors.Wrap(ferrors.IOError, nil, "offset+count overflow")
	}

	t, err := s.dataT(txn)
	if err != nil {
		return 0, err
	}

	S := uint64(s.pageSize)
	written := 0
	for written < count {
		absPos := offset + uint64(written)
		page := PageIndex(absPos / S)
		posInPage := int(absPos % S)

		chunk := count - written
		if room := int(S) - posInPage; chunk > room {
			chunk = room
		}

		existing, err := s.readPage(txn, t, id, page)
		if err != nil {
			return written, err
		}

		newLen := posInPage + chunk
		if len(existing) > newLen {
			newLen = len(existing)
		}
		pageBuf := make([]byte, newLen)
		copy(pageBuf, existing)
		copy(pageBuf[posInPage:posInPage+chunk], buf[written:written+chunk])

		if err := s.writePage(txn, t, id, page, pageBuf); err != nil {
			return written, err
		}
		written += chunk
	}

	newLength := offset + uint64(count)
	current, err := s.Length(txn, id)
	if err != nil {
		return written, err
	}
	if newLength > current {
		if err := s.setLength(txn, id, newLength); err != nil {
			return written, err
		}
	}

	return written, nil
}

// Truncate shrinks id to newLength, a no-op if newLength >= currentLength.
// Growing a file is not modeled here; a caller may extend this by padding
// with zero writes if POSIX-style grow-by-truncate is needed.
func (s *Store) Truncate(txn store.Txn, id inode.ID, newLength uint64) error {
	current, err := s.Length(txn, id)
	if err != nil {
		return err
	}
	if newLength >= current {
		return nil
	}

	S := uint64(s.pageSize)
	newLastPage := PageIndex(newLength / S)
	currentTotalPages := PageIndex(current / S)

	t, err := s.dataT(txn)
	if err != nil {
		return err
	}

	rem := newLength % S
	if rem > 0 {
		existing, err := s.readPage(txn, t, id, newLastPage)
		if err != nil {
			return err
		}
		keep := int(rem)
		if keep > len(existing) {
			keep = len(existing)
		}
		if err := s.writePage(txn, t, id, newLastPage, existing[:keep]); err != nil {
			return err
		}
	}

	firstDeadPage := newLastPage
	if rem > 0 {
		firstDeadPage = newLastPage + 1
	}
	for p := firstDeadPage; p <= currentTotalPages; p++ {
		// A page may already be absent (fully elided by a prior
		// trailing-zero write, or simply never written); that is not a
		// truncate failure.
		_ = t.Delete(txn, encodeDataKey(id, p))
	}

	return s.setLength(txn, id, newLength)
}

// DeleteEntry removes all pages and the length record for id.
func (s *Store) DeleteEntry(txn store.Txn, id inode.ID) error {
	length, err := s.Length(txn, id)
	if err != nil {
		return err
	}

	t, err := s.dataT(txn)
	if err != nil {
		return err
	}

	if length > 0 {
		S := uint64(s.pageSize)
		lastPage := PageIndex(length / S)
		for p := PageIndex(0); p <= lastPage; p++ {
			_ = t.Delete(txn, encodeDataKey(id, p))
		}
	}

	lt, err := s.lenT(txn)
	if err != nil {
		return err
	}
	_ = lt.Delete(txn, lengthKey(id))

	return nil
}

// TotalPagesUsed returns the cardinality of the page table.
func (s *Store) TotalPagesUsed(txn store.Txn) (uint64, error) {
	t, err := s.dataT(txn)
	if err != nil {
		return 0, err
	}
	return t.Count(txn)
}

// PageSize returns the database-wide fixed page size.
func (s *Store) PageSize() int32 { return s.pageSize }
