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

package path

import (
	"sync"

	"github.com/jrivard/jcxfs/internal/cache/lrucache"
	"github.com/jrivard/jcxfs/internal/ferrors"
	"github.com/jrivard/jcxfs/internal/fs/inode"
	"github.com/jrivard/jcxfs/internal/store"
)

const pathTable = "PATH"

// Store is the duplicate-keyed PATH table plus its resolution cache.
type Store struct {
	env       store.Env
	cacheSize int

	cacheMu sync.Mutex
	cache   *lrucache.Cache
}

// NewStore returns a Store backed by env, caching up to cacheSize resolved
// paths.
func NewStore(env store.Env, cacheSize int) *Store {
	return &Store{env: env, cacheSize: cacheSize, cache: lrucache.New(cacheSize)}
}

func (s *Store) table(txn store.Txn) (store.Store, error) {
	return s.env.OpenStore(pathTable, store.Duplicate, txn)
}

func parentKey(id inode.ID) []byte { return inode.EncodeID(id) }

// ReadEntry resolves key to an inode id, or ok=false if any segment is
// missing.
func (s *Store) ReadEntry(txn store.Txn, key Key) (id inode.ID, ok bool, err error) {
	if key.IsRoot() {
		return inode.RootID, true, nil
	}

	if cached, hit := s.cacheLookup(key.String()); hit {
		return cached, true, nil
	}

	t, err := s.table(txn)
	if err != nil {
		return 0, false, err
	}

	current := inode.RootID
	for _, seg := range key.Segments() {
		child, found, err := findChild(t, txn, current, seg)
		if err != nil {
			return 0, false, err
		}
		if !found {
			return 0, false, nil
		}
		current = child
	}

	s.cacheInsert(key.String(), current)
	return current, true, nil
}

// findChild scans the duplicate run under parent for a PathRecord whose name
// matches childName.
func findChild(t store.Store, txn store.Txn, parent inode.ID, childName string) (inode.ID, bool, error) {
	cur, err := t.OpenCursor(txn)
	if err != nil {
		return 0, false, ferrors.Wrap(ferrors.IOError, err, "opening path cursor")
	}
	defer cur.Close()

	ok, err := cur.SeekKey(parentKey(parent))
	if err != nil {
		return 0, false, ferrors.Wrap(ferrors.IOError, err, "seeking path cursor")
	}
	for ok {
		rec, err := DecodeRecord(cur.Value())
		if err != nil {
			return 0, false, ferrors.Wrap(ferrors.IOError, err, "decoding path record")
		}
		if rec.ChildName == childName {
			return rec.ChildID, true, nil
		}
		ok, err = cur.NextDup()
		if err != nil {
			return 0, false, ferrors.Wrap(ferrors.IOError, err, "advancing path cursor")
		}
	}
	return 0, false, nil
}

// FindChild looks up the child named childName directly under parent,
// without walking from root. This is the access pattern the filesystem
// facade uses, since a FUSE op always identifies a directory by inode id
// rather than by path.
func (s *Store) FindChild(txn store.Txn, parent inode.ID, childName string) (inode.ID, bool, error) {
	t, err := s.table(txn)
	if err != nil {
		return 0, false, err
	}
	return findChild(t, txn, parent, childName)
}

// ParentOf scans the whole PATH table for the record whose ChildID is id,
// returning the directory that contains it. Root is its own parent. This is
// the only reverse lookup the facade needs — resolving the synthetic ".."
// entry in a directory listing — so it is a full scan rather than an
// indexed one.
func (s *Store) ParentOf(txn store.Txn, id inode.ID) (inode.ID, bool, error) {
	if id == inode.RootID {
		return inode.RootID, true, nil
	}

	t, err := s.table(txn)
	if err != nil {
		return 0, false, err
	}
	cur, err := t.OpenCursor(txn)
	if err != nil {
		return 0, false, ferrors.Wrap(ferrors.IOError, err, "opening path cursor")
	}
	defer cur.Close()

	for {
		ok, err := cur.Next()
		if err != nil {
			return 0, false, ferrors.Wrap(ferrors.IOError, err, "scanning path cursor")
		}
		if !ok {
			return 0, false, nil
		}
		rec, err := DecodeRecord(cur.Value())
		if err != nil {
			return 0, false, ferrors.Wrap(ferrors.IOError, err, "decoding path record")
		}
		if rec.ChildID == id {
			parentID, err := inode.DecodeID(cur.Key())
			if err != nil {
				return 0, false, ferrors.Wrap(ferrors.IOError, err, "decoding path key")
			}
			return parentID, true, nil
		}
	}
}

// CreateChild adds a PathRecord(id, childName) directly under parent,
// failing if childName already exists there. Unlike CreateEntry, it does
// not re-derive parent from a full path, since the caller already holds a
// resolved parent inode id.
func (s *Store) CreateChild(txn store.Txn, parent inode.ID, childName string, id inode.ID) error {
	if _, exists, err := s.FindChild(txn, parent, childName); err != nil {
		return err
	} else if exists {
		return ferrors.New(ferrors.FileExists, childName)
	}

	t, err := s.table(txn)
	if err != nil {
		return err
	}
	rec := Record{ChildID: id, ChildName: childName}
	if err := t.Put(txn, parentKey(parent), rec.Encode()); err != nil {
		return ferrors.Wrap(ferrors.IOError, err, "writing path record")
	}

	s.cachePurge()
	return nil
}

// RemoveChild removes the childName record under parent. If
// checkForChildren is true, it refuses when id itself has any children.
func (s *Store) RemoveChild(txn store.Txn, parent inode.ID, childName string, id inode.ID, checkForChildren bool) error {
	if checkForChildren {
		names, err := s.ReadSubPaths(txn, id)
		if err != nil {
			return err
		}
		if len(names) > 0 {
			return ferrors.New(ferrors.DirNotEmpty, childName)
		}
	}

	t, err := s.table(txn)
	if err != nil {
		return err
	}
	rec := Record{ChildID: id, ChildName: childName}
	if err := deleteDup(t, txn, parent, rec); err != nil {
		return err
	}

	s.cachePurge()
	return nil
}

// RenameChild moves the entry named oldName under oldParent to newName
// under newParent, preserving its inode id. It fails if oldName does not
// resolve under oldParent or if newName already resolves under newParent.
func (s *Store) RenameChild(txn store.Txn, oldParent inode.ID, oldName string, newParent inode.ID, newName string) (inode.ID, error) {
	id, ok, err := s.FindChild(txn, oldParent, oldName)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ferrors.New(ferrors.NoSuchFile, oldName)
	}

	if _, exists, err := s.FindChild(txn, newParent, newName); err != nil {
		return 0, err
	} else if exists {
		return 0, ferrors.New(ferrors.FileExists, newName)
	}

	t, err := s.table(txn)
	if err != nil {
		return 0, err
	}

	oldRec := Record{ChildID: id, ChildName: oldName}
	if err := deleteDup(t, txn, oldParent, oldRec); err != nil {
		return 0, err
	}

	newRec := Record{ChildID: id, ChildName: newName}
	if err := t.Put(txn, parentKey(newParent), newRec.Encode()); err != nil {
		return 0, ferrors.Wrap(ferrors.IOError, err, "writing path record")
	}

	s.cachePurge()
	return id, nil
}

// CreateEntry adds a PathRecord(id, key.Suffix()) under key.Parent()'s id.
// Fails if key already resolves or its parent does not.
func (s *Store) CreateEntry(txn store.Txn, key Key, id inode.ID) error {
	if key.IsRoot() {
		return ferrors.Wrap(ferrors.IOError, nil, "cannot create the root path")
	}

	if _, exists, err := s.ReadEntry(txn, key); err != nil {
		return err
	} else if exists {
		return ferrors.New(ferrors.FileExists, key.String())
	}

	parentID, ok, err := s.ReadEntry(txn, key.Parent())
	if err != nil {
		return err
	}
	if !ok {
		return ferrors.New(ferrors.NoSuchDir, key.Parent().String())
	}

	t, err := s.table(txn)
	if err != nil {
		return err
	}
	rec := Record{ChildID: id, ChildName: key.Suffix()}
	if err := t.Put(txn, parentKey(parentID), rec.Encode()); err != nil {
		return ferrors.Wrap(ferrors.IOError, err, "writing path record")
	}

	return nil
}

// RemoveEntry removes key's child record under its parent. If
// checkForChildren is true, it refuses when key itself has any children
// (used by rmdir, not by the rename internal path which detaches first and
// reattaches under a new name).
func (s *Store) RemoveEntry(txn store.Txn, key Key, checkForChildren bool) error {
	if key.IsRoot() {
		return ferrors.Wrap(ferrors.IOError, nil, "cannot remove the root path")
	}

	id, ok, err := s.ReadEntry(txn, key)
	if err != nil {
		return err
	}
	if !ok {
		return ferrors.New(ferrors.NoSuchFile, key.String())
	}

	if checkForChildren {
		names, err := s.ReadSubPaths(txn, id)
		if err != nil {
			return err
		}
		if len(names) > 0 {
			return ferrors.New(ferrors.DirNotEmpty, key.String())
		}
	}

	parentID, ok, err := s.ReadEntry(txn, key.Parent())
	if err != nil {
		return err
	}
	if !ok {
		return ferrors.Wrap(ferrors.IOError, nil, "parent vanished mid-operation")
	}

	t, err := s.table(txn)
	if err != nil {
		return err
	}
	rec := Record{ChildID: id, ChildName: key.Suffix()}
	if err := deleteDup(t, txn, parentID, rec); err != nil {
		return err
	}

	s.cacheInvalidate(key.String())
	return nil
}

// deleteDup removes the single duplicate entry under parent matching rec.
func deleteDup(t store.Store, txn store.Txn, parent inode.ID, rec Record) error {
	cur, err := t.OpenCursor(txn)
	if err != nil {
		return ferrors.Wrap(ferrors.IOError, err, "opening path cursor")
	}
	defer cur.Close()

	ok, err := cur.SeekKeyValue(parentKey(parent), rec.Encode())
	if err != nil {
		return ferrors.Wrap(ferrors.IOError, err, "seeking path record to delete")
	}
	if !ok {
		return ferrors.Wrap(ferrors.IOError, nil, "path record vanished mid-operation")
	}
	return cur.DeleteCurrent()
}

// ReadSubPaths enumerates the child names under the directory inode id, in
// storage (insertion) order.
func (s *Store) ReadSubPaths(txn store.Txn, id inode.ID) ([]string, error) {
	t, err := s.table(txn)
	if err != nil {
		return nil, err
	}

	cur, err := t.OpenCursor(txn)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.IOError, err, "opening path cursor")
	}
	defer cur.Close()

	var names []string
	ok, err := cur.SeekKey(parentKey(id))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.IOError, err, "seeking path cursor")
	}
	for ok {
		rec, err := DecodeRecord(cur.Value())
		if err != nil {
			return nil, ferrors.Wrap(ferrors.IOError, err, "decoding path record")
		}
		names = append(names, rec.ChildName)
		ok, err = cur.NextDup()
		if err != nil {
			return nil, ferrors.Wrap(ferrors.IOError, err, "advancing path cursor")
		}
	}
	return names, nil
}

// Rename detaches oldKey from its parent and reattaches the same inode id
// under newKey. oldKey must resolve and not be root; newKey must not
// resolve; newKey.Parent() must resolve.
func (s *Store) Rename(txn store.Txn, oldKey, newKey Key) error {
	if oldKey.IsRoot() {
		return ferrors.Wrap(ferrors.IOError, nil, "cannot rename the root path")
	}

	id, ok, err := s.ReadEntry(txn, oldKey)
	if err != nil {
		return err
	}
	if !ok {
		return ferrors.New(ferrors.NoSuchFile, oldKey.String())
	}

	if _, exists, err := s.ReadEntry(txn, newKey); err != nil {
		return err
	} else if exists {
		return ferrors.New(ferrors.FileExists, newKey.String())
	}

	newParentID, ok, err := s.ReadEntry(txn, newKey.Parent())
	if err != nil {
		return err
	}
	if !ok {
		return ferrors.New(ferrors.NoSuchDir, newKey.Parent().String())
	}

	oldParentID, ok, err := s.ReadEntry(txn, oldKey.Parent())
	if err != nil {
		return err
	}
	if !ok {
		return ferrors.Wrap(ferrors.IOError, nil, "parent vanished mid-operation")
	}

	t, err := s.table(txn)
	if err != nil {
		return err
	}

	oldRec := Record{ChildID: id, ChildName: oldKey.Suffix()}
	if err := deleteDup(t, txn, oldParentID, oldRec); err != nil {
		return err
	}

	newRec := Record{ChildID: id, ChildName: newKey.Suffix()}
	if err := t.Put(txn, parentKey(newParentID), newRec.Encode()); err != nil {
		return ferrors.Wrap(ferrors.IOError, err, "writing path record")
	}

	descendants, err := s.ReadSubPaths(txn, id)
	if err != nil {
		return err
	}

	if len(descendants) > 0 {
		// Any number of descendant-path mappings may now point into an
		// incorrect subtree; cheaper to purge wholesale than to walk and
		// invalidate each one.
		s.cachePurge()
	} else {
		s.cacheInvalidate(oldKey.String())
	}

	return nil
}

func (s *Store) cacheLookup(key string) (inode.ID, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	v := s.cache.LookUp(key)
	if v == nil {
		return 0, false
	}
	return v.(inode.ID), true
}

func (s *Store) cacheInsert(key string, id inode.ID) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Insert(key, id)
}

func (s *Store) cacheInvalidate(key string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Erase(key)
}

func (s *Store) cachePurge() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	// No bulk-clear operation; a fresh instance of the same capacity gives
	// a wholesale purge for a renamed subtree.
	s.cache = lrucache.New(s.cacheSize)
}
