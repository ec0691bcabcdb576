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

// Package store defines the abstract contract of the embedded transactional
// key-value database that backs jcxfs. The engines themselves live in the
// memstore and filestore subpackages; this package only specifies the shape
// every engine must present to the path/inode/data stores in internal/fs.
package store

import "context"

// TableMode selects whether a table accepts one value per key (Unique) or
// many values per key, ordered by insertion (Duplicate). PATH requires
// Duplicate; INODE, DATA, DATALEN, and META require Unique.
type TableMode int

const (
	Unique TableMode = iota
	Duplicate
)

// Txn is an opaque handle to a single transaction. Implementations type-assert
// it back to their own concrete type; callers never inspect it.
type Txn interface{}

// Env is an open database environment: one directory's worth of tables,
// reachable only through transactions.
type Env interface {
	// ExecuteInTransaction runs fn inside a single read/write transaction. If fn
	// returns an error the transaction is aborted and no mutation is visible
	// afterward; otherwise it is committed before ExecuteInTransaction returns.
	ExecuteInTransaction(ctx context.Context, fn func(Txn) error) error

	// ComputeInTransaction is ExecuteInTransaction for functions that also
	// produce a value.
	ComputeInTransaction(ctx context.Context, fn func(Txn) (any, error)) (any, error)

	// OpenStore returns a handle to the named table, creating it on first use.
	// The mode must agree with how the table was first opened.
	OpenStore(name string, mode TableMode, txn Txn) (Store, error)

	// Close waits for an active transaction to finish, then closes the
	// underlying engine. Further transactions fail once Close has been called.
	Close() error
}

// Store is one logical table within an Env.
type Store interface {
	Get(txn Txn, key []byte) ([]byte, error)
	Put(txn Txn, key, value []byte) error
	Delete(txn Txn, key []byte) error

	// Count returns the number of key/value pairs in the table (each duplicate
	// counts individually).
	Count(txn Txn) (uint64, error)

	// OpenCursor returns a cursor over the table, valid for the lifetime of txn.
	// Callers must Close it.
	OpenCursor(txn Txn) (Cursor, error)
}

// Cursor is a positionable iterator over one Store, supporting the
// "seek-key then next-dup" access pattern that duplicate-keyed directory
// listings rely on.
type Cursor interface {
	// SeekKey positions the cursor at the first entry with the given key. ok is
	// false if no such entry exists.
	SeekKey(key []byte) (ok bool, err error)

	// SeekKeyValue positions the cursor at the entry with the given key and
	// value, used to resume a scan after a known entry.
	SeekKeyValue(key, value []byte) (ok bool, err error)

	// Next advances to the next entry in key order.
	Next() (ok bool, err error)

	// NextDup advances to the next entry sharing the current key. ok is false
	// once the duplicates for the current key are exhausted.
	NextDup() (ok bool, err error)

	Key() []byte
	Value() []byte

	// DeleteCurrent deletes the entry the cursor is positioned on.
	DeleteCurrent() error

	Close() error
}
