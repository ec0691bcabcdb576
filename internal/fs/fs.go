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

// Package fs implements the FUSE facade: a fuseutil.FileSystem that
// translates kernel VFS operations into transactions against the path,
// inode, and data stores. Every operation runs inside its own store.Env
// transaction rather than holding a long-lived in-memory inode graph.
package fs

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/jrivard/jcxfs/internal/ferrors"
	"github.com/jrivard/jcxfs/internal/fs/data"
	"github.com/jrivard/jcxfs/internal/fs/inode"
	"github.com/jrivard/jcxfs/internal/fs/path"
	"github.com/jrivard/jcxfs/internal/logger"
	"github.com/jrivard/jcxfs/internal/store"
	"github.com/jrivard/jcxfs/internal/timeutil"
)

// Config holds the fixed, mount-time parameters for a FileSystem.
type Config struct {
	Clock timeutil.Clock

	UID uint32
	GID uint32

	// DirMode seeds the root directory's permission bits; every other
	// directory and file takes its mode from the creating mkdir/open(2)
	// call instead.
	DirMode os.FileMode

	PageSize       int32
	InodeCacheSize int
	PathCacheSize  int
}

// FileSystem is the FUSE facade. It holds no per-inode state of its own
// beyond open directory-listing handles; every lookup, read, and write
// re-resolves through the stores inside a fresh transaction, so there is
// nothing to keep consistent across concurrent FUSE ops beyond what the
// stores and the underlying store.Env already guarantee.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	clock timeutil.Clock
	env   store.Env

	paths  *path.Store
	inodes *inode.Store
	data   *data.Store

	uid, gid uint32

	mu           sync.Mutex
	handles      map[fuseops.HandleID]*dirHandle
	nextHandleID fuseops.HandleID
}

// dirHandle is the buffered listing backing one OpenDir/ReadDir/ReleaseDir
// cycle. The PATH table yields the full child list cheaply in one cursor
// scan, so there is no continuation token to track — the whole listing is
// read once on OpenDir. dirID and parentID back the synthetic "." and ".."
// entries every listing starts with; names holds only the real children.
type dirHandle struct {
	dirID    inode.ID
	parentID inode.ID
	names    []string
}

// New constructs a FileSystem over env, ensuring the root directory inode
// exists.
func New(env store.Env, cfg Config) (*FileSystem, error) {
	fsys := &FileSystem{
		clock:   cfg.Clock,
		env:     env,
		paths:   path.NewStore(env, cfg.PathCacheSize),
		inodes:  inode.NewStore(env, cfg.Clock, cfg.InodeCacheSize),
		data:    data.NewStore(env, cfg.PageSize),
		uid:     cfg.UID,
		gid:     cfg.GID,
		handles: make(map[fuseops.HandleID]*dirHandle),
	}

	err := env.ExecuteInTransaction(context.Background(), func(txn store.Txn) error {
		return fsys.inodes.EnsureRoot(txn, int32(cfg.UID), int32(cfg.GID), uint32(cfg.DirMode))
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring root inode: %w", err)
	}

	logger.Infof("fuse: filesystem ready")
	return fsys, nil
}

// Server wraps fsys in the fuse.Server jacobsa/fuse's mount loop drives.
func (fsys *FileSystem) Server() fuse.Server {
	return fuseutil.NewFileSystemServer(fsys)
}

// Destroy releases the underlying store.Env. jacobsa/fuse calls this once
// the mount loop has torn down all outstanding ops.
func (fsys *FileSystem) Destroy() {
	if err := fsys.env.Close(); err != nil {
		logger.Errorf("fuse: closing store: %v", err)
	}
}

// runTxn runs fn in one read/write transaction and translates any resulting
// error to the syscall.Errno jacobsa/fuse recognizes, rather than
// propagating an internal error type past the FUSE boundary.
func (fsys *FileSystem) runTxn(ctx context.Context, fn func(store.Txn) error) error {
	if err := fsys.env.ExecuteInTransaction(ctx, fn); err != nil {
		return ferrors.Errno(err)
	}
	return nil
}

func toAttributes(rec *inode.Record, length uint64) fuseops.InodeAttributes {
	nlink := uint64(1)
	if rec.IsDir() {
		nlink = 2
	}
	return fuseops.InodeAttributes{
		Size:   length,
		Nlink:  nlink,
		Mode:   os.FileMode(rec.Mode & 0o7777).Perm() | typeBits(rec),
		Atime:  time.Unix(rec.Atime, 0),
		Mtime:  time.Unix(rec.Mtime, 0),
		Ctime:  time.Unix(rec.Ctime, 0),
		Crtime: time.Unix(rec.Btime, 0),
		Uid:    uint32(rec.UID),
		Gid:    uint32(rec.GID),
	}
}

func typeBits(rec *inode.Record) os.FileMode {
	switch {
	case rec.IsDir():
		return os.ModeDir
	case rec.IsSymlink():
		return os.ModeSymlink
	default:
		return 0
	}
}

// entry resolves id's record and (for files) length into a ChildInodeEntry.
func (fsys *FileSystem) entry(txn store.Txn, id inode.ID) (fuseops.ChildInodeEntry, error) {
	rec, ok, err := fsys.inodes.ReadEntry(txn, id)
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}
	if !ok {
		return fuseops.ChildInodeEntry{}, ferrors.New(ferrors.NoSuchFile, fmt.Sprintf("inode %d", id))
	}

	var length uint64
	if rec.IsRegular() {
		if length, err = fsys.data.Length(txn, id); err != nil {
			return fuseops.ChildInodeEntry{}, err
		}
	}

	return fuseops.ChildInodeEntry{
		Child:      fuseops.InodeID(id),
		Attributes: toAttributes(rec, length),
	}, nil
}

func (fsys *FileSystem) resolveChild(txn store.Txn, parent fuseops.InodeID, name string) (inode.ID, error) {
	parentRec, ok, err := fsys.inodes.ReadEntry(txn, inode.ID(parent))
	if err != nil {
		return 0, err
	}
	if !ok || !parentRec.IsDir() {
		return 0, ferrors.New(ferrors.NotADirectory, fmt.Sprintf("inode %d", parent))
	}

	id, ok, err := fsys.paths.FindChild(txn, inode.ID(parent), name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ferrors.New(ferrors.NoSuchFile, name)
	}
	return id, nil
}

////////////////////////////////////////////////////////////////////////
// Inodes
////////////////////////////////////////////////////////////////////////

func (fsys *FileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		id, err := fsys.resolveChild(txn, op.Parent, op.Name)
		if err != nil {
			return err
		}
		op.Entry, err = fsys.entry(txn, id)
		return err
	})
}

func (fsys *FileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		e, err := fsys.entry(txn, inode.ID(op.Inode))
		if err != nil {
			return err
		}
		op.Attributes = e.Attributes
		return nil
	})
}

// SetInodeAttributes serves chmod(2), truncate(2)/ftruncate(2), and
// utimens(2). jacobsa/fuse's SetInodeAttributesOp carries no uid/gid
// fields, so chown(2) is not deliverable through this op in this binding.
func (fsys *FileSystem) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		id := inode.ID(op.Inode)
		rec, ok, err := fsys.inodes.ReadEntry(txn, id)
		if err != nil {
			return err
		}
		if !ok {
			return ferrors.New(ferrors.NoSuchFile, fmt.Sprintf("inode %d", id))
		}

		changed := false
		if op.Mode != nil {
			rec.Mode = (rec.Mode &^ 0o7777) | uint32(op.Mode.Perm())
			changed = true
		}
		if op.Atime != nil {
			rec.Atime = op.Atime.Unix()
			changed = true
		}
		if op.Mtime != nil {
			rec.Mtime = op.Mtime.Unix()
			changed = true
		}
		if op.Size != nil {
			if !rec.IsRegular() {
				return ferrors.New(ferrors.NotAFile, fmt.Sprintf("inode %d", id))
			}
			if err := fsys.data.Truncate(txn, id, *op.Size); err != nil {
				return err
			}
			changed = true
		}

		if changed {
			rec.Ctime = fsys.clock.Now().Unix()
			if err := fsys.inodes.UpdateEntry(txn, id, rec); err != nil {
				return err
			}
		}

		e, err := fsys.entry(txn, id)
		if err != nil {
			return err
		}
		op.Attributes = e.Attributes
		return nil
	})
}

// ChangeOwner applies chown(2) semantics directly, for callers (tests, a
// future xattr-driven admin path) that have an inode id rather than a
// kernel op; this fuse binding has no kernel-triggered path for chown.
func (fsys *FileSystem) ChangeOwner(ctx context.Context, id inode.ID, uid, gid int32) error {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		rec, ok, err := fsys.inodes.ReadEntry(txn, id)
		if err != nil {
			return err
		}
		if !ok {
			return ferrors.New(ferrors.NoSuchFile, fmt.Sprintf("inode %d", id))
		}
		// As with chown(2), a negative id leaves that field unchanged.
		if uid >= 0 {
			rec.UID = uid
		}
		if gid >= 0 {
			rec.GID = gid
		}
		rec.Ctime = fsys.clock.Now().Unix()
		return fsys.inodes.UpdateEntry(txn, id, rec)
	})
}

func (fsys *FileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) (err error) {
	// Nothing to release: inode records live in the store, not in an
	// in-memory graph keyed by lookup count.
	return nil
}

////////////////////////////////////////////////////////////////////////
// Inode creation
////////////////////////////////////////////////////////////////////////

func (fsys *FileSystem) mint(txn store.Txn, parent fuseops.InodeID, name string, modeBits uint32) (inode.ID, error) {
	id, err := fsys.inodes.NextID(txn)
	if err != nil {
		return 0, err
	}

	now := fsys.clock.Now().Unix()
	rec, err := inode.NewRecord(modeBits, int32(fsys.uid), int32(fsys.gid), now)
	if err != nil {
		return 0, err
	}
	if err := fsys.inodes.CreateEntry(txn, id, rec); err != nil {
		return 0, err
	}
	if err := fsys.paths.CreateChild(txn, inode.ID(parent), name, id); err != nil {
		return 0, err
	}
	if err := fsys.touchMtime(txn, inode.ID(parent), now); err != nil {
		return 0, err
	}

	return id, nil
}

// touchMtime refreshes parent's mtime to now. Called whenever a child of
// parent is added or removed, so a directory's mtime reflects its own
// entry-list changes rather than only direct chmod/utimens calls.
func (fsys *FileSystem) touchMtime(txn store.Txn, parent inode.ID, now int64) error {
	rec, ok, err := fsys.inodes.ReadEntry(txn, parent)
	if err != nil {
		return err
	}
	if !ok {
		return ferrors.New(ferrors.NoSuchDir, fmt.Sprintf("inode %d", parent))
	}
	rec.Mtime = now
	return fsys.inodes.UpdateEntry(txn, parent, rec)
}

func (fsys *FileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		id, err := fsys.mint(txn, op.Parent, op.Name, inode.ModeDir|uint32(op.Mode.Perm()))
		if err != nil {
			return err
		}
		op.Entry, err = fsys.entry(txn, id)
		return err
	})
}

func (fsys *FileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		id, err := fsys.mint(txn, op.Parent, op.Name, inode.ModeRegular|uint32(op.Mode.Perm()))
		if err != nil {
			return err
		}
		op.Entry, err = fsys.entry(txn, id)
		return err
	})
}

func (fsys *FileSystem) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		id, err := fsys.mint(txn, op.Parent, op.Name, inode.ModeSymlink|0o777)
		if err != nil {
			return err
		}

		rec, ok, err := fsys.inodes.ReadEntry(txn, id)
		if err != nil {
			return err
		}
		if !ok {
			return ferrors.Wrap(ferrors.IOError, nil, "symlink inode vanished immediately after creation")
		}
		target := op.Target
		rec.TargetPath = &target
		if err := fsys.inodes.UpdateEntry(txn, id, rec); err != nil {
			return err
		}

		op.Entry, err = fsys.entry(txn, id)
		return err
	})
}

////////////////////////////////////////////////////////////////////////
// Removal and rename
////////////////////////////////////////////////////////////////////////

func (fsys *FileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		id, err := fsys.resolveChild(txn, op.Parent, op.Name)
		if err != nil {
			return err
		}
		rec, ok, err := fsys.inodes.ReadEntry(txn, id)
		if err != nil {
			return err
		}
		if !ok {
			return ferrors.New(ferrors.NoSuchFile, op.Name)
		}
		if !rec.IsDir() {
			return ferrors.New(ferrors.NotADirectory, op.Name)
		}

		if err := fsys.paths.RemoveChild(txn, inode.ID(op.Parent), op.Name, id, true); err != nil {
			return err
		}
		if err := fsys.touchMtime(txn, inode.ID(op.Parent), fsys.clock.Now().Unix()); err != nil {
			return err
		}
		return fsys.inodes.RemoveEntry(txn, id)
	})
}

func (fsys *FileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		id, err := fsys.resolveChild(txn, op.Parent, op.Name)
		if err != nil {
			return err
		}
		rec, ok, err := fsys.inodes.ReadEntry(txn, id)
		if err != nil {
			return err
		}
		if !ok {
			return ferrors.New(ferrors.NoSuchFile, op.Name)
		}
		if rec.IsDir() {
			return ferrors.New(ferrors.NotAFile, op.Name)
		}

		if err := fsys.paths.RemoveChild(txn, inode.ID(op.Parent), op.Name, id, false); err != nil {
			return err
		}
		if err := fsys.touchMtime(txn, inode.ID(op.Parent), fsys.clock.Now().Unix()); err != nil {
			return err
		}
		if rec.IsRegular() {
			if err := fsys.data.DeleteEntry(txn, id); err != nil {
				return err
			}
		}
		return fsys.inodes.RemoveEntry(txn, id)
	})
}

func (fsys *FileSystem) Rename(ctx context.Context, op *fuseops.RenameOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		_, err := fsys.paths.RenameChild(txn, inode.ID(op.OldParent), op.OldName, inode.ID(op.NewParent), op.NewName)
		return err
	})
}

////////////////////////////////////////////////////////////////////////
// Directory handles
////////////////////////////////////////////////////////////////////////

func (fsys *FileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		id := inode.ID(op.Inode)
		rec, ok, err := fsys.inodes.ReadEntry(txn, id)
		if err != nil {
			return err
		}
		if !ok {
			return ferrors.New(ferrors.NoSuchDir, fmt.Sprintf("inode %d", id))
		}
		if !rec.IsDir() {
			return ferrors.New(ferrors.NotADirectory, fmt.Sprintf("inode %d", id))
		}

		names, err := fsys.paths.ReadSubPaths(txn, id)
		if err != nil {
			return err
		}
		parentID, ok, err := fsys.paths.ParentOf(txn, id)
		if err != nil {
			return err
		}
		if !ok {
			parentID = id
		}

		fsys.mu.Lock()
		handle := fsys.nextHandleID
		fsys.nextHandleID++
		fsys.handles[handle] = &dirHandle{dirID: id, parentID: parentID, names: names}
		fsys.mu.Unlock()

		op.Handle = handle
		return nil
	})
}

func (fsys *FileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) (err error) {
	fsys.mu.Lock()
	dh, ok := fsys.handles[op.Handle]
	fsys.mu.Unlock()
	if !ok {
		return ferrors.Wrap(ferrors.IOError, nil, "unknown directory handle")
	}

	return fsys.runTxn(ctx, func(txn store.Txn) error {
		// Entries 0 and 1 are the synthetic "." and ".." every listing
		// starts with; dh.names holds only the real children from there on.
		total := len(dh.names) + 2
		offset := int(op.Offset)
		if offset > total {
			return ferrors.Wrap(ferrors.IOError, nil, "directory offset beyond end of listing")
		}

		n := 0
		for i := offset; i < total; i++ {
			var name string
			var childID inode.ID
			switch i {
			case 0:
				name, childID = ".", dh.dirID
			case 1:
				name, childID = "..", dh.parentID
			default:
				name = dh.names[i-2]
				var ok bool
				var err error
				childID, ok, err = fsys.paths.FindChild(txn, dh.dirID, name)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
			}

			rec, ok, err := fsys.inodes.ReadEntry(txn, childID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}

			dirent := fuseutil.Dirent{
				Offset: fuseops.DirOffset(i + 1),
				Inode:  fuseops.InodeID(childID),
				Name:   name,
				Type:   direntType(rec),
			}
			written := fuseutil.WriteDirent(op.Dst[n:], dirent)
			if written == 0 {
				break
			}
			n += written
		}

		op.BytesRead = n
		return nil
	})
}

func direntType(rec *inode.Record) fuseutil.DirentType {
	switch {
	case rec.IsDir():
		return fuseutil.DT_Directory
	case rec.IsSymlink():
		return fuseutil.DT_Link
	default:
		return fuseutil.DT_File
	}
}

func (fsys *FileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) (err error) {
	fsys.mu.Lock()
	delete(fsys.handles, op.Handle)
	fsys.mu.Unlock()
	return nil
}

////////////////////////////////////////////////////////////////////////
// File handles
////////////////////////////////////////////////////////////////////////

func (fsys *FileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		rec, ok, err := fsys.inodes.ReadEntry(txn, inode.ID(op.Inode))
		if err != nil {
			return err
		}
		if !ok {
			return ferrors.New(ferrors.NoSuchFile, fmt.Sprintf("inode %d", op.Inode))
		}
		if !rec.IsRegular() {
			return ferrors.New(ferrors.NotAFile, fmt.Sprintf("inode %d", op.Inode))
		}
		return nil
	})
}

func (fsys *FileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		n, err := fsys.data.ReadData(txn, inode.ID(op.Inode), op.Dst, len(op.Dst), uint64(op.Offset))
		if err != nil {
			return err
		}
		op.BytesRead = n
		return nil
	})
}

func (fsys *FileSystem) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		rec, ok, err := fsys.inodes.ReadEntry(txn, inode.ID(op.Inode))
		if err != nil {
			return err
		}
		if !ok {
			return ferrors.New(ferrors.NoSuchFile, fmt.Sprintf("inode %d", op.Inode))
		}
		if !rec.IsSymlink() || rec.TargetPath == nil {
			return ferrors.New(ferrors.NotAFile, fmt.Sprintf("inode %d is not a symlink", op.Inode))
		}
		op.Target = *rec.TargetPath
		return nil
	})
}

func (fsys *FileSystem) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		id := inode.ID(op.Inode)
		if _, err := fsys.data.WriteData(txn, id, op.Data, len(op.Data), uint64(op.Offset)); err != nil {
			return err
		}

		rec, ok, err := fsys.inodes.ReadEntry(txn, id)
		if err != nil {
			return err
		}
		if ok {
			rec.Mtime = fsys.clock.Now().Unix()
			if err := fsys.inodes.UpdateEntry(txn, id, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// SyncFile and FlushFile are no-ops beyond what every transaction already
// guarantees: store.Env commits (and, for the filestore engine, fsyncs) the
// mutation log before ExecuteInTransaction returns, so there is nothing
// left to flush once a write call has returned successfully.
func (fsys *FileSystem) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) (err error) {
	return nil
}

func (fsys *FileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) (err error) {
	return nil
}

func (fsys *FileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) (err error) {
	return nil
}

////////////////////////////////////////////////////////////////////////
// Filesystem-wide
////////////////////////////////////////////////////////////////////////

func (fsys *FileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) (err error) {
	return fsys.runTxn(ctx, func(txn store.Txn) error {
		pages, err := fsys.data.TotalPagesUsed(txn)
		if err != nil {
			return err
		}
		op.IoSize = uint32(fsys.data.PageSize())
		op.BlockSize = uint32(fsys.data.PageSize())
		op.Blocks = pages
		op.BlocksFree = 0
		op.BlocksAvailable = 0
		op.Inodes = 0
		op.InodesFree = 0
		return nil
	})
}
