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

package fs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/require"

	"github.com/jrivard/jcxfs/internal/fs/inode"
	"github.com/jrivard/jcxfs/internal/store/memstore"
	jcxtime "github.com/jrivard/jcxfs/internal/timeutil"
)

func newTestFileSystem(t *testing.T) *FileSystem {
	t.Helper()
	env := memstore.New()
	t.Cleanup(func() { _ = env.Close() })

	fsys, err := New(env, Config{
		Clock:          jcxtime.NewSimulatedClock(time.Unix(1_700_000_000, 0)),
		UID:            501,
		GID:            20,
		DirMode:        0o755,
		PageSize:       4096,
		InodeCacheSize: 64,
		PathCacheSize:  64,
	})
	require.NoError(t, err)
	return fsys
}

func TestRootDirectoryLookup(t *testing.T) {
	fsys := newTestFileSystem(t)
	ctx := context.Background()

	op := &fuseops.GetInodeAttributesOp{Inode: fuseops.RootInodeID}
	require.NoError(t, fsys.GetInodeAttributes(ctx, op))
	require.True(t, op.Attributes.Mode.IsDir())
}

func TestMkDirCreateFileLookup(t *testing.T) {
	fsys := newTestFileSystem(t)
	ctx := context.Background()

	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "dir", Mode: 0o755}
	require.NoError(t, fsys.MkDir(ctx, mkdirOp))
	require.True(t, mkdirOp.Entry.Attributes.Mode.IsDir())

	createOp := &fuseops.CreateFileOp{Parent: mkdirOp.Entry.Child, Name: "file.txt", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(ctx, createOp))
	require.False(t, createOp.Entry.Attributes.Mode.IsDir())

	lookupOp := &fuseops.LookUpInodeOp{Parent: mkdirOp.Entry.Child, Name: "file.txt"}
	require.NoError(t, fsys.LookUpInode(ctx, lookupOp))
	require.Equal(t, createOp.Entry.Child, lookupOp.Entry.Child)

	missingOp := &fuseops.LookUpInodeOp{Parent: mkdirOp.Entry.Child, Name: "nosuch"}
	require.Error(t, fsys.LookUpInode(ctx, missingOp))
}

func TestWriteThenReadFile(t *testing.T) {
	fsys := newTestFileSystem(t)
	ctx := context.Background()

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "f", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(ctx, createOp))

	content := []byte("hello, world")
	writeOp := &fuseops.WriteFileOp{Inode: createOp.Entry.Child, Data: content, Offset: 0}
	require.NoError(t, fsys.WriteFile(ctx, writeOp))

	readOp := &fuseops.ReadFileOp{
		Inode:  createOp.Entry.Child,
		Dst:    make([]byte, len(content)),
		Offset: 0,
	}
	require.NoError(t, fsys.ReadFile(ctx, readOp))
	require.Equal(t, len(content), readOp.BytesRead)
	require.Equal(t, content, readOp.Dst[:readOp.BytesRead])

	attrOp := &fuseops.GetInodeAttributesOp{Inode: createOp.Entry.Child}
	require.NoError(t, fsys.GetInodeAttributes(ctx, attrOp))
	require.Equal(t, uint64(len(content)), attrOp.Attributes.Size)
}

func TestTruncateViaSetInodeAttributes(t *testing.T) {
	fsys := newTestFileSystem(t)
	ctx := context.Background()

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "f", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(ctx, createOp))

	writeOp := &fuseops.WriteFileOp{Inode: createOp.Entry.Child, Data: []byte("0123456789"), Offset: 0}
	require.NoError(t, fsys.WriteFile(ctx, writeOp))

	newSize := uint64(4)
	setOp := &fuseops.SetInodeAttributesOp{Inode: createOp.Entry.Child, Size: &newSize}
	require.NoError(t, fsys.SetInodeAttributes(ctx, setOp))
	require.Equal(t, newSize, setOp.Attributes.Size)

	readOp := &fuseops.ReadFileOp{Inode: createOp.Entry.Child, Dst: make([]byte, 10), Offset: 0}
	require.NoError(t, fsys.ReadFile(ctx, readOp))
	require.Equal(t, 4, readOp.BytesRead)
	require.Equal(t, []byte("0123"), readOp.Dst[:readOp.BytesRead])
}

func TestSymlinkCreateAndRead(t *testing.T) {
	fsys := newTestFileSystem(t)
	ctx := context.Background()

	symOp := &fuseops.CreateSymlinkOp{Parent: fuseops.RootInodeID, Name: "link", Target: "/a/b/c"}
	require.NoError(t, fsys.CreateSymlink(ctx, symOp))
	require.NotZero(t, symOp.Entry.Attributes.Mode&os.ModeSymlink)

	readLinkOp := &fuseops.ReadSymlinkOp{Inode: symOp.Entry.Child}
	require.NoError(t, fsys.ReadSymlink(ctx, readLinkOp))
	require.Equal(t, "/a/b/c", readLinkOp.Target)
}

// TestDirectoryListing makes a directory, creates a few files in it, lists
// the directory, and confirms every name round-trips.
func TestDirectoryListing(t *testing.T) {
	fsys := newTestFileSystem(t)
	ctx := context.Background()

	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "dir", Mode: 0o755}
	require.NoError(t, fsys.MkDir(ctx, mkdirOp))
	parent := mkdirOp.Entry.Child

	names := []string{"aaa", "bbb", "ccc"}
	for _, n := range names {
		op := &fuseops.CreateFileOp{Parent: parent, Name: n, Mode: 0o644}
		require.NoError(t, fsys.CreateFile(ctx, op))
	}

	openOp := &fuseops.OpenDirOp{Inode: parent}
	require.NoError(t, fsys.OpenDir(ctx, openOp))

	// Read the whole listing in one pass (a buffer generous enough that
	// fuseutil.WriteDirent never has to split an entry across calls), then
	// confirm the listing contains the synthetic "." and ".." entries and
	// every created name, and that a read at the end offset of the listing
	// reports zero bytes, matching posix readdir(3).
	buf := make([]byte, 4096)
	readOp := &fuseops.ReadDirOp{Inode: parent, Handle: openOp.Handle, Dst: buf, Offset: 0}
	require.NoError(t, fsys.ReadDir(ctx, readOp))
	require.Greater(t, readOp.BytesRead, 0)
	listing := string(readOp.Dst[:readOp.BytesRead])
	require.Contains(t, listing, ".")
	require.Contains(t, listing, "..")
	for _, n := range names {
		require.Contains(t, listing, n)
	}

	endOp := &fuseops.ReadDirOp{Inode: parent, Handle: openOp.Handle, Dst: buf, Offset: fuseops.DirOffset(len(names) + 2)}
	require.NoError(t, fsys.ReadDir(ctx, endOp))
	require.Equal(t, 0, endOp.BytesRead)

	require.NoError(t, fsys.ReleaseDirHandle(ctx, &fuseops.ReleaseDirHandleOp{Handle: openOp.Handle}))
}

// TestRenameIdempotence renames file a to b then back to a, and checks that
// the filesystem ends up exactly where it started.
func TestRenameIdempotence(t *testing.T) {
	fsys := newTestFileSystem(t)
	ctx := context.Background()

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "a", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(ctx, createOp))
	id := createOp.Entry.Child

	renameOp := &fuseops.RenameOp{
		OldParent: fuseops.RootInodeID, OldName: "a",
		NewParent: fuseops.RootInodeID, NewName: "b",
	}
	require.NoError(t, fsys.Rename(ctx, renameOp))

	backOp := &fuseops.RenameOp{
		OldParent: fuseops.RootInodeID, OldName: "b",
		NewParent: fuseops.RootInodeID, NewName: "a",
	}
	require.NoError(t, fsys.Rename(ctx, backOp))

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "a"}
	require.NoError(t, fsys.LookUpInode(ctx, lookupOp))
	require.Equal(t, id, lookupOp.Entry.Child)

	missingOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "b"}
	require.Error(t, fsys.LookUpInode(ctx, missingOp))
}

func TestRmDirRejectsNonEmpty(t *testing.T) {
	fsys := newTestFileSystem(t)
	ctx := context.Background()

	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "dir", Mode: 0o755}
	require.NoError(t, fsys.MkDir(ctx, mkdirOp))

	createOp := &fuseops.CreateFileOp{Parent: mkdirOp.Entry.Child, Name: "f", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(ctx, createOp))

	require.Error(t, fsys.RmDir(ctx, &fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "dir"}))

	require.NoError(t, fsys.Unlink(ctx, &fuseops.UnlinkOp{Parent: mkdirOp.Entry.Child, Name: "f"}))
	require.NoError(t, fsys.RmDir(ctx, &fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "dir"}))
}

// TestChildAddRemoveRefreshesParentMtime checks that a directory's mtime
// advances whenever a child is added (mkdir, create) or removed (unlink,
// rmdir), not just on a direct chmod/utimens call.
func TestChildAddRemoveRefreshesParentMtime(t *testing.T) {
	fsys := newTestFileSystem(t)
	clock := fsys.clock.(*jcxtime.SimulatedClock)
	ctx := context.Background()

	attrsOf := func(id fuseops.InodeID) fuseops.InodeAttributes {
		op := &fuseops.GetInodeAttributesOp{Inode: id}
		require.NoError(t, fsys.GetInodeAttributes(ctx, op))
		return op.Attributes
	}

	rootMtime := attrsOf(fuseops.RootInodeID).Mtime

	clock.AdvanceTime(time.Second)
	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "f", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(ctx, createOp))
	require.True(t, attrsOf(fuseops.RootInodeID).Mtime.After(rootMtime), "creating a file must bump the parent's mtime")
	rootMtime = attrsOf(fuseops.RootInodeID).Mtime

	clock.AdvanceTime(time.Second)
	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "dir", Mode: 0o755}
	require.NoError(t, fsys.MkDir(ctx, mkdirOp))
	require.True(t, attrsOf(fuseops.RootInodeID).Mtime.After(rootMtime), "mkdir must bump the parent's mtime")
	rootMtime = attrsOf(fuseops.RootInodeID).Mtime

	clock.AdvanceTime(time.Second)
	require.NoError(t, fsys.Unlink(ctx, &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "f"}))
	require.True(t, attrsOf(fuseops.RootInodeID).Mtime.After(rootMtime), "unlink must bump the parent's mtime")
	rootMtime = attrsOf(fuseops.RootInodeID).Mtime

	clock.AdvanceTime(time.Second)
	require.NoError(t, fsys.RmDir(ctx, &fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "dir"}))
	require.True(t, attrsOf(fuseops.RootInodeID).Mtime.After(rootMtime), "rmdir must bump the parent's mtime")
}

func TestUnlinkRemovesFileData(t *testing.T) {
	fsys := newTestFileSystem(t)
	ctx := context.Background()

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "f", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(ctx, createOp))

	writeOp := &fuseops.WriteFileOp{Inode: createOp.Entry.Child, Data: []byte("payload"), Offset: 0}
	require.NoError(t, fsys.WriteFile(ctx, writeOp))

	require.NoError(t, fsys.Unlink(ctx, &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "f"}))

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "f"}
	require.Error(t, fsys.LookUpInode(ctx, lookupOp))

	statOp := &fuseops.StatFSOp{}
	require.NoError(t, fsys.StatFS(ctx, statOp))
	require.Equal(t, uint64(0), statOp.Blocks, "unlink must drop the file's data pages")
}

func TestChangeOwner(t *testing.T) {
	fsys := newTestFileSystem(t)
	ctx := context.Background()

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "f", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(ctx, createOp))

	require.NoError(t, fsys.ChangeOwner(ctx, inode.ID(createOp.Entry.Child), 1234, 5678))

	attrOp := &fuseops.GetInodeAttributesOp{Inode: createOp.Entry.Child}
	require.NoError(t, fsys.GetInodeAttributes(ctx, attrOp))
	require.Equal(t, uint32(1234), attrOp.Attributes.Uid)
	require.Equal(t, uint32(5678), attrOp.Attributes.Gid)
}

func TestStatFSReportsPagesUsed(t *testing.T) {
	fsys := newTestFileSystem(t)
	ctx := context.Background()

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "f", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(ctx, createOp))
	writeOp := &fuseops.WriteFileOp{Inode: createOp.Entry.Child, Data: []byte("some bytes"), Offset: 0}
	require.NoError(t, fsys.WriteFile(ctx, writeOp))

	statOp := &fuseops.StatFSOp{}
	require.NoError(t, fsys.StatFS(ctx, statOp))
	require.Greater(t, statOp.Blocks, uint64(0))
	require.Equal(t, uint32(4096), statOp.BlockSize)
}
