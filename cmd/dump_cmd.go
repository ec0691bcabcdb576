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

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jrivard/jcxfs/internal/fs/inode"
	"github.com/jrivard/jcxfs/internal/fs/path"
	"github.com/jrivard/jcxfs/internal/store"
	jcxtime "github.com/jrivard/jcxfs/internal/timeutil"
)

// tableNames are the four logical tables that make up the on-disk data
// model, plus META; stable across every store.Env implementation.
var tableNames = []struct {
	name string
	mode store.TableMode
}{
	{"PATH", store.Duplicate},
	{"INODE", store.Unique},
	{"DATA", store.Unique},
	{"DATALEN", store.Unique},
	{"META", store.Unique},
}

var statsCmd = &cobra.Command{
	Use:   "stats <dbPath>",
	Short: "Print per-table record counts for a jcxfs environment",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var dumpCmd = &cobra.Command{
	Use:   "dump <dbPath>",
	Short: "Print a redacted walk of the path tree (names, types and inode ids only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	registerPasswordFlags(statsCmd.Flags(), "")
	registerPasswordFlags(dumpCmd.Flags(), "")
}

func runStats(cmd *cobra.Command, args []string) error {
	dbPath := args[0]
	password, err := resolvePassword(cmd, "")
	if err != nil {
		return err
	}

	env, _, err := openEnvironment(dbPath, password)
	if err != nil {
		return err
	}
	defer env.Close()

	return env.ExecuteInTransaction(context.Background(), func(txn store.Txn) error {
		for _, tn := range tableNames {
			t, err := env.OpenStore(tn.name, tn.mode, txn)
			if err != nil {
				return err
			}
			count, err := t.Count(txn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %d\n", tn.name, count)
		}
		return nil
	})
}

func runDump(cmd *cobra.Command, args []string) error {
	dbPath := args[0]
	password, err := resolvePassword(cmd, "")
	if err != nil {
		return err
	}

	env, storeParams, err := openEnvironment(dbPath, password)
	if err != nil {
		return err
	}
	defer env.Close()

	inodes := inode.NewStore(env, jcxtime.RealClock(), Config.Cache.InodeCacheSize)
	paths := path.NewStore(env, Config.Cache.PathCacheSize)

	fmt.Fprintf(cmd.OutOrStdout(), "# page size %d\n", storeParams.PageSize)

	return env.ExecuteInTransaction(context.Background(), func(txn store.Txn) error {
		return dumpDir(cmd, txn, inodes, paths, inode.RootID, "/", 0)
	})
}

// dumpDir prints one line per entry under dirID and recurses into
// subdirectories. Only names, types, and inode ids are printed — file
// contents are never read or shown.
func dumpDir(cmd *cobra.Command, txn store.Txn, inodes *inode.Store, paths *path.Store, dirID inode.ID, dirPath string, depth int) error {
	names, err := paths.ReadSubPaths(txn, dirID)
	if err != nil {
		return err
	}

	for _, name := range names {
		childID, ok, err := paths.FindChild(txn, dirID, name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		rec, ok, err := inodes.ReadEntry(txn, childID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		kind := "file"
		switch {
		case rec.IsDir():
			kind = "dir"
		case rec.IsSymlink():
			kind = "symlink"
		}
		childPath := joinPath(dirPath, name)
		fmt.Fprintf(cmd.OutOrStdout(), "%*s%s [%s, inode %d]\n", depth*2, "", childPath, kind, childID)

		if rec.IsDir() {
			if err := dumpDir(cmd, txn, inodes, paths, childID, childPath, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
