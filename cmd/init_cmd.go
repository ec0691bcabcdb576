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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jrivard/jcxfs/internal/envparams"
	"github.com/jrivard/jcxfs/internal/fs"
	"github.com/jrivard/jcxfs/internal/keyhier"
	"github.com/jrivard/jcxfs/internal/logger"
	"github.com/jrivard/jcxfs/internal/store"
	"github.com/jrivard/jcxfs/internal/store/filestore"
	jcxtime "github.com/jrivard/jcxfs/internal/timeutil"
)

const envFileName = "jcxfs.env"

var initCmd = &cobra.Command{
	Use:   "init <dbPath>",
	Short: "Create a new, empty jcxfs environment at dbPath",
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

func init() {
	registerPasswordFlags(initCmd.Flags(), "")
	initCmd.Flags().Int32("page-size", envparams.DefaultPageSize, "bytes per data page, in [64, 1024000]")
}

func runInit(cmd *cobra.Command, args []string) error {
	dbPath := args[0]
	pageSize, _ := cmd.Flags().GetInt32("page-size")

	password, err := resolvePassword(cmd, "")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dbPath, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dbPath, err)
	}

	envPath := filepath.Join(dbPath, envFileName)
	if _, err := os.Stat(envPath); err == nil {
		return fmt.Errorf("%s already exists; refusing to overwrite an existing environment", envPath)
	}

	state, dek, err := keyhier.InitNewEnv(password)
	if err != nil {
		return err
	}
	authData, err := state.StoreEnv()
	if err != nil {
		return fmt.Errorf("serializing auth state: %w", err)
	}

	ep, err := envparams.NewEnvParams(authData)
	if err != nil {
		return err
	}
	if err := ep.Save(envPath); err != nil {
		return err
	}

	storeParams, err := envparams.NewStoreParams(pageSize)
	if err != nil {
		return err
	}

	env, err := filestore.Open(dbPath, dek)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	if err := writeStoreParams(env, storeParams); err != nil {
		env.Close()
		return err
	}

	fsys, err := fs.New(env, fs.Config{
		Clock:          jcxtime.RealClock(),
		UID:            Config.UID,
		GID:            Config.GID,
		DirMode:        os.FileMode(Config.DirMode),
		PageSize:       storeParams.PageSize,
		InodeCacheSize: Config.Cache.InodeCacheSize,
		PathCacheSize:  Config.Cache.PathCacheSize,
	})
	if err != nil {
		env.Close()
		return fmt.Errorf("initializing root directory: %w", err)
	}
	fsys.Destroy()

	logger.Infof("cmd: initialized jcxfs environment at %s", dbPath)
	return nil
}

const metaTable = "META"

// writeStoreParams persists sp under envparams.MetaKeyStoreParams in the
// store's META table — the same table internal/fs/inode uses for its id
// counter, keyed by a distinct string so the two never collide.
func writeStoreParams(env store.Env, sp envparams.StoreParams) error {
	b, err := sp.Encode()
	if err != nil {
		return fmt.Errorf("encoding store params: %w", err)
	}
	return env.ExecuteInTransaction(context.Background(), func(txn store.Txn) error {
		meta, err := env.OpenStore(metaTable, store.Unique, txn)
		if err != nil {
			return err
		}
		return meta.Put(txn, []byte(envparams.MetaKeyStoreParams), b)
	})
}

// readStoreParams is mount/dump's counterpart to writeStoreParams.
func readStoreParams(env store.Env) (envparams.StoreParams, error) {
	var sp envparams.StoreParams
	err := env.ExecuteInTransaction(context.Background(), func(txn store.Txn) error {
		meta, err := env.OpenStore(metaTable, store.Unique, txn)
		if err != nil {
			return err
		}
		b, err := meta.Get(txn, []byte(envparams.MetaKeyStoreParams))
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("store params missing; environment was never initialized")
		}
		sp, err = envparams.DecodeStoreParams(b)
		return err
	})
	return sp, err
}
