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
	"os/signal"

	"github.com/jacobsa/fuse"
	"github.com/spf13/cobra"

	"github.com/jrivard/jcxfs/internal/envparams"
	"github.com/jrivard/jcxfs/internal/fs"
	"github.com/jrivard/jcxfs/internal/keyhier"
	"github.com/jrivard/jcxfs/internal/logger"
	"github.com/jrivard/jcxfs/internal/store/filestore"
	jcxtime "github.com/jrivard/jcxfs/internal/timeutil"
)

var mountCmd = &cobra.Command{
	Use:   "mount <dbPath> <mountPoint>",
	Short: "Mount a jcxfs environment at mountPoint",
	Args:  cobra.ExactArgs(2),
	RunE:  runMount,
}

func init() {
	registerPasswordFlags(mountCmd.Flags(), "")
	mountCmd.Flags().Int("utilization", 0, "advisory hint for how aggressively to use kernel caches; unused by this engine, accepted for compatibility")
	mountCmd.Flags().Bool("noexit", false, "accepted for compatibility; unused, the mount always runs in the foreground")
}

func runMount(cmd *cobra.Command, args []string) error {
	dbPath, mountPoint := args[0], args[1]

	password, err := resolvePassword(cmd, "")
	if err != nil {
		return err
	}

	env, storeParams, err := openEnvironment(dbPath, password)
	if err != nil {
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
		return fmt.Errorf("starting filesystem: %w", err)
	}

	mountCfg := &fuse.MountConfig{
		FSName:     "jcxfs",
		Subtype:    "jcxfs",
		VolumeName: "jcxfs",
		ReadOnly:   Config.ReadOnly,
	}

	logger.Infof("cmd: mounting %s at %s", dbPath, mountPoint)
	mfs, err := fuse.Mount(mountPoint, fsys.Server(), mountCfg)
	if err != nil {
		fsys.Destroy()
		return fmt.Errorf("mount: %w", err)
	}

	registerSIGINTHandler(mountPoint)

	if err := mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("serving filesystem: %w", err)
	}
	return nil
}

// openEnvironment loads the sidecar, unwraps the DEK with password, and
// opens the encrypted store, returning its persisted StoreParams.
func openEnvironment(dbPath, password string) (*filestore.Env, envparams.StoreParams, error) {
	ep, err := envparams.LoadEnvParams(envPathFor(dbPath))
	if err != nil {
		return nil, envparams.StoreParams{}, err
	}

	state, err := keyhier.LoadEnv(ep.AuthData)
	if err != nil {
		return nil, envparams.StoreParams{}, err
	}
	dek, err := state.ReadCipher(password)
	if err != nil {
		return nil, envparams.StoreParams{}, err
	}

	env, err := filestore.Open(dbPath, dek)
	if err != nil {
		return nil, envparams.StoreParams{}, fmt.Errorf("opening store: %w", err)
	}

	storeParams, err := readStoreParams(env)
	if err != nil {
		env.Close()
		return nil, envparams.StoreParams{}, err
	}
	return env, storeParams, nil
}

func envPathFor(dbPath string) string {
	return dbPath + string(os.PathSeparator) + envFileName
}

// registerSIGINTHandler unmounts mountPoint on SIGINT, retrying fuse.Unmount
// until it succeeds.
func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for range signalChan {
			logger.Infof("cmd: received SIGINT, attempting to unmount...")
			if err := fuse.Unmount(mountPoint); err != nil {
				logger.Errorf("cmd: failed to unmount in response to SIGINT: %v", err)
				continue
			}
			logger.Infof("cmd: successfully unmounted in response to SIGINT")
			return
		}
	}()
}
