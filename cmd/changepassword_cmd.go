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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jrivard/jcxfs/internal/envparams"
	"github.com/jrivard/jcxfs/internal/keyhier"
	"github.com/jrivard/jcxfs/internal/logger"
)

var changePasswordCmd = &cobra.Command{
	Use:   "changepassword <dbPath>",
	Short: "Re-wrap the data encryption key under a new password",
	Args:  cobra.ExactArgs(1),
	RunE:  runChangePassword,
}

func init() {
	registerPasswordFlags(changePasswordCmd.Flags(), "")
	registerPasswordFlags(changePasswordCmd.Flags(), "new-")
}

func runChangePassword(cmd *cobra.Command, args []string) error {
	dbPath := args[0]

	oldPassword, err := resolvePassword(cmd, "")
	if err != nil {
		return err
	}
	newPassword, err := resolvePassword(cmd, "new-")
	if err != nil {
		return err
	}

	envPath := envPathFor(dbPath)
	ep, err := envparams.LoadEnvParams(envPath)
	if err != nil {
		return err
	}

	state, err := keyhier.LoadEnv(ep.AuthData)
	if err != nil {
		return err
	}

	newState, err := state.ChangePassword(oldPassword, newPassword)
	if err != nil {
		return err
	}

	authData, err := newState.StoreEnv()
	if err != nil {
		return fmt.Errorf("serializing auth state: %w", err)
	}
	ep.AuthData = authData

	if err := ep.Save(envPath); err != nil {
		return err
	}

	logger.Infof("cmd: password changed for environment at %s", dbPath)
	return nil
}
