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

// Package cmd assembles jcxfs's command-line surface: init, mount,
// changepassword, and dump/stats, with cfg.Config bound through cobra and
// viper.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jrivard/jcxfs/internal/cfg"
	"github.com/jrivard/jcxfs/internal/logger"
)

var (
	cfgFile      string
	bindErr      error
	unmarshalErr error

	// Config is the fully-bound configuration, populated by initConfig before
	// any subcommand's RunE runs.
	Config cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "jcxfs",
	Short: "An encrypted, mountable filesystem backed by a transactional key-value store",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		logger.SetFormat(string(Config.Logging.Format))
		logger.SetLoggingLevel(string(Config.Logging.Severity))
		if Config.Logging.FilePath != "" {
			if err := logger.InitLogFile(Config.Logging.FilePath, Config.Logging.MaxSizeMB, Config.Logging.MaxBackups, Config.Logging.MaxAgeDays, 1024); err != nil {
				return fmt.Errorf("initializing log file: %w", err)
			}
		}
		return nil
	},
}

// Execute runs the root command, printing any error to stderr and setting
// the process exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "path to a YAML config file")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(initCmd, mountCmd, changePasswordCmd, dumpCmd, statsCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			unmarshalErr = fmt.Errorf("reading config file %s: %w", cfgFile, err)
			return
		}
	}
	unmarshalErr = viper.Unmarshal(&Config)
}
