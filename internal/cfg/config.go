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

// Package cfg defines the typed configuration jcxfs's commands bind from
// flags, environment variables, and an optional config file: plain struct
// fields, custom encoding.TextUnmarshaler types for anything with a closed
// vocabulary, and a BindFlags entry point cmd/root.go calls once at init.
package cfg

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CipherID names a DEK stream cipher. Only one is implemented today, but
// the jcxfs.env sidecar records cipher_class per-environment, so the
// vocabulary is already a closed set rather than a single hardcoded value.
type CipherID string

const (
	CipherChaCha20 CipherID = "chacha20"
)

func (c *CipherID) UnmarshalText(text []byte) error {
	v := CipherID(strings.ToLower(string(text)))
	switch v {
	case CipherChaCha20:
		*c = v
		return nil
	default:
		return fmt.Errorf("invalid cipher: %s. Must be one of [chacha20]", text)
	}
}

func (c CipherID) MarshalText() ([]byte, error) {
	return []byte(c), nil
}

// AuthHashID names the KDF used to derive a KEK from the mount password.
type AuthHashID string

const (
	AuthArgon2id AuthHashID = "argon2id"
)

func (a *AuthHashID) UnmarshalText(text []byte) error {
	v := AuthHashID(strings.ToLower(string(text)))
	switch v {
	case AuthArgon2id:
		*a = v
		return nil
	default:
		return fmt.Errorf("invalid auth hash: %s. Must be one of [argon2id]", text)
	}
}

func (a AuthHashID) MarshalText() ([]byte, error) {
	return []byte(a), nil
}

// LogSeverity is a closed vocabulary of log levels, validated at unmarshal
// time rather than at every log call.
type LogSeverity string

const (
	TraceLogSeverity   LogSeverity = "TRACE"
	DebugLogSeverity   LogSeverity = "DEBUG"
	InfoLogSeverity    LogSeverity = "INFO"
	WarningLogSeverity LogSeverity = "WARNING"
	ErrorLogSeverity   LogSeverity = "ERROR"
	OffLogSeverity     LogSeverity = "OFF"
)

var validSeverities = map[LogSeverity]bool{
	TraceLogSeverity: true, DebugLogSeverity: true, InfoLogSeverity: true,
	WarningLogSeverity: true, ErrorLogSeverity: true, OffLogSeverity: true,
}

func (l *LogSeverity) UnmarshalText(text []byte) error {
	v := LogSeverity(strings.ToUpper(string(text)))
	if !validSeverities[v] {
		return fmt.Errorf("invalid log severity: %s. Must be one of [TRACE, DEBUG, INFO, WARNING, ERROR, OFF]", text)
	}
	*l = v
	return nil
}

// LogFormat is either "text" or "json"; see internal/logger.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

func (f *LogFormat) UnmarshalText(text []byte) error {
	v := LogFormat(strings.ToLower(string(text)))
	if v != LogFormatText && v != LogFormatJSON {
		return fmt.Errorf("invalid log format: %s. Must be one of [text, json]", text)
	}
	*f = v
	return nil
}

// LoggingConfig groups the flags that control internal/logger.
type LoggingConfig struct {
	Severity   LogSeverity `mapstructure:"severity"`
	Format     LogFormat   `mapstructure:"format"`
	FilePath   string      `mapstructure:"file-path"`
	MaxSizeMB  int         `mapstructure:"max-size-mb"`
	MaxBackups int         `mapstructure:"max-backups"`
	MaxAgeDays int         `mapstructure:"max-age-days"`
}

// CryptoConfig groups the cipher and KDF selection flags. Each vocabulary has
// a single member, so these are validated but not consulted: `jcxfs init`
// always records envparams' default cipher and auth identifiers, and an
// existing environment's jcxfs.env is authoritative once mounted.
type CryptoConfig struct {
	Cipher CipherID   `mapstructure:"cipher"`
	Auth   AuthHashID `mapstructure:"auth"`
}

// CacheConfig bounds the inode and path resolution LRU caches.
type CacheConfig struct {
	InodeCacheSize int `mapstructure:"inode-cache-size"`
	PathCacheSize  int `mapstructure:"path-cache-size"`
}

// Config is the full set of jcxfs flags/env vars/config-file values, bound
// via viper.Unmarshal.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Crypto  CryptoConfig  `mapstructure:"crypto"`
	Cache   CacheConfig   `mapstructure:"cache"`

	Foreground bool   `mapstructure:"foreground"`
	ReadOnly   bool   `mapstructure:"read-only"`
	UID        uint32 `mapstructure:"uid"`
	GID        uint32 `mapstructure:"gid"`
	DirMode    uint32 `mapstructure:"dir-mode"`
}

// BindFlags registers every Config field on fs as a persistent flag and binds
// it into viper, so env vars, flags, and config file values all resolve
// through the same keys.
func BindFlags(fs *pflag.FlagSet) error {
	fs.String("logging.severity", string(InfoLogSeverity), "log severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF")
	fs.String("logging.format", string(LogFormatText), "log output format: text or json")
	fs.String("logging.file-path", "", "log file path; empty means stderr")
	fs.Int("logging.max-size-mb", 100, "max log file size in MB before rotation")
	fs.Int("logging.max-backups", 5, "max rotated log files to retain")
	fs.Int("logging.max-age-days", 28, "max age in days to retain rotated log files")

	fs.String("crypto.cipher", string(CipherChaCha20), "DEK stream cipher used by `jcxfs init`")
	fs.String("crypto.auth", string(AuthArgon2id), "KEK derivation function used by `jcxfs init`")

	fs.Int("cache.inode-cache-size", 4096, "max inode records held in the inode LRU cache")
	fs.Int("cache.path-cache-size", 4096, "max resolved paths held in the path LRU cache")

	fs.Bool("foreground", false, "accepted for compatibility; unused, the mount always runs in the foreground")
	fs.Bool("read-only", false, "mount the filesystem read-only")
	fs.Uint32("uid", 0, "uid FUSE reports for all inodes")
	fs.Uint32("gid", 0, "gid FUSE reports for all inodes")
	fs.Uint32("dir-mode", 0o755, "permission bits seeded on the root directory at init time")

	return viper.BindPFlags(fs)
}
