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

// Package envparams implements the jcxfs.env sidecar (cipher identity, IV,
// auth module identity, and the wrapped-key blob from internal/keyhier) and
// the internal store parameters (page size, version) persisted inside the
// encrypted store itself. The sidecar is a small Java-.properties-style
// key=value text file, so it is read and written with magiconair/properties
// rather than a hand-rolled parser.
package envparams

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/magiconair/properties"

	"github.com/jrivard/jcxfs/internal/ferrors"
)

const (
	keyIV          = "iv"
	keyCipherClass = "cipher_class"
	keyAuthClass   = "auth_class"
	keyAuthData    = "auth_data"

	// DefaultCipherClass and DefaultAuthClass name the only implementations
	// jcxfs ships; the sidecar still records them explicitly so a future
	// cipher/auth module can be added without breaking old environments.
	DefaultCipherClass = "chacha20"
	DefaultAuthClass   = "argon2-aes128cbc"
)

// EnvParams is the parsed form of jcxfs.env.
type EnvParams struct {
	IV          uint64
	CipherClass string
	AuthClass   string
	AuthData    string // opaque auth state blob, see internal/keyhier
}

// NewEnvParams generates a fresh random IV and fills in the default cipher
// and auth identifiers, for use by `jcxfs init`.
func NewEnvParams(authData string) (*EnvParams, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, ferrors.NewAuthError("generating IV", err)
	}
	return &EnvParams{
		IV:          binary.BigEndian.Uint64(buf[:]),
		CipherClass: DefaultCipherClass,
		AuthClass:   DefaultAuthClass,
		AuthData:    authData,
	}, nil
}

// LoadEnvParams reads and parses the sidecar at path. All four keys are
// required; a missing file or any missing/malformed key is a fatal open
// error.
func LoadEnvParams(path string) (*EnvParams, error) {
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, ferrors.NewAuthError(fmt.Sprintf("reading %s", path), err)
	}

	ivHex, ok := p.Get(keyIV)
	if !ok {
		return nil, ferrors.NewAuthError(fmt.Sprintf("%s missing key %q", path, keyIV), nil)
	}
	var iv uint64
	if _, err := fmt.Sscanf(ivHex, "%016x", &iv); err != nil {
		return nil, ferrors.NewAuthError(fmt.Sprintf("%s has malformed %q", path, keyIV), err)
	}

	cipherClass, ok := p.Get(keyCipherClass)
	if !ok {
		return nil, ferrors.NewAuthError(fmt.Sprintf("%s missing key %q", path, keyCipherClass), nil)
	}
	authClass, ok := p.Get(keyAuthClass)
	if !ok {
		return nil, ferrors.NewAuthError(fmt.Sprintf("%s missing key %q", path, keyAuthClass), nil)
	}
	authData, ok := p.Get(keyAuthData)
	if !ok {
		return nil, ferrors.NewAuthError(fmt.Sprintf("%s missing key %q", path, keyAuthData), nil)
	}

	return &EnvParams{IV: iv, CipherClass: cipherClass, AuthClass: authClass, AuthData: authData}, nil
}

// Save writes the sidecar to path, creating or truncating it. Called at
// `init` and again at `changepassword` (only auth_data actually changes).
func (e *EnvParams) Save(path string) error {
	p := properties.NewProperties()
	mustSet(p, keyIV, fmt.Sprintf("%016x", e.IV))
	mustSet(p, keyCipherClass, e.CipherClass)
	mustSet(p, keyAuthClass, e.AuthClass)
	mustSet(p, keyAuthData, e.AuthData)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("envparams: creating %s: %w", path, err)
	}
	defer f.Close()

	if _, err := p.Write(f, properties.UTF8); err != nil {
		return fmt.Errorf("envparams: writing %s: %w", path, err)
	}
	return nil
}

func mustSet(p *properties.Properties, key, value string) {
	if _, _, err := p.Set(key, value); err != nil {
		// Set only fails on a malformed expansion in the value, which a
		// hex IV or an opaque JSON blob never triggers.
		panic(fmt.Sprintf("envparams: unexpected properties.Set failure for %q: %v", key, err))
	}
}

const (
	storeParamsVersion = 1
	// MetaKeyStoreParams is the reserved key under which StoreParams lives in
	// the store's meta table, invisible until the correct DEK is supplied.
	MetaKeyStoreParams = "STORE_PARAMS"

	MinPageSize     = 64
	MaxPageSize     = 1_024_000
	DefaultPageSize = 65536
)

// StoreParams is the small amount of configuration fixed at database
// creation and stored inside the encrypted store.
type StoreParams struct {
	Version  uint32 `json:"v"`
	PageSize int32  `json:"ps"`
}

// NewStoreParams validates pageSize against the [64, 1024000] range and
// returns a StoreParams ready to be persisted under MetaKeyStoreParams.
func NewStoreParams(pageSize int32) (StoreParams, error) {
	if pageSize < MinPageSize || pageSize > MaxPageSize {
		return StoreParams{}, fmt.Errorf("envparams: page size %d out of range [%d, %d]", pageSize, MinPageSize, MaxPageSize)
	}
	return StoreParams{Version: storeParamsVersion, PageSize: pageSize}, nil
}

// MarshalJSON-backed (de)serialization: StoreParams is the value stored at
// MetaKeyStoreParams, via the same JSON-short-field-name convention the
// inode record uses.
func (sp StoreParams) Encode() ([]byte, error) {
	return json.Marshal(sp)
}

func DecodeStoreParams(b []byte) (StoreParams, error) {
	var sp StoreParams
	if err := json.Unmarshal(b, &sp); err != nil {
		return StoreParams{}, fmt.Errorf("envparams: decoding store params: %w", err)
	}
	if sp.Version != storeParamsVersion {
		return StoreParams{}, fmt.Errorf("envparams: unsupported store params version %d", sp.Version)
	}
	return sp, nil
}
