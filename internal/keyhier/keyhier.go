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

// Package keyhier implements the two-level key hierarchy that turns a user
// password into the data encryption key handed to internal/store: a random
// DEK wraps the store, a password-derived KEK wraps the DEK, and rotating
// the password only ever rewrites the wrapped-key blob. A wrong password is
// detected by PKCS5 padding validation failing during unwrap, rather than by
// maintaining a separate verifier value.
package keyhier

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/jrivard/jcxfs/internal/ferrors"
)

const (
	dekSize  = 32 // 256-bit DEK handed to the stream cipher in internal/store.
	kekSize  = 16 // AES-128 key material derived by Argon2.
	saltSize = 64
	ivSize   = aes.BlockSize // 16

	// Argon2id parameters. The Argon2 reference implementation ships no single
	// universal default; these use one pass over 64 MiB with 4 lanes, which
	// stays fast enough for an interactive mount.
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4

	stateVersion = "1"
)

// authState is the JSON shape persisted as jcxfs.env's auth_data value.
type authState struct {
	Version    string `json:"version"`
	Salt       string `json:"salt"`       // hex
	WrappedDek string `json:"wrappedDek"` // hex(iv‖ciphertext)
}

// State is the in-memory form of the auth blob: parsed, but not yet
// unwrapped (unwrapping requires a password and happens in ReadCipher).
type State struct {
	inner authState
}

// InitNewEnv generates a fresh DEK and wraps it under a KEK derived from
// password, returning the resulting State and the DEK for immediate use.
// password must be non-empty.
func InitNewEnv(password string) (*State, []byte, error) {
	if password == "" {
		return nil, nil, ferrors.NewAuthError("password must not be empty", nil)
	}

	dek := make([]byte, dekSize)
	if _, err := rand.Read(dek); err != nil {
		return nil, nil, ferrors.NewAuthError("generating DEK", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, ferrors.NewAuthError("generating salt", err)
	}

	wrapped, err := wrap(dek, deriveKEK([]byte(password), salt))
	if err != nil {
		return nil, nil, ferrors.NewAuthError("wrapping DEK", err)
	}

	st := &State{inner: authState{
		Version:    stateVersion,
		Salt:       hex.EncodeToString(salt),
		WrappedDek: hex.EncodeToString(wrapped),
	}}
	return st, dek, nil
}

// ReadCipher unwraps the DEK using password, returning an AuthError if the
// password is wrong (detected via PKCS5 padding failure) or the state is
// malformed.
func (s *State) ReadCipher(password string) ([]byte, error) {
	salt, err := hex.DecodeString(s.inner.Salt)
	if err != nil {
		return nil, ferrors.NewAuthError("malformed salt", err)
	}
	wrapped, err := hex.DecodeString(s.inner.WrappedDek)
	if err != nil {
		return nil, ferrors.NewAuthError("malformed wrapped key", err)
	}

	dek, err := unwrap(wrapped, deriveKEK([]byte(password), salt))
	if err != nil {
		return nil, ferrors.NewAuthError("incorrect password", err)
	}
	return dek, nil
}

// ChangePassword re-wraps the DEK (unwrapped with old) under a freshly
// generated salt and a KEK derived from new. The DEK itself — and therefore
// every byte the store has ever encrypted with it — is unchanged.
func (s *State) ChangePassword(oldPassword, newPassword string) (*State, error) {
	dek, err := s.ReadCipher(oldPassword)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, ferrors.NewAuthError("generating salt", err)
	}

	wrapped, err := wrap(dek, deriveKEK([]byte(newPassword), salt))
	if err != nil {
		return nil, ferrors.NewAuthError("wrapping DEK", err)
	}

	return &State{inner: authState{
		Version:    stateVersion,
		Salt:       hex.EncodeToString(salt),
		WrappedDek: hex.EncodeToString(wrapped),
	}}, nil
}

// LoadEnv parses a serialized state blob with no verification — the password
// is only needed (and checked) at ReadCipher time.
func LoadEnv(stateBlob string) (*State, error) {
	var inner authState
	if err := json.Unmarshal([]byte(stateBlob), &inner); err != nil {
		return nil, ferrors.NewAuthError("malformed auth state", err)
	}
	if inner.Version != stateVersion {
		return nil, ferrors.NewAuthError(fmt.Sprintf("unsupported auth state version %q", inner.Version), nil)
	}
	return &State{inner: inner}, nil
}

// StoreEnv serializes the state for persistence in jcxfs.env's auth_data.
func (s *State) StoreEnv() (string, error) {
	b, err := json.Marshal(s.inner)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func deriveKEK(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, kekSize)
}

// wrap encrypts dek under kek with AES-128-CBC and PKCS5 padding, returning
// iv‖ciphertext.
func wrap(dek, kek []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	padded := pkcs5Pad(dek, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return append(iv, ciphertext...), nil
}

// unwrap reverses wrap. A wrong kek almost always produces invalid PKCS5
// padding, which this surfaces as an error — there is no separate password
// verifier anywhere in the format.
func unwrap(blob, kek []byte) ([]byte, error) {
	if len(blob) < ivSize || (len(blob)-ivSize)%aes.BlockSize != 0 || len(blob) == ivSize {
		return nil, fmt.Errorf("keyhier: malformed wrapped key")
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	iv, ciphertext := blob[:ivSize], blob[ivSize:]
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	return pkcs5Unpad(plain)
}

func pkcs5Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(append([]byte(nil), data...), padding...)
}

func pkcs5Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("keyhier: empty plaintext")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > n || padLen > aes.BlockSize {
		return nil, fmt.Errorf("keyhier: invalid padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("keyhier: invalid padding")
		}
	}
	return data[:n-padLen], nil
}
