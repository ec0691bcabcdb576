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

// Package ferrors defines the error taxonomy the filesystem facade returns
// to its callers, and the translation from that taxonomy to the errno-like
// values the FUSE binding expects. FileOpError is a typed, wrappable error
// whose Kind the package-level Errno function reduces to a syscall.Errno at
// the boundary, rather than a bare syscall.Errno sentinel.
package ferrors

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind enumerates the path-domain and storage error kinds a facade operation
// can fail with.
type Kind int

const (
	// IOError is the catch-all for underlying store failures and invariant
	// violations that should be impossible (a "programmer error" made visible).
	IOError Kind = iota
	NoSuchFile
	NoSuchDir
	NotAFile
	NotADirectory
	DirNotEmpty
	FileExists
)

func (k Kind) String() string {
	switch k {
	case NoSuchFile:
		return "NoSuchFile"
	case NoSuchDir:
		return "NoSuchDir"
	case NotAFile:
		return "NotAFile"
	case NotADirectory:
		return "NotADirectory"
	case DirNotEmpty:
		return "DirNotEmpty"
	case FileExists:
		return "FileExists"
	default:
		return "IOError"
	}
}

// FileOpError is the error type every filesystem operation returns on
// failure.
type FileOpError struct {
	Kind  Kind
	Msg   string
	Cause error
}

func New(kind Kind, msg string) *FileOpError {
	return &FileOpError{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, cause error, msg string) *FileOpError {
	return &FileOpError{Kind: kind, Msg: msg, Cause: cause}
}

func (e *FileOpError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *FileOpError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ferrors.NoSuchFile) read naturally by comparing
// kinds rather than pointer identity.
func (e *FileOpError) Is(target error) bool {
	var other *FileOpError
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to IOError for anything that
// isn't a *FileOpError, since an unexpected invariant violation from the
// core layer should surface as a generic I/O failure rather than panic.
func KindOf(err error) Kind {
	var fe *FileOpError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return IOError
}

// Errno returns the syscall.Errno the FUSE boundary should surface for err.
// jacobsa/fuse methods return these directly as plain errors.
func Errno(err error) syscall.Errno {
	switch KindOf(err) {
	case NoSuchFile, NoSuchDir:
		return syscall.ENOENT
	case NotADirectory:
		return syscall.ENOTDIR
	case NotAFile:
		return syscall.EISDIR
	case DirNotEmpty:
		return syscall.ENOTEMPTY
	case FileExists:
		return syscall.EEXIST
	default:
		return syscall.EIO
	}
}

// AuthError signals a wrong password, KDF/cipher failure, or malformed
// sidecar, surfaced only at open/init/changepassword, never during
// steady-state filesystem calls.
type AuthError struct {
	Msg   string
	Cause error
}

func NewAuthError(msg string, cause error) *AuthError {
	return &AuthError{Msg: msg, Cause: cause}
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("auth: %s", e.Msg)
}

func (e *AuthError) Unwrap() error { return e.Cause }
