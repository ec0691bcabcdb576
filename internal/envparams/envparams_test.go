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

package envparams

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	e, err := NewEnvParams("opaque-auth-blob")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "jcxfs.env")
	require.NoError(t, e.Save(path))

	loaded, err := LoadEnvParams(path)
	require.NoError(t, err)

	require.Equal(t, e.IV, loaded.IV)
	require.Equal(t, e.CipherClass, loaded.CipherClass)
	require.Equal(t, e.AuthClass, loaded.AuthClass)
	require.Equal(t, e.AuthData, loaded.AuthData)
}

func TestLoadEnvParamsMissingFileIsFatal(t *testing.T) {
	_, err := LoadEnvParams(filepath.Join(t.TempDir(), "does-not-exist.env"))
	require.Error(t, err)
}

func TestLoadEnvParamsMissingKeyIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jcxfs.env")
	require.NoError(t, os.WriteFile(path, []byte("iv=0000000000000001\ncipher_class=chacha20\n"), 0o600))

	_, err := LoadEnvParams(path)
	require.Error(t, err)
}

func TestNewStoreParamsValidatesRange(t *testing.T) {
	_, err := NewStoreParams(32)
	require.Error(t, err)

	_, err = NewStoreParams(2_000_000)
	require.Error(t, err)

	sp, err := NewStoreParams(DefaultPageSize)
	require.NoError(t, err)
	require.Equal(t, int32(DefaultPageSize), sp.PageSize)
}

func TestStoreParamsEncodeDecodeRoundTrip(t *testing.T) {
	sp, err := NewStoreParams(8192)
	require.NoError(t, err)

	b, err := sp.Encode()
	require.NoError(t, err)

	got, err := DecodeStoreParams(b)
	require.NoError(t, err)
	require.Equal(t, sp, got)
}

func TestDecodeStoreParamsRejectsUnknownVersion(t *testing.T) {
	_, err := DecodeStoreParams([]byte(`{"v":99,"ps":65536}`))
	require.Error(t, err)
}
