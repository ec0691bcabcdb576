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

package keyhier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrivard/jcxfs/internal/ferrors"
)

func TestInitAndReadCipherRoundTrip(t *testing.T) {
	st, dek, err := InitNewEnv("correct horse")
	require.NoError(t, err)
	require.Len(t, dek, dekSize)

	got, err := st.ReadCipher("correct horse")
	require.NoError(t, err)
	require.Equal(t, dek, got)
}

func TestReadCipherWrongPasswordIsAuthError(t *testing.T) {
	st, _, err := InitNewEnv("correct horse")
	require.NoError(t, err)

	_, err = st.ReadCipher("wrong password")
	require.Error(t, err)

	var authErr *ferrors.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestInitNewEnvRejectsEmptyPassword(t *testing.T) {
	_, _, err := InitNewEnv("")
	require.Error(t, err)
}

// TestPasswordChangeClosure verifies that changing the password yields a new
// blob that still unwraps to the same DEK, and that the old password no
// longer works against the new blob.
func TestPasswordChangeClosure(t *testing.T) {
	st, dek, err := InitNewEnv("old-password")
	require.NoError(t, err)

	newSt, err := st.ChangePassword("old-password", "new-password")
	require.NoError(t, err)

	got, err := newSt.ReadCipher("new-password")
	require.NoError(t, err)
	require.Equal(t, dek, got, "DEK must survive a password change unchanged")

	_, err = newSt.ReadCipher("old-password")
	require.Error(t, err, "old password must no longer unwrap the new blob")

	// The original blob is untouched by rotation.
	stillGood, err := st.ReadCipher("old-password")
	require.NoError(t, err)
	require.Equal(t, dek, stillGood)
}

func TestChangePasswordWrongOldPasswordFails(t *testing.T) {
	st, _, err := InitNewEnv("old-password")
	require.NoError(t, err)

	_, err = st.ChangePassword("not-the-old-password", "new-password")
	require.Error(t, err)
}

func TestStoreEnvLoadEnvRoundTrip(t *testing.T) {
	st, dek, err := InitNewEnv("a password")
	require.NoError(t, err)

	blob, err := st.StoreEnv()
	require.NoError(t, err)

	loaded, err := LoadEnv(blob)
	require.NoError(t, err)

	got, err := loaded.ReadCipher("a password")
	require.NoError(t, err)
	require.Equal(t, dek, got)
}

func TestLoadEnvRejectsMalformedBlob(t *testing.T) {
	_, err := LoadEnv("not json")
	require.Error(t, err)
}

func TestEachInitProducesDistinctSaltAndWrapping(t *testing.T) {
	st1, dek1, err := InitNewEnv("same password")
	require.NoError(t, err)
	st2, dek2, err := InitNewEnv("same password")
	require.NoError(t, err)

	require.NotEqual(t, dek1, dek2, "DEKs must be independently random")

	blob1, _ := st1.StoreEnv()
	blob2, _ := st2.StoreEnv()
	require.NotEqual(t, blob1, blob2, "salt and IV must differ across independent inits")
}
