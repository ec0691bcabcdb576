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
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func newTestCommand() *cobra.Command {
	c := &cobra.Command{Use: "test"}
	registerPasswordFlags(c.Flags(), "")
	return c
}

func TestResolvePasswordInline(t *testing.T) {
	c := newTestCommand()
	require.NoError(t, c.Flags().Set("pw", "hunter2"))

	pw, err := resolvePassword(c, "")
	require.NoError(t, err)
	require.Equal(t, "hunter2", pw)
}

func TestResolvePasswordFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pw.txt")
	require.NoError(t, os.WriteFile(path, []byte("hunter2\n"), 0o600))

	c := newTestCommand()
	require.NoError(t, c.Flags().Set("pw-file", path))

	pw, err := resolvePassword(c, "")
	require.NoError(t, err)
	require.Equal(t, "hunter2", pw, "trailing newline must be trimmed")
}

func TestResolvePasswordNoneSet(t *testing.T) {
	c := newTestCommand()
	_, err := resolvePassword(c, "")
	require.Error(t, err)
}

func TestResolvePasswordMutuallyExclusive(t *testing.T) {
	c := newTestCommand()
	require.NoError(t, c.Flags().Set("pw", "hunter2"))
	require.NoError(t, c.Flags().Set("pw-prompt", "true"))

	_, err := resolvePassword(c, "")
	require.Error(t, err)
}

func TestResolvePasswordPrefix(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	registerPasswordFlags(c.Flags(), "")
	registerPasswordFlags(c.Flags(), "new-")

	require.NoError(t, c.Flags().Set("pw", "old-secret"))
	require.NoError(t, c.Flags().Set("new-pw", "new-secret"))

	oldPW, err := resolvePassword(c, "")
	require.NoError(t, err)
	require.Equal(t, "old-secret", oldPW)

	newPW, err := resolvePassword(c, "new-")
	require.NoError(t, err)
	require.Equal(t, "new-secret", newPW)
}
