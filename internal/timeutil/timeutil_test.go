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

package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSimulatedClockHoldsTimeUntilAdvanced(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	sc := NewSimulatedClock(start)

	require.True(t, sc.Now().Equal(start))
	require.True(t, sc.Now().Equal(start), "Now() must not drift on its own")

	sc.AdvanceTime(time.Hour)
	require.True(t, sc.Now().Equal(start.Add(time.Hour)))

	later := start.Add(24 * time.Hour)
	sc.SetTime(later)
	require.True(t, sc.Now().Equal(later))
}

func TestRealClockTracksWallTime(t *testing.T) {
	before := time.Now()
	got := RealClock().Now()
	after := time.Now()

	require.False(t, got.Before(before))
	require.False(t, got.After(after))
}
