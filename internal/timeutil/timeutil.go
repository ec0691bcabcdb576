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

// Package timeutil re-exports github.com/jacobsa/timeutil's Clock interface
// for jcxfs's use rather than declaring a separate clock abstraction, and
// adds a SimulatedClock test double trimmed to the one method timeutil.Clock
// actually requires.
package timeutil

import (
	"sync"
	"time"

	"github.com/jacobsa/timeutil"
)

// Clock is the time source every attribute timestamp in internal/fs goes
// through, so tests can control "now" exactly.
type Clock = timeutil.Clock

// RealClock is the production Clock, backed by time.Now.
func RealClock() Clock { return timeutil.RealClock() }

// SimulatedClock is a Clock whose value only changes when SetTime or
// AdvanceTime is called. The zero value reads as the zero time.
type SimulatedClock struct {
	mu sync.RWMutex
	t  time.Time
}

var _ Clock = (*SimulatedClock)(nil)

// NewSimulatedClock returns a SimulatedClock initialized to startTime.
func NewSimulatedClock(startTime time.Time) *SimulatedClock {
	return &SimulatedClock{t: startTime}
}

func (sc *SimulatedClock) Now() time.Time {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.t
}

// SetTime pins the clock to t.
func (sc *SimulatedClock) SetTime(t time.Time) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.t = t
}

// AdvanceTime moves the clock forward by d.
func (sc *SimulatedClock) AdvanceTime(d time.Duration) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.t = sc.t.Add(d)
}
