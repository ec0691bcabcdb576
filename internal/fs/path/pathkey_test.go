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

package path

import "testing"

func TestNewKeyAcceptsAndRejects(t *testing.T) {
	rejects := []string{
		"", "bad", "/bad/", "/bad//", "/bad//bad",
		"/bad/../bad", "/bad/.../bad", "/bad/..", "/bad/...",
	}
	for _, s := range rejects {
		if _, err := NewKey(s); err == nil {
			t.Errorf("NewKey(%q) should have been rejected", s)
		}
	}

	accepts := map[string]string{
		"/":             "/",
		"//":            "/",
		"/good":         "/good",
		"/good/good":    "/good/good",
		"/good/.good":   "/good/.good",
		"/good/..good":  "/good/..good",
		"/good/.good.":  "/good/.good.",
		"/good/..good..": "/good/..good..",
	}
	for s, want := range accepts {
		got, err := NewKey(s)
		if err != nil {
			t.Errorf("NewKey(%q) should have been accepted, got error: %v", s, err)
			continue
		}
		if got.String() != want {
			t.Errorf("NewKey(%q).String() = %q, want %q", s, got.String(), want)
		}
	}
}

func TestSuffixAndParent(t *testing.T) {
	k, err := NewKey("/a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if k.Suffix() != "c" {
		t.Errorf("Suffix() = %q, want c", k.Suffix())
	}
	if k.Parent().String() != "/a/b" {
		t.Errorf("Parent() = %q, want /a/b", k.Parent().String())
	}

	top, _ := NewKey("/top")
	if top.Parent().String() != "/" {
		t.Errorf("Parent() of top-level entry = %q, want /", top.Parent().String())
	}
}

func TestSegments(t *testing.T) {
	k, _ := NewKey("/a/b/c")
	segs := k.Segments()
	want := []string{"a", "b", "c"}
	if len(segs) != len(want) {
		t.Fatalf("Segments() = %v, want %v", segs, want)
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Fatalf("Segments() = %v, want %v", segs, want)
		}
	}

	if len(Root.Segments()) != 0 {
		t.Errorf("Root.Segments() should be empty")
	}
}
