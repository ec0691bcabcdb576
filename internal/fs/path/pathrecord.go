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

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jrivard/jcxfs/internal/fs/inode"
)

const recordVersion = "1"

// Record is a single child-directory entry, encoded as
// "1!<16-hex-digits-of-id>!<name>".
type Record struct {
	ChildID   inode.ID
	ChildName string
}

// Encode renders r in the wire form the PATH table stores as a duplicate
// value under the parent's key.
func (r Record) Encode() []byte {
	return []byte(fmt.Sprintf("%s!%016x!%s", recordVersion, uint64(r.ChildID), r.ChildName))
}

// DecodeRecord parses the encoding Encode produces.
func DecodeRecord(b []byte) (Record, error) {
	s := string(b)
	parts := strings.SplitN(s, "!", 3)
	if len(parts) != 3 {
		return Record{}, fmt.Errorf("path: malformed path record %q", s)
	}
	if parts[0] != recordVersion {
		return Record{}, fmt.Errorf("path: unsupported path record version %q", parts[0])
	}
	if len(parts[1]) != 16 {
		return Record{}, fmt.Errorf("path: malformed path record id field %q", parts[1])
	}
	id, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return Record{}, fmt.Errorf("path: malformed path record id field: %w", err)
	}
	return Record{ChildID: inode.ID(id), ChildName: parts[2]}, nil
}
