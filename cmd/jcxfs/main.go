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

// Command jcxfs mounts and manages an encrypted, POSIX-like filesystem
// backed by an abstract transactional key-value store. See the cmd package
// for the subcommand implementations.
package main

import (
	"github.com/jrivard/jcxfs/cmd"
)

func main() {
	cmd.Execute()
}
