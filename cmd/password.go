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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
)

// registerPasswordFlags adds the three mutually-exclusive password-source
// flags for any command that needs a mount password: inline (--pw,
// discouraged — visible in `ps`), interactive (--pw-prompt, no echo), or a
// file (--pw-file, trailing newline trimmed). prefix lets changepassword
// register a second set ("--new-...") alongside the first.
func registerPasswordFlags(fs *pflag.FlagSet, prefix string) {
	fs.String(prefix+"pw", "", "password, given directly on the command line (discouraged; visible via ps)")
	fs.Bool(prefix+"pw-prompt", false, "read the password interactively from the terminal, without echo")
	fs.String(prefix+"pw-file", "", "read the password from the first line of this file")
}

// resolvePassword reads whichever of the prefix-flag trio was supplied,
// rejecting the ambiguous case of more than one being set.
func resolvePassword(cmd *cobra.Command, prefix string) (string, error) {
	inline, _ := cmd.Flags().GetString(prefix + "pw")
	prompt, _ := cmd.Flags().GetBool(prefix + "pw-prompt")
	file, _ := cmd.Flags().GetString(prefix + "pw-file")

	count := 0
	for _, set := range []bool{inline != "", prompt, file != ""} {
		if set {
			count++
		}
	}
	switch {
	case count == 0:
		return "", fmt.Errorf("one of --%[1]spw, --%[1]spw-prompt, or --%[1]spw-file is required", prefix)
	case count > 1:
		return "", fmt.Errorf("--%[1]spw, --%[1]spw-prompt, and --%[1]spw-file are mutually exclusive", prefix)
	}

	switch {
	case inline != "":
		return inline, nil
	case prompt:
		return readPasswordInteractive()
	default:
		return readPasswordFile(file)
	}
}

// readPasswordInteractive reads one line from the controlling terminal with
// echo disabled. No terminal-prompt library appears anywhere in this
// module's dependency pack, so this toggles ECHO off directly via the
// termios ioctls golang.org/x/sys/unix already exposes (the same package
// filestore uses for flock(2)) rather than reaching for an unrelated new
// dependency for one ioctl pair.
func readPasswordInteractive() (string, error) {
	fd := int(os.Stdin.Fd())

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", fmt.Errorf("reading terminal state: %w", err)
	}
	restore := *termios
	noEcho := *termios
	noEcho.Lflag &^= unix.ECHO
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &noEcho); err != nil {
		return "", fmt.Errorf("disabling terminal echo: %w", err)
	}
	defer unix.IoctlSetTermios(fd, unix.TCSETS, &restore)

	fmt.Fprint(os.Stderr, "Password: ")
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(os.Stderr)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return "", fmt.Errorf("no password entered")
	}
	return scanner.Text(), nil
}

func readPasswordFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening password file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading password file: %w", err)
		}
		return "", fmt.Errorf("password file is empty")
	}
	return strings.TrimRight(scanner.Text(), "\r\n"), nil
}
