// Copyright (c) 2026 wsqueeze authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/nilcompute/wsqueeze/internal/cmd"
	wsqerrors "github.com/nilcompute/wsqueeze/internal/errors"
)

var Version = "dev"

func main() {
	cmd.Version = Version
	os.Exit(run(cmd.Execute, os.Stderr))
}

// run executes the command tree and maps its outcome to a process exit
// code, keeping main itself untestable-small.
func run(execute func() error, stderr io.Writer) int {
	err := execute()
	if err == nil {
		return 0
	}
	if cmd.IsInterrupted(err) || cmd.IsCancellation(err) {
		return cmd.InterruptExitCode
	}
	fmt.Fprintf(stderr, "wsqueeze: %s: %v\n", wsqerrors.Kind(err), err)
	return 1
}
