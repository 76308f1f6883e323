// Copyright 2016--2022 Lightbits Labs Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// you may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nvmeclient

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// DefaultBinary is the nvme-cli executable looked up in PATH.
const DefaultBinary = "nvme"

// Output is what a finished nvme-cli invocation left behind.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// diagnostic returns the text nvme-cli reported, stderr first.
func (o *Output) diagnostic() string {
	if text := strings.TrimSpace(string(o.Stderr)); len(text) > 0 {
		return text
	}
	return strings.TrimSpace(string(o.Stdout))
}

// Runner runs one nvme-cli invocation. A non zero exit code is not an
// error, only failing to run the binary or an expired context is.
type Runner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) (*Output, error)
}

// ExecRunner runs nvme-cli as a child process in its own process group,
// killing the whole group when the context is done.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for the pipes after the kill.
	WaitDelay time.Duration
}

func (r *ExecRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) (*Output, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = time.Second
	}

	logrus.Debugf("executing: %s %s", name, strings.Join(args, " "))
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, errors.Wrapf(ctxErr, "%s interrupted", name)
	}
	out := &Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, errors.Wrapf(err, "failed to run %s", name)
		}
		out.ExitCode = exitErr.ExitCode()
	}
	return out, nil
}
