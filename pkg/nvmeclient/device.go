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
	"context"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/lightbitslabs/nvmf-compliance/pkg/hostapi"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
	"github.com/sirupsen/logrus"
)

type submission struct {
	req    *nvme.Request
	done   chan struct{}
	rsp    *nvme.Response
	err    error
	cancel context.CancelFunc
}

// DeviceExecutor submits passthru commands to one controller through
// nvme-cli. Every submission runs in its own child process.
type DeviceExecutor struct {
	client *Client
	device string

	mu         sync.Mutex
	lastHandle hostapi.Handle
	inflight   map[hostapi.Handle]*submission
}

var _ hostapi.Executor = &DeviceExecutor{}

// Executor returns an executor for device, a controller character device
// (/dev/nvme0) or a namespace block device (/dev/nvme0n1).
func (c *Client) Executor(device string) (*DeviceExecutor, error) {
	if !passthruDeviceRegex.MatchString(device) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDevice, device)
	}
	return &DeviceExecutor{
		client:   c,
		device:   device,
		inflight: make(map[hostapi.Handle]*submission),
	}, nil
}

func (e *DeviceExecutor) Device() string {
	return e.device
}

func (e *DeviceExecutor) Submit(ctx context.Context, req *nvme.Request) (hostapi.Handle, error) {
	args, err := PassthruArgs(e.device, req)
	if err != nil {
		return 0, err
	}
	var stdin []byte
	if req.IsWrite() {
		stdin = req.Data
	}

	procCtx, cancel := context.WithCancel(ctx)
	s := &submission{req: req, done: make(chan struct{}), cancel: cancel}

	e.mu.Lock()
	e.lastHandle++
	h := e.lastHandle
	e.inflight[h] = s
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"device": e.device,
		"handle": h,
		"data":   humanize.IBytes(uint64(dataLen(req))),
	}).Debugf("submitting %s", req)

	go func() {
		defer close(s.done)
		defer cancel()
		out, err := e.client.runner.Run(procCtx, stdin, e.client.binary, args...)
		if err != nil {
			s.err = err
			return
		}
		s.rsp = decodeOutput(req, out)
	}()
	return h, nil
}

func (e *DeviceExecutor) Poll(h hostapi.Handle) (*nvme.Response, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.inflight[h]
	if !ok {
		return nil, false, ErrUnknownHandle
	}
	select {
	case <-s.done:
	default:
		return nil, false, nil
	}
	delete(e.inflight, h)
	return s.rsp, true, s.err
}

// Cancel kills the process group of the submission and forgets it.
func (e *DeviceExecutor) Cancel(h hostapi.Handle) error {
	e.mu.Lock()
	s, ok := e.inflight[h]
	delete(e.inflight, h)
	e.mu.Unlock()
	if !ok {
		return ErrUnknownHandle
	}
	s.cancel()
	return nil
}

// Inflight returns the number of submissions not polled yet.
func (e *DeviceExecutor) Inflight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inflight)
}

func readsData(req *nvme.Request) bool {
	return dataLen(req) > 0 && req.Direction != nvme.DataToController
}

// decodeOutput builds the completion of req from what nvme-cli printed.
// nvme-cli does not print the CQE, only the status and dword 0 are known.
func decodeOutput(req *nvme.Request, out *Output) *nvme.Response {
	rsp := &nvme.Response{}
	if out.ExitCode != 0 {
		rsp.DecodeResult = nvme.DecodeStatusText(out.ExitCode, out.diagnostic())
		rsp.Completion = *nvme.NewCompletion(req.CommandID(), 0, rsp.CompletionStatus())
		return rsp
	}

	rsp.DecodeResult = nvme.DecodeResult{Kind: nvme.ResultSuccess}
	rsp.Completion = *nvme.NewCompletion(req.CommandID(), 0, 0)
	reading := readsData(req)
	result, ok := nvme.ParseCommandResult(string(out.Stderr))
	if !ok && !reading {
		result, _ = nvme.ParseCommandResult(string(out.Stdout))
	}
	rsp.Completion.Result.SetU64(result)
	req.Result = uint32(result)
	if reading {
		rsp.Data = out.Stdout
		if req.Data != nil {
			copy(req.Data, out.Stdout)
		}
	}
	return rsp
}
