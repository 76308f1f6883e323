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

package hostapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lightbitslabs/nvmf-compliance/pkg/metrics"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pending struct {
	polls int
	rsp   *nvme.Response
}

// fakeExecutor completes a command after a fixed number of polls.
type fakeExecutor struct {
	mu        sync.Mutex
	next      Handle
	polls     int
	status    nvme.StatusField
	submitErr error
	pollErr   error
	never     bool
	table     map[Handle]*pending
	cancelled []Handle
}

func newFakeExecutor(polls int) *fakeExecutor {
	return &fakeExecutor{polls: polls, table: make(map[Handle]*pending)}
}

func (f *fakeExecutor) Submit(ctx context.Context, req *nvme.Request) (Handle, error) {
	if f.submitErr != nil {
		return 0, f.submitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	cqe := nvme.NewCompletion(req.Command.CommandID, 0, f.status)
	cqe.Result.SetU32(0xcafe)
	f.table[f.next] = &pending{
		polls: f.polls,
		rsp:   &nvme.Response{DecodeResult: nvme.ResultFromStatus(f.status), Completion: *cqe},
	}
	return f.next, nil
}

func (f *fakeExecutor) Poll(h Handle) (*nvme.Response, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return nil, false, f.pollErr
	}
	p, ok := f.table[h]
	if !ok {
		return nil, false, ErrUnknownHandle
	}
	if f.never || p.polls > 0 {
		p.polls--
		return nil, false, nil
	}
	delete(f.table, h)
	return p.rsp, true, nil
}

func (f *fakeExecutor) Cancel(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.table[h]; !ok {
		return ErrUnknownHandle
	}
	delete(f.table, h)
	f.cancelled = append(f.cancelled, h)
	return nil
}

func TestExecuteCompletes(t *testing.T) {
	exec := newFakeExecutor(3)
	rsp, err := ExecuteIntent(context.Background(), exec, nvme.KeepAlive{}, 7)
	require.NoError(t, err)
	assert.Equal(t, nvme.ResultSuccess, rsp.Kind)
	assert.Equal(t, uint16(7), rsp.Completion.CommandID)
	assert.Equal(t, uint32(0xcafe), rsp.Result())
	assert.Empty(t, exec.table)
}

func TestExecuteStatusIsNotAnError(t *testing.T) {
	exec := newFakeExecutor(0)
	exec.status = nvme.NewStatusField(nvme.SCTGeneric, nvme.SCInvalidField, true)
	rsp, err := ExecuteIntent(context.Background(), exec, nvme.IdentifyController(), 1)
	require.NoError(t, err)
	assert.Equal(t, nvme.ResultProtocolError, rsp.Kind)
	assert.ErrorIs(t, rsp.Err(), &nvme.StatusError{Status: nvme.StatusField(0x0002)})
}

func TestExecuteSubmitError(t *testing.T) {
	exec := newFakeExecutor(0)
	exec.submitErr = errors.New("no such device")
	_, err := ExecuteIntent(context.Background(), exec, nvme.KeepAlive{}, 1)
	assert.ErrorIs(t, err, exec.submitErr)
}

func TestExecutePollError(t *testing.T) {
	exec := newFakeExecutor(0)
	exec.pollErr = errors.New("transport down")
	_, err := ExecuteIntent(context.Background(), exec, nvme.KeepAlive{}, 1)
	assert.ErrorIs(t, err, exec.pollErr)
}

func TestExecuteCancelsOnContextExpiry(t *testing.T) {
	exec := newFakeExecutor(0)
	exec.never = true
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ExecuteIntent(ctx, exec, nvme.AsyncEventRequest{}, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []Handle{1}, exec.cancelled)
}

func TestExecuteGivesUp(t *testing.T) {
	defer func(attempts uint, delay time.Duration) {
		MaxPollAttempts, PollInterval = attempts, delay
	}(MaxPollAttempts, PollInterval)
	MaxPollAttempts, PollInterval = 3, time.Microsecond

	exec := newFakeExecutor(0)
	exec.never = true
	_, err := ExecuteIntent(context.Background(), exec, nvme.KeepAlive{}, 1)
	assert.ErrorIs(t, err, ErrNotCompleted)
	assert.Equal(t, []Handle{1}, exec.cancelled)
}

func TestHandleString(t *testing.T) {
	assert.Equal(t, "handle-12", Handle(12).String())
}

func TestInstrument(t *testing.T) {
	fake := newFakeExecutor(1)
	exec := Instrument("instrument-test", fake)

	_, err := ExecuteIntent(context.Background(), exec, nvme.KeepAlive{}, 1)
	require.NoError(t, err)

	fake.status = nvme.NewStatusField(nvme.SCTGeneric, nvme.SCInvalidField, true)
	_, err = ExecuteIntent(context.Background(), exec, nvme.KeepAlive{}, 2)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Metrics.CommandsTotal.WithLabelValues("instrument-test", "nvme_admin_keep_alive", "SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Metrics.CommandsTotal.WithLabelValues("instrument-test", "nvme_admin_keep_alive", "INVALID_FIELD")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Metrics.InflightCommands.WithLabelValues("instrument-test")))
}

func TestInstrumentCancel(t *testing.T) {
	fake := newFakeExecutor(0)
	fake.never = true
	exec := Instrument("instrument-cancel-test", fake)

	h, err := exec.Submit(context.Background(), nvme.Build(nvme.AsyncEventRequest{}, 1))
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Metrics.InflightCommands.WithLabelValues("instrument-cancel-test")))
	require.NoError(t, exec.Cancel(h))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Metrics.InflightCommands.WithLabelValues("instrument-cancel-test")))
	assert.ErrorIs(t, exec.Cancel(h), ErrUnknownHandle)
}
