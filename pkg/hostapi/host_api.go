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
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
	"github.com/sirupsen/logrus"
)

// Handle identifies a submitted command until its completion was polled.
type Handle uint64

func (h Handle) String() string {
	return fmt.Sprintf("handle-%d", uint64(h))
}

var (
	// ErrUnknownHandle is returned for handles that were never issued, were
	// cancelled or whose completion was already consumed.
	ErrUnknownHandle = errors.New("unknown handle")
	// ErrNotCompleted is returned by Execute when polling gave up before the
	// command completed.
	ErrNotCompleted = errors.New("command did not complete")

	errPending = errors.New("command pending")
)

// Executor takes an encoded request to a controller and brings back the
// completion. Submit must not block on the controller, Poll reports done
// once and forgets the handle.
type Executor interface {
	Submit(ctx context.Context, req *nvme.Request) (Handle, error)
	Poll(h Handle) (*nvme.Response, bool, error)
	Cancel(h Handle) error
}

// Poll intervals used by Execute. The interval doubles up to the maximum.
var (
	PollInterval    = time.Millisecond
	MaxPollInterval = 100 * time.Millisecond
	MaxPollAttempts = uint(100000)
)

// Execute submits req and polls until it completes. On context expiry the
// command is cancelled and the context error returned.
func Execute(ctx context.Context, exec Executor, req *nvme.Request) (*nvme.Response, error) {
	h, err := exec.Submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", req, err)
	}

	var rsp *nvme.Response
	err = retry.Do(func() error {
		r, done, err := exec.Poll(h)
		if err != nil {
			return err
		}
		if !done {
			return errPending
		}
		rsp = r
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(MaxPollAttempts),
		retry.Delay(PollInterval),
		retry.MaxDelay(MaxPollInterval),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errPending) }),
	)
	if err == nil {
		return rsp, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		cancel(exec, h)
		return nil, fmt.Errorf("%s: %w", req, ctxErr)
	}
	if errors.Is(err, errPending) {
		cancel(exec, h)
		return nil, fmt.Errorf("%s: %w", req, ErrNotCompleted)
	}
	return nil, err
}

func cancel(exec Executor, h Handle) {
	if err := exec.Cancel(h); err != nil && !errors.Is(err, ErrUnknownHandle) {
		logrus.WithError(err).Warnf("failed to cancel %s", h)
	}
}

// ExecuteIntent builds intent with command id cid and executes it.
func ExecuteIntent(ctx context.Context, exec Executor, intent nvme.Intent, cid uint16) (*nvme.Response, error) {
	return Execute(ctx, exec, nvme.Build(intent, cid))
}
