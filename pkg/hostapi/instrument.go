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
	"sync"
	"time"

	"github.com/lightbitslabs/nvmf-compliance/pkg/metrics"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
)

type submission struct {
	opcode string
	start  time.Time
}

type instrumented struct {
	name     string
	exec     Executor
	mu       sync.Mutex
	inflight map[Handle]submission
}

// Instrument wraps exec so that every command it runs is counted in the
// nvmf_* metrics under the executor label name.
func Instrument(name string, exec Executor) Executor {
	return &instrumented{
		name:     name,
		exec:     exec,
		inflight: make(map[Handle]submission),
	}
}

func (i *instrumented) Submit(ctx context.Context, req *nvme.Request) (Handle, error) {
	h, err := i.exec.Submit(ctx, req)
	if err != nil {
		return h, err
	}
	i.mu.Lock()
	i.inflight[h] = submission{
		opcode: nvme.OpcodeName(req.CommandSet, req.Command.Opcode, req.Command.NSID),
		start:  time.Now(),
	}
	i.mu.Unlock()
	metrics.Metrics.InflightCommands.WithLabelValues(i.name).Inc()
	return h, nil
}

func (i *instrumented) Poll(h Handle) (*nvme.Response, bool, error) {
	rsp, done, err := i.exec.Poll(h)
	if !done && err == nil {
		return rsp, done, err
	}
	sub, ok := i.forget(h)
	if !ok {
		return rsp, done, err
	}
	if done && rsp != nil {
		metrics.Metrics.CommandsTotal.WithLabelValues(i.name, sub.opcode, statusLabel(rsp)).Inc()
		metrics.Metrics.CommandDurationSeconds.WithLabelValues(i.name, sub.opcode).Observe(time.Since(sub.start).Seconds())
		if rsp.Kind == nvme.ResultUnparseable {
			metrics.Metrics.StatusDecodeFailuresTotal.WithLabelValues(i.name).Inc()
		}
	}
	return rsp, done, err
}

func (i *instrumented) Cancel(h Handle) error {
	i.forget(h)
	return i.exec.Cancel(h)
}

func (i *instrumented) forget(h Handle) (submission, bool) {
	i.mu.Lock()
	sub, ok := i.inflight[h]
	delete(i.inflight, h)
	i.mu.Unlock()
	if ok {
		metrics.Metrics.InflightCommands.WithLabelValues(i.name).Dec()
	}
	return sub, ok
}

func statusLabel(rsp *nvme.Response) string {
	switch rsp.Kind {
	case nvme.ResultSuccess:
		return "SUCCESS"
	case nvme.ResultProtocolError:
		return nvme.StatusName(rsp.Status)
	default:
		return "UNPARSEABLE"
	}
}
