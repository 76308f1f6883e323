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
	"sync"
)

type call struct {
	stdin []byte
	name  string
	args  []string
}

// fakeRunner answers nvme-cli invocations by verb. Queued outputs are
// consumed in order, the last one keeps answering.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []call
	outputs map[string][]*Output
	err     error
	// block makes Run wait for the channel or the context
	block chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: make(map[string][]*Output)}
}

func (f *fakeRunner) answer(verb string, outs ...*Output) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[verb] = append(f.outputs[verb], outs...)
}

func (f *fakeRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) (*Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{stdin: stdin, name: name, args: args})
	var out *Output
	if len(args) > 0 {
		outs := f.outputs[args[0]]
		if len(outs) > 0 {
			out = outs[0]
			if len(outs) > 1 {
				f.outputs[args[0]] = outs[1:]
			}
		}
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if out == nil {
		out = &Output{}
	}
	return out, nil
}

func (f *fakeRunner) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call{}, f.calls...)
}
