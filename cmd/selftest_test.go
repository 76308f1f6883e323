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

package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbitslabs/nvmf-compliance/pkg/mockctrl"
)

func TestSelftest(t *testing.T) {
	tests := []struct {
		name string
		cfg  mockctrl.Config
	}{
		{
			name: "with namespace",
			cfg: mockctrl.Config{
				SubsysNQN:  "nqn.2016-01.com.lightbitslabs:uuid:selftest",
				Namespaces: []mockctrl.NamespaceConfig{{ID: 1, BlockSize: 512, Blocks: 2048}},
			},
		},
		{
			name: "without namespaces",
			cfg:  mockctrl.Config{SubsysNQN: "nqn.2016-01.com.lightbitslabs:uuid:empty"},
		},
		{
			name: "single io queue",
			cfg: mockctrl.Config{
				SubsysNQN:   "nqn.2016-01.com.lightbitslabs:uuid:selftest",
				MaxIOQueues: 2,
				AERL:        1,
				Namespaces:  []mockctrl.NamespaceConfig{{ID: 7, BlockSize: 4096, Blocks: 16}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := runSelftest(context.Background(), tt.cfg)
			require.NoError(t, err, results)
			assert.Len(t, results, len(selftestChecks()))
			for _, r := range results {
				assert.True(t, r.Passed, "%s: %s", r.Name, r.Detail)
			}
		})
	}
}

func TestSelftestInvalidConfig(t *testing.T) {
	_, err := runSelftest(context.Background(), mockctrl.Config{})
	assert.Error(t, err)
}

func TestSelftestStopsAtFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := runSelftest(ctx, mockctrl.Config{SubsysNQN: "nqn.2016-01.com.lightbitslabs:uuid:selftest"})
	assert.ErrorIs(t, err, errCheckFailed)
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
}
