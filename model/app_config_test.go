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

package model

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbitslabs/nvmf-compliance/pkg/mockctrl"
)

func loadYAML(t *testing.T, content string) (*AppConfig, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(content)))
	return Load(v)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadYAML(t, "")
	require.NoError(t, err)
	assert.Equal(t, "nvme", cfg.Binary)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 5*time.Second, cfg.ReconnectInterval)
	assert.Equal(t, uint(3), cfg.ConnectAttempts)
	assert.Empty(t, cfg.Debug.Endpoint)
	if diff := cmp.Diff([]mockctrl.NamespaceConfig{{ID: 1, BlockSize: 512, Blocks: 2048}}, cfg.Mock.Namespaces); diff != "" {
		t.Errorf("namespaces mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := loadYAML(t, `
binary: /usr/local/sbin/nvme
timeout: 2m
logging:
  level: debug
  maxAge: 72h
debug:
  endpoint: localhost:8090
  enablepprof: false
mock:
  subsysnqn: nqn.2016-01.com.example:test
  aerl: 7
  namespaces:
  - id: 2
    blockSize: 4096
    blocks: 16
`)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/sbin/nvme", cfg.Binary)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 72*time.Hour, cfg.Logging.MaxAge)
	assert.Equal(t, "localhost:8090", cfg.Debug.Endpoint)
	assert.False(t, cfg.Debug.EnablePprof)
	assert.True(t, cfg.Debug.Metrics)
	assert.Equal(t, "nqn.2016-01.com.example:test", cfg.Mock.SubsysNQN)
	assert.Equal(t, uint8(7), cfg.Mock.AERL)
	if diff := cmp.Diff([]mockctrl.NamespaceConfig{{ID: 2, BlockSize: 4096, Blocks: 16}}, cfg.Mock.Namespaces); diff != "" {
		t.Errorf("namespaces mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "zero timeout", content: "timeout: 0s"},
		{name: "bad duration", content: "reconnectInterval: soon"},
		{name: "no attempts", content: "connectAttempts: 0"},
		{name: "bad level", content: "logging:\n  level: loud"},
		{name: "bad endpoint", content: "debug:\n  endpoint: nowhere"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadYAML(t, tc.content)
			assert.Error(t, err)
		})
	}
}
