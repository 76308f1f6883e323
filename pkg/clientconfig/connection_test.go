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

package clientconfig

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Transport: "tcp",
		Traddr:    "192.168.1.1",
		Trsvcid:   4420,
		Hostnqn:   host1,
		Subsysnqn: subsys1,
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *ConnectionConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *ConnectionConfig) {}},
		{name: "fc without port", mutate: func(c *ConnectionConfig) { c.Transport, c.Trsvcid = "fc", 0 }},
		{name: "bad transport", mutate: func(c *ConnectionConfig) { c.Transport = "loop" }, wantErr: true},
		{name: "tcp without port", mutate: func(c *ConnectionConfig) { c.Trsvcid = 0 }, wantErr: true},
		{name: "port out of range", mutate: func(c *ConnectionConfig) { c.Trsvcid = 70000 }, wantErr: true},
		{name: "missing hostnqn", mutate: func(c *ConnectionConfig) { c.Hostnqn = "" }, wantErr: true},
		{name: "long subsysnqn", mutate: func(c *ConnectionConfig) { c.Subsysnqn = strings.Repeat("n", 224) }, wantErr: true},
		{name: "bad hostid", mutate: func(c *ConnectionConfig) { c.Hostid = "not-a-uuid" }, wantErr: true},
		{name: "negative kato", mutate: func(c *ConnectionConfig) { c.Kato = -time.Second }, wantErr: true},
		{name: "queue size too small", mutate: func(c *ConnectionConfig) { c.QueueSize = 1 }, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(c)
			err := c.Validate()
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			var parserErr *ParserError
			require.True(t, errors.As(err, &parserErr))
			assert.Equal(t, "invalid connection", parserErr.Msg)
		})
	}
}

func TestHostID(t *testing.T) {
	explicit := "7f5d4a04-03c5-4c8c-a2a9-ae7b0d38d8f1"
	embedded := "2b1d33c5-3a1e-4a8e-9d4c-1c0f5e6a7b8c"

	c := validConfig()
	c.Hostid = explicit
	id, err := c.HostID()
	require.NoError(t, err)
	assert.Equal(t, explicit, id.String())

	c = validConfig()
	c.Hostnqn = "nqn.2014-08.org.nvmexpress:uuid:" + embedded
	id, err = c.HostID()
	require.NoError(t, err)
	assert.Equal(t, embedded, id.String())

	c = validConfig()
	id, err = c.HostID()
	require.NoError(t, err)
	assert.Equal(t, uuid.NewMD5(uuid.NameSpaceURL, []byte(host1)), id)
	again, _ := c.HostID()
	assert.Equal(t, id, again, "derived host id must be stable")
}

func TestConnectIntentAdminQueue(t *testing.T) {
	c := validConfig()
	c.Kato = 30 * time.Second
	c.DisableSQFlow = true
	connect, err := c.ConnectIntent(0)
	require.NoError(t, err)

	assert.Equal(t, uint16(0), connect.QID)
	assert.Equal(t, nvme.AdminQueueDepth-1, connect.SQSize)
	assert.Equal(t, uint32(30000), connect.KATO)
	assert.Equal(t, nvme.ConnectAttrDisableSQFlow, connect.CAttr)
	assert.Equal(t, nvme.FabricsConnectDynamicCtrl, connect.Data.CntlID)
	assert.Equal(t, subsys1, connect.Data.SubsysNqn)
	assert.Equal(t, host1, connect.Data.HostNqn)

	req := nvme.Build(connect, 1)
	dwords := req.Command.Dwords()
	assert.Equal(t, uint32(0x00000000), dwords[10], "recfmt 0, qid 0")
	assert.Equal(t, uint32(0x0004001f), dwords[11], "sqsize 31, cattr disable sqflow")
	assert.Equal(t, uint32(30000), dwords[12])
	assert.Len(t, req.Data, nvme.ConnectDataSize)
}

func TestConnectIntentKeepAliveDefaults(t *testing.T) {
	c := validConfig()
	connect, err := c.ConnectIntent(0)
	require.NoError(t, err)
	assert.Equal(t, nvme.KATODefault, connect.KATO)

	c.Subsysnqn = nvme.DiscoverySubsysName
	connect, err = c.ConnectIntent(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), connect.KATO, "non persistent discovery")

	c.Persistent = true
	connect, err = c.ConnectIntent(0)
	require.NoError(t, err)
	assert.Equal(t, nvme.KATODefault, connect.KATO)
}

func TestConnectIntentIOQueue(t *testing.T) {
	c := validConfig()
	c.Kato = 30 * time.Second
	connect, err := c.ConnectIntentFor(3, 0x21)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), connect.QID)
	assert.Equal(t, uint16(DefaultQueueSize-1), connect.SQSize)
	assert.Equal(t, uint32(0), connect.KATO, "keep alive only on the admin queue")
	assert.Equal(t, uint16(0x21), connect.Data.CntlID)

	c.QueueSize = 64
	connect, err = c.ConnectIntentFor(1, 0x21)
	require.NoError(t, err)
	assert.Equal(t, uint16(63), connect.SQSize)
	dwords := nvme.Build(connect, 9).Command.Dwords()
	assert.Equal(t, uint32(0x00010000), dwords[10])
}

func TestConnectIntentBadHostID(t *testing.T) {
	c := validConfig()
	c.Hostid = "xyz"
	_, err := c.ConnectIntent(0)
	var parserErr *ParserError
	require.True(t, errors.As(err, &parserErr))
	assert.Equal(t, "bad hostid", parserErr.Msg)

	c = validConfig()
	c.Hostnqn = strings.Repeat("h", nvme.NQNSize)
	_, err = c.ConnectIntent(0)
	require.True(t, errors.As(err, &parserErr))
	assert.Equal(t, "bad nqn", parserErr.Msg)
}

func TestConnectArgs(t *testing.T) {
	c := validConfig()
	c.Hostid = "7f5d4a04-03c5-4c8c-a2a9-ae7b0d38d8f1"
	c.Kato = 30 * time.Second
	c.NrIOQueues = 4
	c.QueueSize = 64
	c.Duplicate = true
	c.DHChapHostSecret = "DHHC-1:00:aGVsbG8="
	c.DHChapCtrlSecret = "DHHC-1:00:d29ybGQ="
	assert.Equal(t, []string{
		"-t", "tcp", "-a", "192.168.1.1", "-s", "4420", "-q", host1,
		"-I", "7f5d4a04-03c5-4c8c-a2a9-ae7b0d38d8f1", "-n", subsys1,
		"-k", "30", "-i", "4", "-Q", "64", "-D",
		"-S", "DHHC-1:00:aGVsbG8=", "-C", "DHHC-1:00:d29ybGQ=",
	}, c.ConnectArgs())
}

func TestDiscoverArgs(t *testing.T) {
	c := validConfig()
	c.Trsvcid = 8009
	c.HostTraddr = "192.168.1.100"
	assert.Equal(t, []string{"-t", "tcp", "-a", "192.168.1.1", "-s", "8009", "-q", host1, "-w", "192.168.1.100"}, c.DiscoverArgs())

	c.Persistent = true
	c.Kato = 30 * time.Second
	assert.Equal(t, []string{"-t", "tcp", "-a", "192.168.1.1", "-s", "8009", "-q", host1, "-w", "192.168.1.100", "-p", "-k", "30"}, c.DiscoverArgs())
}

func TestToOptions(t *testing.T) {
	testCases := []struct {
		name     string
		config   *ConnectionConfig
		expected string
	}{
		{
			name:     "minimal",
			config:   validConfig(),
			expected: "nqn=" + subsys1 + ",transport=tcp,traddr=192.168.1.1,trsvcid=4420,hostnqn=" + host1,
		},
		{
			name: "discovery with keep alive",
			config: &ConnectionConfig{Transport: "tcp", Traddr: "192.168.1.2", Trsvcid: 8009, Hostnqn: host1,
				Subsysnqn: nvme.DiscoverySubsysName, Kato: 30 * time.Second, Persistent: true},
			expected: "nqn=nqn.2014-08.org.nvmexpress.discovery,transport=tcp,traddr=192.168.1.2,trsvcid=8009,hostnqn=" + host1 + ",keep_alive_tmo=30",
		},
		{
			name: "all options",
			config: &ConnectionConfig{Transport: "rdma", Traddr: "10.0.0.1", Trsvcid: 4420, Hostnqn: host2, Subsysnqn: subsys2,
				HostTraddr: "10.0.0.2", Hostid: "7f5d4a04-03c5-4c8c-a2a9-ae7b0d38d8f1", NrIOQueues: 2, QueueSize: 32,
				Duplicate: true, DisableSQFlow: true, DHChapHostSecret: "a", DHChapCtrlSecret: "b"},
			expected: "nqn=" + subsys2 + ",transport=rdma,traddr=10.0.0.1,trsvcid=4420,hostnqn=" + host2 +
				",host_traddr=10.0.0.2,hostid=7f5d4a04-03c5-4c8c-a2a9-ae7b0d38d8f1,nr_io_queues=2,queue_size=32" +
				",duplicate_connect,disable_sqflow,dhchap_secret=a,dhchap_ctrl_secret=b",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.config.ToOptions())
		})
	}
}

func TestKey(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.Persistent = true
	assert.Equal(t, a.Key(), b.Key())
	b.Traddr = "192.168.1.9"
	assert.NotEqual(t, a.Key(), b.Key())
}
