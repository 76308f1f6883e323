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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lightbitslabs/nvmf-compliance/pkg/clientconfig"
	"github.com/lightbitslabs/nvmf-compliance/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hostnqn  = "nqn.2014-08.org.nvmexpress:uuid:host-1"
	subsysA  = "nqn.2016-01.com.lightbitslabs:uuid:subsys-a"
	subsysB  = "nqn.2016-01.com.lightbitslabs:uuid:subsys-b"
	alreadyM = "Failed to write to /dev/nvme-fabrics: Operation already in progress\n"
)

func newTestClient() (*fakeRunner, *Client) {
	runner := newFakeRunner()
	client := New("/usr/sbin/nvme", runner)
	client.ConnectAttempts = 3
	client.ConnectDelay = time.Millisecond
	return runner, client
}

func target(subsysnqn string) *clientconfig.ConnectionConfig {
	return &clientconfig.ConnectionConfig{
		Transport: "tcp",
		Traddr:    "10.0.0.1",
		Trsvcid:   4420,
		Subsysnqn: subsysnqn,
		Hostnqn:   hostnqn,
	}
}

func readTestdata(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestConnect(t *testing.T) {
	runner, client := newTestClient()
	runner.answer("connect", &Output{Stdout: []byte("device: nvme3\n")})
	success := metrics.Metrics.ConnectAttemptsTotal.WithLabelValues("tcp", connectSuccess)
	before := testutil.ToFloat64(success)

	device, err := client.Connect(context.Background(), target(subsysA))
	require.NoError(t, err)
	assert.Equal(t, "/dev/nvme3", device)
	assert.Equal(t, before+1, testutil.ToFloat64(success))

	calls := runner.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "/usr/sbin/nvme", calls[0].name)
	want := []string{"connect", "-t", "tcp", "-a", "10.0.0.1", "-s", "4420", "-q", hostnqn, "-n", subsysA}
	if diff := cmp.Diff(want, calls[0].args); diff != "" {
		t.Errorf("connect args mismatch (-want +got):\n%s", diff)
	}
}

func TestConnectJSONDevice(t *testing.T) {
	runner, client := newTestClient()
	runner.answer("connect", &Output{Stdout: []byte(`{"device" : "nvme12"}`)})
	device, err := client.Connect(context.Background(), target(subsysA))
	require.NoError(t, err)
	assert.Equal(t, "/dev/nvme12", device)
}

func TestConnectFindsDeviceOfSilentConnect(t *testing.T) {
	runner, client := newTestClient()
	runner.answer("connect", &Output{})
	runner.answer("list-subsys", &Output{Stdout: readTestdata(t, "list-subsys.json")})
	device, err := client.Connect(context.Background(), target(subsysA))
	require.NoError(t, err)
	assert.Equal(t, "/dev/nvme2", device)
}

func TestConnectAlreadyConnected(t *testing.T) {
	runner, client := newTestClient()
	runner.answer("connect", &Output{ExitCode: 1, Stderr: []byte(alreadyM)})
	_, err := client.Connect(context.Background(), target(subsysA))
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Len(t, runner.recorded(), 1)
}

func TestConnectRetries(t *testing.T) {
	runner, client := newTestClient()
	runner.answer("connect",
		&Output{ExitCode: 1, Stderr: []byte("Failed to write to /dev/nvme-fabrics: Connection refused\n")},
		&Output{ExitCode: 1, Stderr: []byte("Failed to write to /dev/nvme-fabrics: Connection refused\n")},
		&Output{Stdout: []byte("device: nvme1\n")},
	)
	device, err := client.Connect(context.Background(), target(subsysA))
	require.NoError(t, err)
	assert.Equal(t, "/dev/nvme1", device)
	assert.Len(t, runner.recorded(), 3)
}

func TestConnectGivesUp(t *testing.T) {
	runner, client := newTestClient()
	runner.answer("connect", &Output{ExitCode: 142, Stderr: []byte("Failed to write to /dev/nvme-fabrics: Input/output error\n")})
	failed := metrics.Metrics.ConnectAttemptsTotal.WithLabelValues("tcp", connectFailed)
	before := testutil.ToFloat64(failed)

	_, err := client.Connect(context.Background(), target(subsysA))
	var clientErr *NvmeClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, 142, clientErr.Status)
	assert.Contains(t, clientErr.Error(), "Input/output error")
	assert.Len(t, runner.recorded(), 3)
	assert.Equal(t, before+1, testutil.ToFloat64(failed))
}

func TestConnectInvalidConfig(t *testing.T) {
	runner, client := newTestClient()
	cfg := target(subsysA)
	cfg.Transport = "loop"
	_, err := client.Connect(context.Background(), cfg)
	var parserErr *clientconfig.ParserError
	assert.ErrorAs(t, err, &parserErr)
	assert.Empty(t, runner.recorded())
}

func TestDisconnect(t *testing.T) {
	tests := []struct {
		name   string
		target string
		out    *Output
		want   []string
		count  int
	}{
		{
			name:   "by nqn",
			target: subsysA,
			out:    &Output{Stdout: []byte("NQN:" + subsysA + " disconnected 2 controller(s)\n")},
			want:   []string{"disconnect", "-n", subsysA},
			count:  2,
		},
		{
			name:   "by device",
			target: "/dev/nvme4",
			out:    &Output{},
			want:   []string{"disconnect", "-d", "/dev/nvme4"},
			count:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, client := newTestClient()
			runner.answer("disconnect", tt.out)
			count, err := client.Disconnect(context.Background(), tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.count, count)
			calls := runner.recorded()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].args)
		})
	}
}

func TestDisconnectRejectsDevices(t *testing.T) {
	runner, client := newTestClient()
	for _, device := range []string{"/dev/nvme0n1", "/dev/sda", "/dev/nvme"} {
		_, err := client.Disconnect(context.Background(), device)
		assert.ErrorIs(t, err, ErrInvalidDevice, device)
	}
	_, err := client.Disconnect(context.Background(), "")
	assert.Error(t, err)
	assert.Empty(t, runner.recorded())
}

func TestDisconnectFailure(t *testing.T) {
	runner, client := newTestClient()
	runner.answer("disconnect", &Output{ExitCode: 1, Stderr: []byte("Failed to disconnect by device name: /dev/nvme9\n")})
	_, err := client.Disconnect(context.Background(), "/dev/nvme9")
	var clientErr *NvmeClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, 1, clientErr.Status)
}

func TestDiscover(t *testing.T) {
	runner, client := newTestClient()
	runner.answer("discover", &Output{Stdout: readTestdata(t, "discover.json")})
	cfg := target("nqn.2014-08.org.nvmexpress.discovery")
	cfg.Trsvcid = 8009

	res, err := client.Discover(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), res.GenCtr)
	require.Len(t, res.Records, 3)
	assert.False(t, res.Records[0].IsIOSubsystem())
	assert.True(t, res.Records[1].IsIOSubsystem())
	assert.Equal(t, subsysB, res.Records[2].Subnqn)

	calls := runner.recorded()
	require.Len(t, calls, 1)
	want := []string{"discover", "-t", "tcp", "-a", "10.0.0.1", "-s", "8009", "-q", hostnqn, "-o", "json"}
	assert.Equal(t, want, calls[0].args)
}

func TestDiscoverFailure(t *testing.T) {
	runner, client := newTestClient()
	runner.answer("discover", &Output{ExitCode: 1, Stderr: []byte("failed to add controller, error connection refused\n")})
	_, err := client.Discover(context.Background(), target("nqn.2014-08.org.nvmexpress.discovery"))
	var clientErr *NvmeClientError
	assert.ErrorAs(t, err, &clientErr)

	runner.answer("discover", &Output{Stdout: []byte("Discovery Log Number of Records 0")})
	_, err = client.Discover(context.Background(), target("nqn.2014-08.org.nvmexpress.discovery"))
	assert.Error(t, err)
}

func TestDiscoveryEntryConnectionConfig(t *testing.T) {
	base := target("nqn.2014-08.org.nvmexpress.discovery")
	base.Persistent = true
	base.NrIOQueues = 4
	entry := DiscoveryEntry{TrType: "tcp", Trsvcid: "4421", Subnqn: subsysB, Traddr: "10.0.0.2", SubType: "nvme subsystem"}

	cfg, err := entry.ConnectionConfig(base)
	require.NoError(t, err)
	want := &clientconfig.ConnectionConfig{
		Transport:  "tcp",
		Traddr:     "10.0.0.2",
		Trsvcid:    4421,
		Subsysnqn:  subsysB,
		Hostnqn:    hostnqn,
		NrIOQueues: 4,
	}
	assert.Equal(t, want, cfg)
	assert.True(t, base.Persistent)

	entry.Trsvcid = "port"
	_, err = entry.ConnectionConfig(base)
	assert.Error(t, err)
}

func TestConnectAll(t *testing.T) {
	runner, client := newTestClient()
	runner.answer("discover", &Output{Stdout: readTestdata(t, "discover.json")})
	runner.answer("connect",
		&Output{ExitCode: 1, Stderr: []byte(alreadyM)},
		&Output{Stdout: []byte("device: nvme5\n")},
	)
	devices, err := client.ConnectAll(context.Background(), target("nqn.2014-08.org.nvmexpress.discovery"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/nvme5"}, devices)

	var connected []string
	for _, c := range runner.recorded() {
		if c.args[0] == "connect" {
			connected = append(connected, c.args[len(c.args)-1])
		}
	}
	assert.Equal(t, []string{subsysA, subsysB}, connected)
}

func TestListSubsystems(t *testing.T) {
	tests := []struct {
		name string
		file string
		want []Subsystem
	}{
		{
			name: "per host",
			file: "list-subsys.json",
			want: []Subsystem{{
				HostNQN: hostnqn,
				Name:    "nvme-subsys0",
				NQN:     subsysA,
				Paths: []SubsystemPath{
					{Name: "nvme0", Transport: "tcp", Address: "traddr=10.0.0.1,trsvcid=4420,src_addr=10.0.0.100", State: "connecting"},
					{Name: "nvme2", Transport: "tcp", Address: "traddr=10.0.0.2,trsvcid=4420,src_addr=10.0.0.100", State: "live"},
				},
			}},
		},
		{
			name: "legacy",
			file: "list-subsys-legacy.json",
			want: []Subsystem{{
				Name: "nvme-subsys1",
				NQN:  subsysB,
				Paths: []SubsystemPath{
					{Name: "nvme1", Transport: "tcp", Address: "traddr=10.0.0.2 trsvcid=4420", State: "live"},
				},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, client := newTestClient()
			runner.answer("list-subsys", &Output{Stdout: readTestdata(t, tt.file)})
			got, err := client.ListSubsystems(context.Background())
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ListSubsystems() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeviceForNQN(t *testing.T) {
	runner, client := newTestClient()
	runner.answer("list-subsys", &Output{Stdout: readTestdata(t, "list-subsys.json")})

	device, err := client.DeviceForNQN(context.Background(), subsysA)
	require.NoError(t, err)
	assert.Equal(t, "/dev/nvme2", device)

	_, err = client.DeviceForNQN(context.Background(), subsysB)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func writeController(t *testing.T, root, name string, attrs map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	for attr, value := range attrs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, attr), []byte(value+"\n"), 0644))
	}
}

func TestFindConnected(t *testing.T) {
	root := t.TempDir()
	writeController(t, root, "nvme0", map[string]string{
		"transport": "tcp",
		"subsysnqn": subsysA,
		"hostnqn":   hostnqn,
		"address":   "traddr=10.0.0.1,trsvcid=4420,src_addr=10.0.0.100",
		"state":     "live",
	})
	writeController(t, root, "nvme1", map[string]string{
		"transport": "tcp",
		"subsysnqn": subsysA,
		"hostnqn":   "nqn.2014-08.org.nvmexpress:uuid:host-2",
		"address":   "traddr=10.0.0.1,trsvcid=4420",
	})
	writeController(t, root, "nvme2", map[string]string{
		"transport": "pcie",
		"subsysnqn": subsysA,
		"hostnqn":   hostnqn,
		"address":   "0000:00:04.0",
	})
	_, client := newTestClient()
	client.SysfsGlob = filepath.Join(root, "nvme[0-9]*")

	ctrls, err := client.FindConnected(target(subsysA))
	require.NoError(t, err)
	require.Len(t, ctrls, 1)
	assert.Equal(t, "/dev/nvme0", ctrls[0].Device)
	assert.Equal(t, "live", ctrls[0].State)

	anyHost := target(subsysA)
	anyHost.Hostnqn = ""
	ctrls, err = client.FindConnected(anyHost)
	require.NoError(t, err)
	assert.Len(t, ctrls, 2)

	ctrls, err = client.FindConnected(target(subsysB))
	require.NoError(t, err)
	assert.Empty(t, ctrls)
}
