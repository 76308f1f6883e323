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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lightbitslabs/nvmf-compliance/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher(t *testing.T) {
	tempDir := testutils.CreateTempDir(t)
	defer os.RemoveAll(tempDir)

	var fw FileWatcher
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := fw.Watch(ctx, tempDir)
	require.NoErrorf(t, err, "unexpected watch error")

	file1 := filepath.Join(tempDir, "vol1.conf")
	testutils.CreateFile(t, file1, "-t tcp -a 192.168.1.1 -s 4420 -q "+host1+" -n "+subsys1)

	select {
	case event := <-ch:
		assert.Equal(t, file1, event.Name)
		assert.Contains(t, []EventOp{Create, Modify}, event.Op)
	case <-time.After(5 * time.Second):
		t.Fatal("no event for a created file")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond, "channel must be closed once the context is done")
}

func TestWatcherMissingPath(t *testing.T) {
	var fw FileWatcher
	_, err := fw.Watch(context.Background(), "/no/such/dir/for/nvmf-compliance")
	assert.Error(t, err)
}

func TestCache(t *testing.T) {
	testCases := []struct {
		name     string
		contents []string
		entries  []*ConnectionConfig
	}{
		{
			name: "valid volume with 3 targets",
			contents: []string{`
			-t tcp -a 192.168.1.1 -s 4420 -q ` + host1 + ` -n ` + subsys1 + `
			-t tcp -a 192.168.1.2 -s 4420 -q ` + host1 + ` -n ` + subsys1 + `
			-t tcp -a 192.168.1.3 -s 4420 -q ` + host1 + ` -n ` + subsys1},
			entries: []*ConnectionConfig{
				{Transport: "tcp", Traddr: "192.168.1.1", Trsvcid: 4420, Hostnqn: host1, Subsysnqn: subsys1},
				{Transport: "tcp", Traddr: "192.168.1.2", Trsvcid: 4420, Hostnqn: host1, Subsysnqn: subsys1},
				{Transport: "tcp", Traddr: "192.168.1.3", Trsvcid: 4420, Hostnqn: host1, Subsysnqn: subsys1},
			},
		},
		{
			name: "dedup 2 files",
			contents: []string{
				`-t tcp -a 192.168.1.1 -s 4420 -q ` + host1 + ` -n ` + subsys1 + `
				-a 192.168.1.2 -t tcp -s 4420 -q ` + host2 + ` -n ` + subsys2,
				`-t tcp -a 192.168.1.1 -q ` + host1 + ` -s 4420 -n ` + subsys1 + ` -p
				-t tcp -a 192.168.1.4 -s 4420 -q ` + host2 + ` -n ` + subsys2},
			entries: []*ConnectionConfig{
				{Transport: "tcp", Traddr: "192.168.1.1", Trsvcid: 4420, Hostnqn: host1, Subsysnqn: subsys1},
				{Transport: "tcp", Traddr: "192.168.1.2", Trsvcid: 4420, Hostnqn: host2, Subsysnqn: subsys2},
				{Transport: "tcp", Traddr: "192.168.1.4", Trsvcid: 4420, Hostnqn: host2, Subsysnqn: subsys2},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := testutils.CreateTempDir(t)
			defer os.RemoveAll(dir)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			c := NewCache(ctx, dir)
			require.NoError(t, c.Run())
			defer c.Stop()

			for i, content := range tc.contents {
				testutils.CreateFile(t, filepath.Join(dir, fmt.Sprintf("conf_%d", i)), content)
			}
			require.Eventually(t, func() bool {
				return len(c.Entries()) == len(tc.entries)
			}, 5*time.Second, 10*time.Millisecond)
			assert.Equal(t, tc.entries, c.Entries())

			select {
			case configs := <-c.Connections():
				assert.NotEmpty(t, configs)
			case <-time.After(5 * time.Second):
				t.Fatal("no connections published")
			}
		})
	}
}

func TestCacheLoadsExistingAndRemoves(t *testing.T) {
	dir := testutils.CreateTempDir(t)
	defer os.RemoveAll(dir)
	file := filepath.Join(dir, "existing.conf")
	testutils.CreateFile(t, file, "-t tcp -a 192.168.1.1 -s 4420 -q "+host1+" -n "+subsys1)
	testutils.CreateFile(t, filepath.Join(dir, ".hidden"), "-t tcp -a 192.168.1.9 -s 4420 -q "+host1+" -n "+subsys1)

	c := NewCache(context.Background(), dir)
	require.NoError(t, c.Run())
	defer c.Stop()
	require.Len(t, c.Entries(), 1)

	testutils.DeleteFile(t, file)
	require.Eventually(t, func() bool {
		return len(c.Entries()) == 0
	}, 5*time.Second, 10*time.Millisecond)
}
