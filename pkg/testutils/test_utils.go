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

package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateTempDir returns a scratch directory removed when the test ends.
func CreateTempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "nvmf-compliance")
	require.NoError(t, err, "failed to create temp dir")
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func CreateFile(t *testing.T, filename string, content string) {
	err := os.WriteFile(filename, []byte(content), 0666)
	require.NoError(t, err, "failed to write file")
}

// CreateConfFile writes a discovery style conf file named name under dir
// and returns its path.
func CreateConfFile(t *testing.T, dir, name string, lines ...string) string {
	filename := filepath.Join(dir, name)
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	CreateFile(t, filename, content)
	return filename
}

// ReplaceConfFile swaps the content of an existing conf file with a rename
// so watchers never see it truncated.
func ReplaceConfFile(t *testing.T, filename string, lines ...string) {
	tmp := CreateConfFile(t, filepath.Dir(filename), "."+filepath.Base(filename)+".tmp", lines...)
	require.NoError(t, os.Rename(tmp, filename), "failed to replace file")
}

func ReadFile(t *testing.T, filename string) string {
	data, err := os.ReadFile(filename)
	require.NoError(t, err, "failed to read file")
	return string(data)
}

func DeleteFile(t *testing.T, filename string) {
	t.Logf("Removing %s", filename)
	err := os.Remove(filename)
	require.NoError(t, err, "failed to remove file")
}
