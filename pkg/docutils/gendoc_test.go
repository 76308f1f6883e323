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

package docutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbitslabs/nvmf-compliance/pkg/testutils"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "tool", Short: "root command"}
	encode := &cobra.Command{Use: "encode", Short: "encode things", Run: func(*cobra.Command, []string) {}}
	decode := &cobra.Command{Use: "decode", Short: "decode things", Run: func(*cobra.Command, []string) {}}
	root.AddCommand(encode, decode, NewGenCmd("tool"))
	return root
}

func TestGenMarkdownTree(t *testing.T) {
	dir := testutils.CreateTempDir(t)
	prepender := func(string) string { return "" }

	require.NoError(t, GenMarkdownTreeCustom(testTree(), dir, prepender, false))
	for _, name := range []string{"tool.md", "tool_encode.md", "tool_decode.md", "tool_gen_doc.md"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestGenMarkdownSingleFile(t *testing.T) {
	dir := testutils.CreateTempDir(t)
	prepender := func(string) string { return "---\ntitle: tool\n---\n" }

	require.NoError(t, GenMarkdownTreeCustom(testTree(), dir, prepender, true))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content := testutils.ReadFile(t, filepath.Join(dir, "tool.md"))
	assert.True(t, strings.HasPrefix(content, "---\ntitle: tool"))
	assert.Contains(t, content, "## tool encode")
	assert.Contains(t, content, "## tool decode")
	assert.Contains(t, content, "(#tool-encode)")
}
