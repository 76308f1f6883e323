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
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var singleFile bool

// NewGenCmd groups the doc and autocomplete generators under "gen".
func NewGenCmd(applicationName string) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "gen",
		Short:             fmt.Sprintf("Generate documentation and completion files for %s", applicationName),
		DisableAutoGenTag: true,
	}
	cmd.AddCommand(NewGenDocCmd(applicationName))
	cmd.AddCommand(NewAutocompleteCmd(applicationName))
	return cmd
}

func NewGenDocCmd(applicationName string) *cobra.Command {
	short := fmt.Sprintf("Generate a Markdown format file for each command in `%s` CLI.", applicationName)
	long := fmt.Sprintf("Generate Markdown documentation for the `%s` CLI.", applicationName)

	cmd := &cobra.Command{
		Use:               "doc",
		Short:             short,
		DisableAutoGenTag: true,
		Long:              long,
		RunE:              gendocCmdFunc,
	}

	cmd.Flags().String("dir", fmt.Sprintf("/tmp/%s-doc/", applicationName), "The directory to write the doc.")

	cmd.Flags().BoolVar(&singleFile, "single-file", false, "generate all commands in single Markdown file.")
	// For bash-completion
	cmd.Flags().SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{})
	return cmd
}

func gendocCmdFunc(cmd *cobra.Command, args []string) error {
	gendocdir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return err
	}
	if !strings.HasSuffix(gendocdir, string(os.PathSeparator)) {
		gendocdir += string(os.PathSeparator)
	}
	if _, err := os.Stat(gendocdir); os.IsNotExist(err) {
		log.Infof("directory %s does not exist, creating...", gendocdir)
		if err := os.MkdirAll(gendocdir, 0777); err != nil {
			return errors.Wrapf(err, "failed to create %s", gendocdir)
		}
	}
	prepender := func(filename string) string {
		return ""
	}
	log.Infof("generating %s command-line documentation in %s", cmd.Root().Name(), gendocdir)
	return GenMarkdownTreeCustom(cmd.Root(), gendocdir, prepender, singleFile)
}

// GenMarkdownTreeCustom writes markdown for root and every visible
// subcommand. With singleFile all pages are concatenated into
// <root>.md and cross links become in-page anchors.
func GenMarkdownTreeCustom(root *cobra.Command, dir string, prepender func(string) string, singleFile bool) error {
	if !singleFile {
		return doc.GenMarkdownTreeCustom(root, dir, prepender, func(name string) string { return name })
	}

	filename := filepath.Join(dir, root.Name()+".md")
	buf := &bytes.Buffer{}
	buf.WriteString(prepender(filename))
	if err := genMarkdownSingle(root, buf); err != nil {
		return err
	}
	return os.WriteFile(filename, buf.Bytes(), 0644)
}

func genMarkdownSingle(cmd *cobra.Command, w io.Writer) error {
	if !cmd.IsAvailableCommand() && !cmd.IsAdditionalHelpTopicCommand() && cmd.HasParent() {
		return nil
	}
	anchor := func(name string) string {
		return "#" + strings.ReplaceAll(strings.TrimSuffix(name, ".md"), "_", "-")
	}
	if err := doc.GenMarkdownCustom(cmd, w, anchor); err != nil {
		return errors.Wrapf(err, "failed to generate doc for %s", cmd.CommandPath())
	}
	for _, c := range cmd.Commands() {
		if err := genMarkdownSingle(c, w); err != nil {
			return err
		}
	}
	return nil
}
