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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lightbitslabs/nvmf-compliance/pkg/clientconfig"
)

type targetsTable []*clientconfig.ConnectionConfig

func (t targetsTable) Headers() []string {
	return []string{"transport", "traddr", "trsvcid", "subsysnqn", "hostnqn"}
}

func (t targetsTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, c := range t {
		rows = append(rows, []string{c.Transport, c.Traddr, strconv.Itoa(c.Trsvcid), c.Subsysnqn, c.Hostnqn})
	}
	return rows
}

func newTargetsCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "targets",
		Short: "Manage the targets file",
		Long: `Manage the YAML targets file. Targets can be exported as conf files into
the directory the watch command follows.`,
		DisableAutoGenTag: true,
	}
	cmd.AddCommand(
		newTargetsAddCmd(),
		newTargetsRemoveCmd(),
		newTargetsListCmd(),
		newTargetsImportCmd(),
		newTargetsExportCmd(),
		newTargetsDetectCmd(),
	)
	return cmd
}

// updateTargets loads the targets file, applies fn and saves the result.
func updateTargets(fn func(*clientconfig.Targets) (string, error)) error {
	targets, err := clientconfig.LoadTargets(appConfig.TargetsFile)
	if err != nil {
		return err
	}
	msg, err := fn(targets)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(appConfig.TargetsFile), 0755); err != nil {
		return err
	}
	if err := targets.Save(appConfig.TargetsFile); err != nil {
		return err
	}
	return print(msg, Human)
}

func newTargetsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "add",
		Short:             "Add a target",
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := connectionFromFlags("targets-add")
			if err != nil {
				return err
			}
			return updateTargets(func(t *clientconfig.Targets) (string, error) {
				added, err := t.Add(cfg)
				return fmt.Sprintf("added %d target(s)", added), err
			})
		},
	}
	addConnectionFlags(cmd, "targets-add", 4420, "")
	return cmd
}

func newTargetsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "remove <subsysnqn>",
		Short:             "Remove the targets of a subsystem",
		Args:              cobra.ExactArgs(1),
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateTargets(func(t *clientconfig.Targets) (string, error) {
				removed := t.Remove(args[0])
				if removed == 0 {
					return "", fmt.Errorf("no targets of %s", args[0])
				}
				return fmt.Sprintf("removed %d target(s)", removed), nil
			})
		},
	}
}

func newTargetsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "list",
		Short:             "List targets",
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := clientconfig.LoadTargets(appConfig.TargetsFile)
			if err != nil {
				return err
			}
			nqn, _ := cmd.Flags().GetString("nqn")
			found := targets.Find(nqn)
			if currentFormat() != Human {
				return print(found, currentFormat())
			}
			return print(targetsTable(found), Human)
		},
	}
	cmd.Flags().StringP("nqn", "n", "", "only list the targets of this subsystem")
	return cmd
}

func newTargetsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "import <conf-file>",
		Short:             "Add the targets of a discovery.conf style file",
		Args:              cobra.ExactArgs(1),
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configs, err := clientconfig.ParseConfFile(args[0])
			if err != nil {
				return err
			}
			return updateTargets(func(t *clientconfig.Targets) (string, error) {
				added, err := t.Add(configs...)
				return fmt.Sprintf("imported %d of %d target(s)", added, len(configs)), err
			})
		},
	}
}

func newTargetsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Write the targets as a conf file into the watched directory",
		Long: `Write the targets as <targetsDir>/<name>.conf. A running watch command
connects them.`,
		Args:              cobra.ExactArgs(1),
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if strings.ContainsRune(name, os.PathSeparator) || strings.HasPrefix(name, ".") {
				return fmt.Errorf("bad conf file name %q", name)
			}
			targets, err := clientconfig.LoadTargets(appConfig.TargetsFile)
			if err != nil {
				return err
			}
			nqn, _ := cmd.Flags().GetString("nqn")
			found := targets.Find(nqn)
			if len(found) == 0 {
				return fmt.Errorf("no targets to export")
			}
			if err := os.MkdirAll(appConfig.TargetsDir, 0755); err != nil {
				return err
			}
			filename := filepath.Join(appConfig.TargetsDir, name+".conf")
			if err := clientconfig.WriteConfFile(filename, found); err != nil {
				return err
			}
			return print(fmt.Sprintf("exported %d target(s) to %s", len(found), filename), Human)
		},
	}
	cmd.Flags().StringP("nqn", "n", "", "only export the targets of this subsystem")
	return cmd
}

func newTargetsDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "detect",
		Short:             "Add the targets of the fabrics controllers the host is connected to",
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			controllers, err := clientconfig.DetectControllers(newClient().SysfsGlob)
			if err != nil {
				return err
			}
			configs := make([]*clientconfig.ConnectionConfig, 0, len(controllers))
			for _, ctrl := range controllers {
				configs = append(configs, ctrl.Config)
			}
			return updateTargets(func(t *clientconfig.Targets) (string, error) {
				added, err := t.Add(configs...)
				return fmt.Sprintf("detected %d controller(s), added %d target(s)", len(controllers), added), err
			})
		},
	}
}
