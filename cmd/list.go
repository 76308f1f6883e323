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

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:               "list",
		Short:             "List the connected subsystems and their controllers",
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE:              listCmdFunc,
	}
	return cmd
}

func listCmdFunc(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), appConfig.Timeout)
	defer cancel()
	subsystems, err := newClient().ListSubsystems(ctx)
	if err != nil {
		return err
	}
	if currentFormat() != Human {
		return print(subsystems, currentFormat())
	}
	t := newTable("subsystem", "controller", "transport", "address", "state")
	for _, s := range subsystems {
		for _, p := range s.Paths {
			t.add(s.NQN, p.Name, p.Transport, p.Address, p.State)
		}
	}
	return print(t, Human)
}
