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

	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
)

func newConnectAllCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:               "connect-all",
		Short:             "Discover NVMeoF subsystems and connect to them",
		Long:              ``,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE:              connectAllCmdFunc,
	}
	addConnectionFlags(cmd, "connect-all", 8009, nvme.DiscoverySubsysName)
	return cmd
}

func connectAllCmdFunc(cmd *cobra.Command, args []string) error {
	cfg, err := connectionFromFlags("connect-all")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), appConfig.Timeout)
	defer cancel()

	devices, err := newClient().ConnectAll(ctx, cfg)
	if err != nil {
		return err
	}
	if currentFormat() != Human {
		return print(devices, currentFormat())
	}
	t := newTable("device")
	for _, device := range devices {
		t.add(device)
	}
	return print(t, Human)
}
