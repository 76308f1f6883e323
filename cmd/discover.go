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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvmeclient"
)

type discoveryTable struct {
	*nvmeclient.DiscoveryResult
}

func (d discoveryTable) Headers() []string {
	return []string{"subtype", "trtype", "traddr", "trsvcid", "portid", "subnqn"}
}

func (d discoveryTable) Rows() [][]string {
	rows := make([][]string, 0, len(d.Records))
	for _, e := range d.Records {
		rows = append(rows, []string{e.SubType, e.TrType, e.Traddr, e.Trsvcid, strconv.Itoa(e.PortID), e.Subnqn})
	}
	return rows
}

func newDiscoverCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:               "discover",
		Short:             "Fetch the discovery log page of a discovery controller",
		Long:              ``,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE:              discoverCmdFunc,
	}
	addConnectionFlags(cmd, "discover", 8009, nvme.DiscoverySubsysName)
	return cmd
}

func discoverCmdFunc(cmd *cobra.Command, args []string) error {
	cfg, err := connectionFromFlags("discover")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), appConfig.Timeout)
	defer cancel()

	res, err := newClient().Discover(ctx, cfg)
	if err != nil {
		return err
	}
	if currentFormat() != Human {
		return print(res, currentFormat())
	}
	return print(discoveryTable{res}, Human)
}
