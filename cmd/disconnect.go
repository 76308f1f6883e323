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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newDisconnectCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:               "disconnect",
		Short:             "Disconnect a controller or all controllers of a subsystem",
		Long:              ``,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE:              disconnectCmdFunc,
	}

	cmd.Flags().StringP("device", "d", "", "nvme controller device, e.g. /dev/nvme0")
	viper.BindPFlag("disconnect.device", cmd.Flags().Lookup("device"))

	cmd.Flags().StringP("nqn", "n", "", "subsystem nqn")
	viper.BindPFlag("disconnect.nqn", cmd.Flags().Lookup("nqn"))

	return cmd
}

func disconnectCmdFunc(cmd *cobra.Command, args []string) error {
	device := viper.GetString("disconnect.device")
	nqn := viper.GetString("disconnect.nqn")
	target := device
	switch {
	case len(device) > 0 && len(nqn) > 0:
		return fmt.Errorf("only one of device(-d) and nqn(-n) can be set")
	case len(nqn) > 0:
		target = nqn
	case len(device) == 0:
		return fmt.Errorf("device(-d) or nqn(-n) must be set")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), appConfig.Timeout)
	defer cancel()
	count, err := newClient().Disconnect(ctx, target)
	if err != nil {
		return fmt.Errorf("disconnect %q failed: %w", target, err)
	}
	return print(fmt.Sprintf("disconnected %s. controllers: %d", target, count), currentFormat())
}
