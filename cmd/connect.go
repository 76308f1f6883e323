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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lightbitslabs/nvmf-compliance/pkg/nvmeclient"
)

type connectResult struct {
	Target string `json:"target" yaml:"target"`
	Device string `json:"device" yaml:"device"`
}

func (r connectResult) String() string {
	if len(r.Device) == 0 {
		return fmt.Sprintf("%s: already connected", r.Target)
	}
	return fmt.Sprintf("%s: %s", r.Target, r.Device)
}

func newConnectCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "connect",
		Short: "Connect to an NVMe over Fabrics subsystem",
		Long: `Create a transport connection to a remote system (specified by --traddr and
--trsvcid) and create a NVMe over Fabrics controller for the NVMe subsystem
specified by the --nqn option.`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE:              connectCmdFunc,
	}
	addConnectionFlags(cmd, "connect", 4420, "")
	return cmd
}

func connectCmdFunc(cmd *cobra.Command, args []string) error {
	cfg, err := connectionFromFlags("connect")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), appConfig.Timeout)
	defer cancel()

	device, err := newClient().Connect(ctx, cfg)
	if err != nil && !errors.Is(err, nvmeclient.ErrAlreadyConnected) {
		return err
	}
	return print(connectResult{Target: cfg.Key(), Device: device}, currentFormat())
}
