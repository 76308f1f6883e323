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
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lightbitslabs/nvmf-compliance/pkg/hostapi"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
)

// responseView is the printable form of a response.
type responseView struct {
	Kind    string `json:"kind" yaml:"kind"`
	Status  string `json:"status" yaml:"status"`
	Name    string `json:"statusName" yaml:"statusName"`
	Result  string `json:"result" yaml:"result"`
	SqHead  uint16 `json:"sqHead" yaml:"sqHead"`
	SqID    uint16 `json:"sqId" yaml:"sqId"`
	CID     uint16 `json:"cid" yaml:"cid"`
	DataLen int    `json:"dataLen" yaml:"dataLen"`
	Data    string `json:"data,omitempty" yaml:"data,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newResponseView(rsp *nvme.Response, dump bool) *responseView {
	view := &responseView{
		Kind:    rsp.Kind.String(),
		Status:  fmt.Sprintf("%#04x", uint16(rsp.Status)),
		Name:    nvme.StatusName(rsp.Status),
		Result:  fmt.Sprintf("%#08x", rsp.Result()),
		SqHead:  rsp.Completion.SqHead,
		SqID:    rsp.Completion.SqID,
		CID:     rsp.Completion.CommandID,
		DataLen: len(rsp.Data),
	}
	if err := rsp.Err(); err != nil {
		view.Error = err.Error()
	}
	if dump && len(rsp.Data) > 0 {
		view.Data = hex.Dump(rsp.Data)
	}
	return view
}

func (v *responseView) Headers() []string {
	return []string{"field", "value"}
}

func (v *responseView) Rows() [][]string {
	rows := [][]string{
		{"kind", v.Kind},
		{"status", fmt.Sprintf("%s(%s)", v.Name, v.Status)},
		{"result", v.Result},
		{"cid", fmt.Sprintf("%#04x", v.CID)},
		{"sq", fmt.Sprintf("id %d head %d", v.SqID, v.SqHead)},
		{"data", humanize.IBytes(uint64(v.DataLen))},
	}
	if len(v.Error) > 0 {
		rows = append(rows, []string{"error", v.Error})
	}
	if len(v.Data) > 0 {
		rows = append(rows, []string{"dump", v.Data})
	}
	return rows
}

func newPassthruCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "passthru",
		Short: "Send a command to a controller through nvme-cli passthru",
		Long: `Encode a command and send it with nvme-cli admin-passthru or io-passthru
to the given controller or namespace device. The decoded completion is
printed, protocol errors end with a non zero exit code.`,
		DisableAutoGenTag: true,
	}
	cmd.PersistentFlags().Uint16("cid", 1, "command identifier")
	cmd.PersistentFlags().Uint8("fuse", 0, "fused operation bits")
	cmd.PersistentFlags().StringP("device", "d", "", "controller or namespace device, e.g. /dev/nvme0n1")
	cmd.PersistentFlags().Duration("cmd-timeout", 0, "timeout passed to the driver")
	cmd.PersistentFlags().Bool("dump", false, "hex dump the returned data")
	cmd.MarkPersistentFlagRequired("device")

	for _, ic := range intentCommands() {
		ic := ic
		sub := &cobra.Command{
			Use:               ic.use,
			Short:             fmt.Sprintf("Send %s", ic.short),
			SilenceUsage:      true,
			DisableAutoGenTag: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return passthruCmdFunc(cmd, ic)
			},
		}
		ic.flags(sub)
		cmd.AddCommand(sub)
	}
	return cmd
}

func passthruCmdFunc(cmd *cobra.Command, ic intentCommand) error {
	req, err := buildRequest(cmd, ic)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("cmd-timeout")
	req.TimeoutMS = uint32(timeout / time.Millisecond)
	device, _ := cmd.Flags().GetString("device")
	dump, _ := cmd.Flags().GetBool("dump")

	executor, err := newClient().Executor(device)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), appConfig.Timeout)
	defer cancel()
	rsp, err := hostapi.Execute(ctx, hostapi.Instrument("nvme-cli", executor), req)
	if err != nil {
		return err
	}
	if err := print(newResponseView(rsp, dump), currentFormat()); err != nil {
		return err
	}
	return rsp.Err()
}
