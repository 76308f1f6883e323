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
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvmeclient"
)

// encodedCommand is the printable form of an encoded submission entry.
type encodedCommand struct {
	Set     string      `json:"set" yaml:"set"`
	Name    string      `json:"name" yaml:"name"`
	Opcode  string      `json:"opcode" yaml:"opcode"`
	CID     uint16      `json:"cid" yaml:"cid"`
	Dwords  []string    `json:"dwords" yaml:"dwords"`
	Raw     string      `json:"raw" yaml:"raw"`
	DataLen int         `json:"dataLen" yaml:"dataLen"`
	Fabrics interface{} `json:"fabrics,omitempty" yaml:"fabrics,omitempty"`
	NvmeCli string      `json:"nvmeCli,omitempty" yaml:"nvmeCli,omitempty"`
}

func newEncodedCommand(req *nvme.Request, device string) (*encodedCommand, error) {
	raw, err := req.Command.MarshalBinary()
	if err != nil {
		return nil, err
	}
	enc := &encodedCommand{
		Set:     req.CommandSet.String(),
		Name:    nvme.OpcodeName(req.CommandSet, req.Command.Opcode, req.Command.NSID),
		Opcode:  fmt.Sprintf("%#02x", req.Command.Opcode),
		CID:     req.Command.CommandID,
		Raw:     hex.EncodeToString(raw),
		DataLen: len(req.Data),
	}
	for _, dw := range req.Command.Dwords() {
		enc.Dwords = append(enc.Dwords, fmt.Sprintf("%#08x", dw))
	}
	if req.CommandSet == nvme.FabricsCommandSet {
		if enc.Fabrics, err = nvme.WireView(req); err != nil {
			return nil, err
		}
	}
	if len(device) > 0 {
		args, err := nvmeclient.PassthruArgs(device, req)
		if err != nil {
			return nil, err
		}
		enc.NvmeCli = "nvme " + strings.Join(args, " ")
	}
	return enc, nil
}

func (e *encodedCommand) Headers() []string {
	return []string{"field", "value"}
}

func (e *encodedCommand) Rows() [][]string {
	rows := [][]string{
		{"set", e.Set},
		{"command", fmt.Sprintf("%s(%s)", e.Name, e.Opcode)},
		{"cid", fmt.Sprintf("%#04x", e.CID)},
	}
	for i, dw := range e.Dwords {
		rows = append(rows, []string{fmt.Sprintf("cdw%d", i), dw})
	}
	rows = append(rows, []string{"data", humanize.IBytes(uint64(e.DataLen))})
	if len(e.NvmeCli) > 0 {
		rows = append(rows, []string{"nvme-cli", e.NvmeCli})
	}
	return rows
}

func newEncodeCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "encode",
		Short: "Encode a command into its 64 bytes submission entry",
		Long: `Encode a command into its submission queue entry. The dwords, the raw
little endian bytes and the equivalent nvme-cli passthru invocation are
printed.`,
		DisableAutoGenTag: true,
	}
	cmd.PersistentFlags().Uint16("cid", 1, "command identifier")
	cmd.PersistentFlags().Uint8("fuse", 0, "fused operation bits")
	cmd.PersistentFlags().StringP("device", "d", "/dev/nvme0", "device of the printed nvme-cli invocation, empty to skip it")

	for _, ic := range intentCommands() {
		ic := ic
		sub := &cobra.Command{
			Use:               ic.use,
			Short:             fmt.Sprintf("Encode %s", ic.short),
			SilenceUsage:      true,
			DisableAutoGenTag: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				req, err := buildRequest(cmd, ic)
				if err != nil {
					return err
				}
				device, _ := cmd.Flags().GetString("device")
				enc, err := newEncodedCommand(req, device)
				if err != nil {
					return err
				}
				return print(enc, currentFormat())
			},
		}
		ic.flags(sub)
		cmd.AddCommand(sub)
	}
	return cmd
}

// buildRequest builds the intent of ic and applies the common cid and fuse
// flags.
func buildRequest(cmd *cobra.Command, ic intentCommand) (*nvme.Request, error) {
	intent, err := ic.build(cmd)
	if err != nil {
		return nil, err
	}
	cid, _ := cmd.Flags().GetUint16("cid")
	fuse, _ := cmd.Flags().GetUint8("fuse")
	if fuse > 3 {
		return nil, fmt.Errorf("fuse %d does not fit 2 bits", fuse)
	}
	req := nvme.Build(intent, cid)
	if fuse > 0 {
		req.Command.SetFuse(fuse)
	}
	return req, nil
}
