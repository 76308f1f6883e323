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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
)

func newDecodeCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:               "decode",
		Short:             "Decode status words, completions, registers and commands",
		DisableAutoGenTag: true,
	}
	cmd.AddCommand(
		newDecodeStatusCmd(),
		newDecodeTextCmd(),
		newDecodeCQECmd(),
		newDecodeRegisterCmd(),
		newDecodeCommandCmd(),
	)
	return cmd
}

// statusView is the printable form of a status field.
type statusView struct {
	Status  string `json:"status" yaml:"status"`
	Name    string `json:"name" yaml:"name"`
	SCT     uint8  `json:"sct" yaml:"sct"`
	SC      string `json:"sc" yaml:"sc"`
	CRD     uint8  `json:"crd" yaml:"crd"`
	More    bool   `json:"more" yaml:"more"`
	DNR     bool   `json:"dnr" yaml:"dnr"`
	Success bool   `json:"success" yaml:"success"`
}

func newStatusView(s nvme.StatusField) *statusView {
	return &statusView{
		Status:  fmt.Sprintf("%#04x", uint16(s)),
		Name:    nvme.StatusName(s),
		SCT:     s.SCT(),
		SC:      fmt.Sprintf("%#02x", s.SC()),
		CRD:     s.CRD(),
		More:    s.More(),
		DNR:     s.DNR(),
		Success: s.IsSuccess(),
	}
}

func (v *statusView) Headers() []string { return []string{"field", "value"} }

func (v *statusView) Rows() [][]string {
	return [][]string{
		{"status", fmt.Sprintf("%s(%s)", v.Name, v.Status)},
		{"sct", strconv.Itoa(int(v.SCT))},
		{"sc", v.SC},
		{"crd", strconv.Itoa(int(v.CRD))},
		{"more", strconv.FormatBool(v.More)},
		{"dnr", strconv.FormatBool(v.DNR)},
	}
}

func parseUint(s string, bits int) (uint64, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(s), 0, bits)
	if err != nil {
		// bare hex as nvme-cli prints it
		value, err = strconv.ParseUint(strings.TrimSpace(s), 16, bits)
	}
	return value, err
}

func newDecodeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "status <status>",
		Short:             "Decode a 15 bits status field, e.g. 0x4002",
		Args:              cobra.ExactArgs(1),
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseUint(args[0], 16)
			if err != nil {
				return fmt.Errorf("bad status %q: %w", args[0], err)
			}
			return print(newStatusView(nvme.StatusField(value)), currentFormat())
		},
	}
}

func newDecodeTextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "text <diagnostic>",
		Short:             "Decode the status nvme-cli printed for a failed command",
		Args:              cobra.ExactArgs(1),
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode, _ := cmd.Flags().GetInt("exit-code")
			res := nvme.DecodeStatusText(exitCode, args[0])
			if res.Kind == nvme.ResultUnparseable {
				return res.Err()
			}
			return print(newStatusView(res.Status), currentFormat())
		},
	}
	cmd.Flags().Int("exit-code", 1, "exit code of the nvme-cli run")
	return cmd
}

func newDecodeCQECmd() *cobra.Command {
	return &cobra.Command{
		Use:               "cqe <hex>",
		Short:             "Decode a raw 16 bytes completion queue entry",
		Args:              cobra.ExactArgs(1),
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseHex(args[0])
			if err != nil {
				return err
			}
			rsp, err := nvme.DecodeCompletion(raw)
			if err != nil {
				return err
			}
			return print(newResponseView(rsp, false), currentFormat())
		},
	}
}

var registerOffsets = map[string]uint32{
	"cap":  nvme.RegCAP,
	"vs":   nvme.RegVS,
	"cc":   nvme.RegCC,
	"csts": nvme.RegCSTS,
}

type registerView struct {
	Offset string      `json:"offset" yaml:"offset"`
	Name   string      `json:"name" yaml:"name"`
	Value  string      `json:"value" yaml:"value"`
	Fields interface{} `json:"fields,omitempty" yaml:"fields,omitempty"`
}

func newDecodeRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "register <cap|vs|cc|csts|offset> <value>",
		Short:             "Decode the value of a controller property",
		Args:              cobra.ExactArgs(2),
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, ok := registerOffsets[strings.ToLower(args[0])]
			if !ok {
				value, err := parseUint(args[0], 32)
				if err != nil {
					return fmt.Errorf("unknown register %q", args[0])
				}
				offset = uint32(value)
			}
			value, err := parseUint(args[1], 64)
			if err != nil {
				return fmt.Errorf("bad value %q: %w", args[1], err)
			}
			fields, err := nvme.DecodeProperty(offset, value)
			if err != nil {
				return err
			}
			view := &registerView{
				Offset: fmt.Sprintf("%#02x", offset),
				Name:   nvme.RegisterName(offset),
				Value:  fmt.Sprintf("%#x", value),
				Fields: fields,
			}
			return print(view, currentFormat())
		},
	}
}

func parseCommandSet(name string, opcode uint8) (nvme.CommandSet, error) {
	switch name {
	case "":
		if opcode == nvme.FabricsCommand {
			return nvme.FabricsCommandSet, nil
		}
		return nvme.AdminCommandSet, nil
	case "admin":
		return nvme.AdminCommandSet, nil
	case "io":
		return nvme.IOCommandSet, nil
	case "fabrics":
		return nvme.FabricsCommandSet, nil
	}
	return 0, fmt.Errorf("unknown command set %q", name)
}

type commandView struct {
	Set    string      `json:"set" yaml:"set"`
	Name   string      `json:"name" yaml:"name"`
	CID    uint16      `json:"cid" yaml:"cid"`
	Fuse   uint8       `json:"fuse" yaml:"fuse"`
	Intent interface{} `json:"intent" yaml:"intent"`
}

func newDecodeCommandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "command <hex>",
		Short:             "Decode a raw 64 bytes submission queue entry back to its command",
		Args:              cobra.ExactArgs(1),
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseHex(args[0])
			if err != nil {
				return err
			}
			req := &nvme.Request{}
			if err := req.Command.UnmarshalBinary(raw); err != nil {
				return err
			}
			set, _ := cmd.Flags().GetString("set")
			if req.CommandSet, err = parseCommandSet(set, req.Command.Opcode); err != nil {
				return err
			}
			if data, _ := cmd.Flags().GetString("data"); len(data) > 0 {
				if req.Data, err = parseHex(data); err != nil {
					return err
				}
			}
			intent, err := nvme.Decode(req)
			if err != nil {
				return err
			}
			view := &commandView{
				Set:    req.CommandSet.String(),
				Name:   nvme.OpcodeName(req.CommandSet, req.Command.Opcode, req.Command.NSID),
				CID:    req.Command.CommandID,
				Fuse:   req.Command.Fuse(),
				Intent: intent,
			}
			return print(view, currentFormat())
		},
	}
	cmd.Flags().String("set", "", "command set: admin, io or fabrics (default fabrics for opcode 0x7f, admin otherwise)")
	cmd.Flags().String("data", "", "data buffer in hex, needed for connect data")
	return cmd
}
