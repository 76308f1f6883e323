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
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lightbitslabs/nvmf-compliance/pkg/clientconfig"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
)

// intentCommand builds one kind of intent from the flags of its command.
type intentCommand struct {
	use   string
	short string
	flags func(cmd *cobra.Command)
	build func(cmd *cobra.Command) (nvme.Intent, error)
}

// intentCommands returns the commands encode and passthru share.
func intentCommands() []intentCommand {
	return []intentCommand{
		{
			use:   "identify",
			short: "Identify",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().Uint8("cns", nvme.CNSController, "controller or namespace structure")
				cmd.Flags().Uint32("nsid", 0, "namespace id")
				cmd.Flags().Uint16("cntid", 0, "controller id")
			},
			build: func(cmd *cobra.Command) (nvme.Intent, error) {
				cns, _ := cmd.Flags().GetUint8("cns")
				nsid, _ := cmd.Flags().GetUint32("nsid")
				cntid, _ := cmd.Flags().GetUint16("cntid")
				return nvme.Identify{CNS: cns, NSID: nsid, CNTID: cntid}, nil
			},
		},
		{
			use:   "get-log-page",
			short: "Get Log Page",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().Uint8("lid", 0, "log page identifier")
				cmd.Flags().Uint8("lsp", 0, "log specific field")
				cmd.Flags().Bool("rae", false, "retain asynchronous event")
				cmd.Flags().Uint16("lsi", 0, "log specific identifier")
				cmd.Flags().Uint32("nsid", nvme.NSIDAll, "namespace id")
				cmd.Flags().Uint32("length", 4096, "bytes to read")
				cmd.Flags().Uint64("offset", 0, "byte offset in the log page")
				cmd.MarkFlagRequired("lid")
			},
			build: func(cmd *cobra.Command) (nvme.Intent, error) {
				g := nvme.GetLogPage{}
				g.LID, _ = cmd.Flags().GetUint8("lid")
				g.LSP, _ = cmd.Flags().GetUint8("lsp")
				g.RAE, _ = cmd.Flags().GetBool("rae")
				g.LSI, _ = cmd.Flags().GetUint16("lsi")
				g.NSID, _ = cmd.Flags().GetUint32("nsid")
				g.Length, _ = cmd.Flags().GetUint32("length")
				g.Offset, _ = cmd.Flags().GetUint64("offset")
				if g.Length == 0 {
					return nil, fmt.Errorf("length must not be zero")
				}
				if g.LSP > 0xf {
					return nil, fmt.Errorf("lsp %#x does not fit 4 bits", g.LSP)
				}
				return g, nil
			},
		},
		{
			use:   "get-features",
			short: "Get Features",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().Uint8("fid", 0, "feature identifier")
				cmd.Flags().Uint8("sel", 0, "select: 0 current, 1 default, 2 saved, 3 supported capabilities")
				cmd.Flags().Uint32("nsid", nvme.NSIDAll, "namespace id")
				cmd.Flags().Uint32("value", 0, "cdw11 argument of the feature")
				cmd.Flags().Uint32("data-len", 0, "length of the feature data")
				cmd.MarkFlagRequired("fid")
			},
			build: func(cmd *cobra.Command) (nvme.Intent, error) {
				g := nvme.GetFeatures{}
				g.FID, _ = cmd.Flags().GetUint8("fid")
				g.Select, _ = cmd.Flags().GetUint8("sel")
				g.NSID, _ = cmd.Flags().GetUint32("nsid")
				g.Value, _ = cmd.Flags().GetUint32("value")
				g.DataLen, _ = cmd.Flags().GetUint32("data-len")
				if g.Select > 7 {
					return nil, fmt.Errorf("sel %d does not fit 3 bits", g.Select)
				}
				return g, nil
			},
		},
		{
			use:   "set-features",
			short: "Set Features",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().Uint8("fid", 0, "feature identifier")
				cmd.Flags().Bool("save", false, "save the value across resets")
				cmd.Flags().Uint32("nsid", nvme.NSIDAll, "namespace id")
				cmd.Flags().Uint32("value", 0, "cdw11 value")
				cmd.Flags().String("data", "", "feature data in hex")
				cmd.MarkFlagRequired("fid")
			},
			build: func(cmd *cobra.Command) (nvme.Intent, error) {
				s := nvme.SetFeatures{}
				s.FID, _ = cmd.Flags().GetUint8("fid")
				s.Save, _ = cmd.Flags().GetBool("save")
				s.NSID, _ = cmd.Flags().GetUint32("nsid")
				s.Value, _ = cmd.Flags().GetUint32("value")
				data, _ := cmd.Flags().GetString("data")
				if len(data) > 0 {
					raw, err := parseHex(data)
					if err != nil {
						return nil, err
					}
					s.Data = raw
				}
				return s, nil
			},
		},
		{
			use:   "property-get",
			short: "Fabrics Property Get",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().Uint32("offset", 0, "property offset")
				cmd.Flags().String("width", "auto", "property width: auto, 4 or 8")
			},
			build: func(cmd *cobra.Command) (nvme.Intent, error) {
				offset, _ := cmd.Flags().GetUint32("offset")
				width, err := propertyWidth(cmd)
				if err != nil {
					return nil, err
				}
				return nvme.PropertyGet{Offset: offset, Width: width}, nil
			},
		},
		{
			use:   "property-set",
			short: "Fabrics Property Set",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().Uint32("offset", 0, "property offset")
				cmd.Flags().Uint64("value", 0, "property value")
				cmd.Flags().String("width", "auto", "property width: auto, 4 or 8")
			},
			build: func(cmd *cobra.Command) (nvme.Intent, error) {
				offset, _ := cmd.Flags().GetUint32("offset")
				value, _ := cmd.Flags().GetUint64("value")
				width, err := propertyWidth(cmd)
				if err != nil {
					return nil, err
				}
				return nvme.PropertySet{Offset: offset, Value: value, Width: width}, nil
			},
		},
		{
			use:   "connect",
			short: "Fabrics Connect",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().StringP("nqn", "n", "", "subsystem nqn")
				cmd.Flags().StringP("hostnqn", "q", "", "host nqn")
				cmd.Flags().StringP("hostid", "I", "", "host identifier (uuid)")
				cmd.Flags().Uint16("qid", 0, "queue id, 0 for the admin queue")
				cmd.Flags().Uint16("cntlid", nvme.FabricsConnectDynamicCtrl, "controller id")
				cmd.Flags().IntP("keep-alive-tmo", "k", 0, "keep alive timeout in seconds")
				cmd.Flags().IntP("queue-size", "Q", 0, "io queue size")
				cmd.Flags().Bool("disable-sqflow", false, "disable controller sq flow control")
				cmd.MarkFlagRequired("nqn")
			},
			build: func(cmd *cobra.Command) (nvme.Intent, error) {
				c := &clientconfig.ConnectionConfig{}
				c.Subsysnqn, _ = cmd.Flags().GetString("nqn")
				hostnqn, _ := cmd.Flags().GetString("hostnqn")
				c.Hostid, _ = cmd.Flags().GetString("hostid")
				c.QueueSize, _ = cmd.Flags().GetInt("queue-size")
				c.DisableSQFlow, _ = cmd.Flags().GetBool("disable-sqflow")
				kato, _ := cmd.Flags().GetInt("keep-alive-tmo")
				c.Kato = secondsDuration(kato)
				qid, _ := cmd.Flags().GetUint16("qid")
				cntlid, _ := cmd.Flags().GetUint16("cntlid")
				var err error
				if c.Hostnqn, err = hostNQN(hostnqn); err != nil {
					return nil, err
				}
				return c.ConnectIntentFor(qid, cntlid)
			},
		},
		{
			use:   "read",
			short: "Read",
			flags: func(cmd *cobra.Command) {
				rwFlags(cmd)
			},
			build: func(cmd *cobra.Command) (nvme.Intent, error) {
				r := nvme.Read{}
				var err error
				if r.NSID, r.SLBA, r.NLB, r.FUA, r.BlockSize, err = rwArgs(cmd); err != nil {
					return nil, err
				}
				return r, nil
			},
		},
		{
			use:   "write",
			short: "Write",
			flags: func(cmd *cobra.Command) {
				rwFlags(cmd)
				cmd.Flags().String("data-file", "", "file with the data to write, zero filled when shorter")
				cmd.Flags().Uint8("pattern", 0, "byte pattern written when no data file is given")
			},
			build: func(cmd *cobra.Command) (nvme.Intent, error) {
				w := nvme.Write{}
				nsid, slba, nlb, fua, blockSize, err := rwArgs(cmd)
				if err != nil {
					return nil, err
				}
				w.NSID, w.SLBA, w.NLB, w.FUA = nsid, slba, nlb, fua
				w.Data = make([]byte, nlb*blockSize)
				filename, _ := cmd.Flags().GetString("data-file")
				if len(filename) == 0 {
					pattern, _ := cmd.Flags().GetUint8("pattern")
					for i := range w.Data {
						w.Data[i] = pattern
					}
					return w, nil
				}
				data, err := os.ReadFile(filename)
				if err != nil {
					return nil, err
				}
				copy(w.Data, data)
				return w, nil
			},
		},
		{
			use:   "flush",
			short: "Flush",
			flags: func(cmd *cobra.Command) {
				cmd.Flags().Uint32("nsid", 1, "namespace id")
			},
			build: func(cmd *cobra.Command) (nvme.Intent, error) {
				nsid, _ := cmd.Flags().GetUint32("nsid")
				return nvme.Flush{NSID: nsid}, nil
			},
		},
		{
			use:   "keep-alive",
			short: "Keep Alive",
			flags: func(cmd *cobra.Command) {},
			build: func(cmd *cobra.Command) (nvme.Intent, error) {
				return nvme.KeepAlive{}, nil
			},
		},
		{
			use:   "async-event",
			short: "Asynchronous Event Request",
			flags: func(cmd *cobra.Command) {},
			build: func(cmd *cobra.Command) (nvme.Intent, error) {
				return nvme.AsyncEventRequest{}, nil
			},
		},
	}
}

func rwFlags(cmd *cobra.Command) {
	cmd.Flags().Uint32("nsid", 1, "namespace id")
	cmd.Flags().Uint64("slba", 0, "starting logical block")
	cmd.Flags().Uint32("nlb", 1, "number of logical blocks, 1 to 65536")
	cmd.Flags().Bool("fua", false, "force unit access")
	cmd.Flags().Uint32("block-size", 512, "logical block size")
}

func rwArgs(cmd *cobra.Command) (nsid uint32, slba uint64, nlb uint32, fua bool, blockSize uint32, err error) {
	nsid, _ = cmd.Flags().GetUint32("nsid")
	slba, _ = cmd.Flags().GetUint64("slba")
	nlb, _ = cmd.Flags().GetUint32("nlb")
	fua, _ = cmd.Flags().GetBool("fua")
	blockSize, _ = cmd.Flags().GetUint32("block-size")
	if nlb == 0 || nlb > 1<<16 {
		err = fmt.Errorf("nlb %d out of range [1, 65536]", nlb)
	}
	return
}

func propertyWidth(cmd *cobra.Command) (nvme.PropertyWidth, error) {
	width, _ := cmd.Flags().GetString("width")
	switch width {
	case "auto", "":
		return nvme.WidthAuto, nil
	case "4":
		return nvme.Width32, nil
	case "8":
		return nvme.Width64, nil
	}
	return nvme.WidthAuto, fmt.Errorf("unknown property width %q", width)
}

// parseHex accepts hex with an optional 0x prefix, spaces and colons.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad hex %q: %w", s, err)
	}
	return data, nil
}
