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

package nvme

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/lunixbochs/struc"
)

// Controller property offsets
const (
	RegCAP    uint32 = 0x00
	RegVS     uint32 = 0x08
	RegINTMS  uint32 = 0x0c
	RegINTMC  uint32 = 0x10
	RegCC     uint32 = 0x14
	RegCSTS   uint32 = 0x1c
	RegNSSR   uint32 = 0x20
	RegAQA    uint32 = 0x24
	RegASQ    uint32 = 0x28
	RegACQ    uint32 = 0x30
	RegCMBLOC uint32 = 0x38
	RegCMBSZ  uint32 = 0x3c
	RegBPINFO uint32 = 0x40
	RegBPRSEL uint32 = 0x44
	RegBPMBL  uint32 = 0x48
	RegCMBMSC uint32 = 0x50
	RegCMBSTS uint32 = 0x58
	RegPMRCAP uint32 = 0xe00
	RegDBS    uint32 = 0x1000
)

// PropertyWidthTable lists the offsets of the 8 bytes wide properties of one
// revision of the fabrics property map. Every other offset is 4 bytes wide.
type PropertyWidthTable struct {
	Revision string
	Wide     []uint32
}

// PropertyWidthsV1_4 is the property map of NVMe 1.4 / NVMe-oF 1.1.
var PropertyWidthsV1_4 = PropertyWidthTable{
	Revision: "1.4",
	Wide:     []uint32{RegCAP, RegASQ, RegACQ, RegBPMBL, RegCMBMSC},
}

// DefaultPropertyWidths is the table used by IsProperty64Bit and Attrib.
var DefaultPropertyWidths = PropertyWidthsV1_4

func (t PropertyWidthTable) Is64Bit(offset uint32) bool {
	return slices.Contains(t.Wide, offset)
}

// Attrib is the ATTRIB value (bit 0 of byte 40) for an access to offset: 1
// for 8 bytes, 0 for 4 bytes.
func (t PropertyWidthTable) Attrib(offset uint32) uint8 {
	if t.Is64Bit(offset) {
		return 1
	}
	return 0
}

func IsProperty64Bit(offset uint32) bool {
	return DefaultPropertyWidths.Is64Bit(offset)
}

func Attrib(offset uint32) uint8 {
	return DefaultPropertyWidths.Attrib(offset)
}

func RegisterName(reg uint32) string {
	switch reg {
	case RegCAP:
		return "ControllerCapabilities"
	case RegVS:
		return "ControllerVersion"
	case RegINTMS:
		return "Interrupt Mask Set"
	case RegINTMC:
		return "Interrupt Mask Clear"
	case RegCC:
		return "ControllerConfiguration"
	case RegCSTS:
		return "ControllerStatus"
	case RegNSSR:
		return "NVM Subsystem Reset"
	case RegAQA:
		return "Admin Queue Attributes"
	case RegASQ:
		return "Admin SQ Base Address"
	case RegACQ:
		return "Admin CQ Base Address"
	case RegCMBLOC:
		return "Controller Memory Buffer Location"
	case RegCMBSZ:
		return "Controller Memory Buffer Size"
	case RegBPINFO:
		return "Boot Partition Information"
	case RegBPRSEL:
		return "Boot Partition Read Select"
	case RegBPMBL:
		return "Boot Partition Memory Buffer Location"
	case RegCMBMSC:
		return "Controller Memory Buffer Memory Space Control"
	case RegCMBSTS:
		return "Controller Memory Buffer Status"
	case RegDBS:
		return "SQ 0 Tail Doorbell"
	default:
		return "UNKNOWN register name"
	}
}

// ConnectCommand is the SQE layout of a Connect command.
type ConnectCommand struct {
	Opcode    uint8     `struc:"uint8"`
	Resv1     uint8     `struc:"uint8"`
	CommandID uint16    `struc:"uint16,little"`
	FcType    uint8     `struc:"uint8"`
	Rsvd2     [19]uint8 `struc:"[19]uint8"`
	Dptr      DataPtr
	RecFmt    uint16    `struc:"uint16,little"`
	QID       uint16    `struc:"uint16,little"`
	SqSize    uint16    `struc:"uint16,little"`
	CatTr     uint8     `struc:"uint8"`
	Resv3     uint8     `struc:"uint8"`
	Kato      uint32    `struc:"uint32,little"`
	Resv4     [12]uint8 `struc:"[12]uint8"`
}

func (cmd *ConnectCommand) String() string {
	return fmt.Sprintf("%s, id: %#04x. qid: %d. sqsize: %d. kato: %d",
		reflect.TypeOf(cmd).String(), cmd.CommandID, cmd.QID, cmd.SqSize, cmd.Kato)
}

// ConnectData is the 1024 bytes payload of a Connect command. NQNs are NUL
// padded ASCII.
type ConnectData struct {
	HostID    [HostIDSize]uint8 `struc:"[16]uint8"`
	CntlID    uint16            `struc:"uint16,little"`
	Rsv4      [238]uint8        `struc:"[238]uint8"`
	SubsysNqn string            `struc:"[256]uint8"`
	HostNqn   string            `struc:"[256]uint8"`
	Rsv5      [256]uint8        `struc:"[256]uint8"`
}

// Byte offsets inside ConnectData, reported as IPO on connect failures.
const (
	ConnectDataHostIDOffset  uint16 = 0
	ConnectDataCntlIDOffset  uint16 = 16
	ConnectDataSubNqnOffset  uint16 = 256
	ConnectDataHostNqnOffset uint16 = 512
)

func (d *ConnectData) MarshalBinary() ([]byte, error) {
	if len(d.SubsysNqn) >= NQNSize || len(d.HostNqn) >= NQNSize {
		return nil, fmt.Errorf("nqn longer than %d bytes", NQNSize-1)
	}
	var buf bytes.Buffer
	if err := struc.Pack(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *ConnectData) UnmarshalBinary(data []byte) error {
	if len(data) < ConnectDataSize {
		return fmt.Errorf("connect data must be %d bytes, got %d", ConnectDataSize, len(data))
	}
	if err := struc.Unpack(bytes.NewReader(data[:ConnectDataSize]), d); err != nil {
		return err
	}
	// trim trailing zeroes
	d.SubsysNqn = strings.TrimRight(d.SubsysNqn, "\x00")
	d.HostNqn = strings.TrimRight(d.HostNqn, "\x00")
	return nil
}

type PropertySetCommand struct {
	Opcode    uint8     `struc:"uint8"`
	Resv1     uint8     `struc:"uint8"`
	CommandID uint16    `struc:"uint16,little"`
	FcType    uint8     `struc:"uint8"`
	Rsvd2     [35]uint8 `struc:"[35]uint8"`
	Attrib    uint8     `struc:"uint8"`
	Rsvd3     [3]uint8  `struc:"[3]uint8"`
	Offset    uint32    `struc:"uint32,little"`
	Value     uint64    `struc:"uint64,little"`
	Rsvd4     [8]uint8  `struc:"[8]uint8"`
}

func (cmd *PropertySetCommand) String() string {
	return fmt.Sprintf("%s, id: %#04x. property - %s(%#04x), Value: %#08x",
		reflect.TypeOf(cmd).String(), cmd.CommandID, RegisterName(cmd.Offset), cmd.Offset, cmd.Value)
}

type PropertyGetCommand struct {
	Opcode    uint8     `struc:"uint8"`
	Resv1     uint8     `struc:"uint8"`
	CommandID uint16    `struc:"uint16,little"`
	FcType    uint8     `struc:"uint8"`
	Rsvd2     [35]uint8 `struc:"[35]uint8"`
	Attrib    uint8     `struc:"uint8"`
	Rsvd3     [3]uint8  `struc:"[3]uint8"`
	Offset    uint32    `struc:"uint32,little"`
	Rsvd4     [16]uint8 `struc:"[16]uint8"`
}

func (cmd *PropertyGetCommand) String() string {
	return fmt.Sprintf("%s, id: %#04x. property - %s(%#04x)",
		reflect.TypeOf(cmd).String(), cmd.CommandID, RegisterName(cmd.Offset), cmd.Offset)
}

// PropertyValue returns the value a Property Get completion carries. 4 bytes
// wide properties only use the low dword.
func PropertyValue(c *Completion, offset uint32) uint64 {
	if IsProperty64Bit(offset) {
		return c.Result.U64()
	}
	return uint64(c.Result.U32())
}

// WireView returns the fabrics specific layout of a fabrics request, one of
// *ConnectCommand, *PropertyGetCommand or *PropertySetCommand.
func WireView(req *Request) (interface{}, error) {
	cmd := &req.Command
	if req.CommandSet != FabricsCommandSet || cmd.Opcode != FabricsCommand {
		return nil, &DecodeError{Set: req.CommandSet, Opcode: cmd.Opcode, Msg: "not a fabrics command"}
	}
	raw, err := cmd.MarshalBinary()
	if err != nil {
		return nil, err
	}
	var view interface{}
	switch FabricsType(cmd) {
	case FabricsTypeConnect:
		view = &ConnectCommand{}
	case FabricsTypePropertyGet:
		view = &PropertyGetCommand{}
	case FabricsTypePropertySet:
		view = &PropertySetCommand{}
	default:
		return nil, &DecodeError{Set: req.CommandSet, Opcode: cmd.Opcode, Msg: fmt.Sprintf("unknown fctype %#02x", FabricsType(cmd))}
	}
	if err := struc.Unpack(bytes.NewReader(raw), view); err != nil {
		return nil, err
	}
	return view, nil
}
