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
	"fmt"
	"math"
)

// Intent is a command the harness wants to issue, described by its typed
// fields. The set of intents is closed, each one owns its view of cdw10-15.
type Intent interface {
	CommandSet() CommandSet
	Opcode() uint8
	encode(req *Request)
}

// Build encodes intent into a fresh request tagged with cid.
func Build(intent Intent, cid uint16) *Request {
	req := &Request{
		CommandSet: intent.CommandSet(),
		Direction:  OpcodeDirection(intent.Opcode()),
	}
	req.Command.Opcode = intent.Opcode()
	req.Command.CommandID = cid
	intent.encode(req)
	return req
}

// Identify, CNS selects the returned structure.
type Identify struct {
	CNS      uint8
	CNTID    uint16
	NSID     uint32
	NVMSetID uint16
}

func IdentifyController() Identify {
	return Identify{CNS: CNSController, NSID: NSIDNone}
}

// IdentifyActiveNamespaces lists active namespaces with an id above nsid.
func IdentifyActiveNamespaces(nsid uint32) Identify {
	return Identify{CNS: CNSActiveNamespaceList, NSID: nsid}
}

func (Identify) CommandSet() CommandSet { return AdminCommandSet }
func (Identify) Opcode() uint8          { return AdminIdentify }

func (i Identify) encode(req *Request) {
	cmd := &req.Command
	cmd.NSID = i.NSID
	cmd.Cdw10 = Inject(uint32(i.CNS), 16, 32, uint32(i.CNTID))
	cmd.Cdw11 = uint32(i.NVMSetID)
	req.Data = make([]byte, IdentifyDataSize)
}

func decodeIdentify(req *Request) Identify {
	cmd := &req.Command
	return Identify{
		CNS:      uint8(Extract(cmd.Cdw10, 0, 8)),
		CNTID:    uint16(Extract(cmd.Cdw10, 16, 32)),
		NSID:     cmd.NSID,
		NVMSetID: uint16(Extract(cmd.Cdw11, 0, 16)),
	}
}

// GetLogPage reads Length bytes of log LID starting at Offset.
type GetLogPage struct {
	LID    uint8
	LSP    uint8
	RAE    bool
	LSI    uint16
	NSID   uint32
	Length uint32
	Offset uint64
}

func NewGetLogPage(lid uint8, length uint32) GetLogPage {
	return GetLogPage{LID: lid, NSID: NSIDAll, Length: length}
}

func (GetLogPage) CommandSet() CommandSet { return AdminCommandSet }
func (GetLogPage) Opcode() uint8          { return AdminGetLogPage }

// Dwords returns cdw10 and cdw11. The zero based dword count is split in
// NUMDL (cdw10 bits 16-31) and NUMDU (cdw11 bits 0-15).
func (g GetLogPage) Dwords() (uint32, uint32) {
	if g.Length == 0 {
		panic("nvme: log page length must not be zero")
	}
	numd := bytesToNumd(g.Length)
	numdl := numd & 0xffff
	numdu := numd >> 16

	cdw10 := Inject(0, 0, 8, uint32(g.LID))
	cdw10 = Inject(cdw10, 8, 12, uint32(g.LSP))
	if g.RAE {
		cdw10 = Inject(cdw10, 15, 16, 1)
	}
	cdw10 = Inject(cdw10, 16, 32, numdl)
	cdw11 := Inject(numdu, 16, 32, uint32(g.LSI))
	return cdw10, cdw11
}

func (g GetLogPage) encode(req *Request) {
	cmd := &req.Command
	cmd.NSID = g.NSID
	cmd.Cdw10, cmd.Cdw11 = g.Dwords()
	cmd.Cdw12 = lower32Bits(g.Offset)
	cmd.Cdw13 = upper32Bits(g.Offset)
	req.Data = make([]byte, g.Length)
}

func decodeGetLogPage(req *Request) (GetLogPage, error) {
	cmd := &req.Command
	numd := Extract(cmd.Cdw11, 0, 16)<<16 | Extract(cmd.Cdw10, 16, 32)
	length := numdToBytes(numd)
	if length > math.MaxUint32 {
		return GetLogPage{}, &DecodeError{
			Set:    req.CommandSet,
			Opcode: cmd.Opcode,
			Msg:    fmt.Sprintf("log page length %d does not fit 32 bits", length),
			Err:    ErrLengthOverflow,
		}
	}
	return GetLogPage{
		LID:    uint8(Extract(cmd.Cdw10, 0, 8)),
		LSP:    uint8(Extract(cmd.Cdw10, 8, 12)),
		RAE:    Extract(cmd.Cdw10, 15, 16) == 1,
		LSI:    uint16(Extract(cmd.Cdw11, 16, 32)),
		NSID:   cmd.NSID,
		Length: uint32(length),
		Offset: join32Bits(cmd.Cdw12, cmd.Cdw13),
	}, nil
}

// Convert byte length to nvme's 0-based num dwords, a partial dword counts
// as a whole one.
func bytesToNumd(length uint32) uint32 {
	return uint32((uint64(length)+3)>>2) - 1
}

func numdToBytes(numd uint32) uint64 {
	return (uint64(numd) + 1) << 2
}

// GetFeatures reads feature FID. Value is sent in cdw11 for the features that
// take an argument.
type GetFeatures struct {
	FID     uint8
	Select  uint8
	NSID    uint32
	Value   uint32
	DataLen uint32
}

func NewGetFeatures(fid uint8) GetFeatures {
	return GetFeatures{FID: fid, NSID: NSIDAll}
}

func (GetFeatures) CommandSet() CommandSet { return AdminCommandSet }
func (GetFeatures) Opcode() uint8          { return AdminGetFeatures }

func (g GetFeatures) encode(req *Request) {
	cmd := &req.Command
	cmd.NSID = g.NSID
	cmd.Cdw10 = Inject(uint32(g.FID), 8, 11, uint32(g.Select))
	cmd.Cdw11 = g.Value
	if g.DataLen > 0 {
		req.Data = make([]byte, g.DataLen)
	}
}

func decodeGetFeatures(req *Request) GetFeatures {
	cmd := &req.Command
	return GetFeatures{
		FID:     uint8(Extract(cmd.Cdw10, 0, 8)),
		Select:  uint8(Extract(cmd.Cdw10, 8, 11)),
		NSID:    cmd.NSID,
		Value:   cmd.Cdw11,
		DataLen: uint32(len(req.Data)),
	}
}

// SetFeatures sets feature FID to Value, Save asks the controller to persist
// it across resets.
type SetFeatures struct {
	FID   uint8
	Save  bool
	NSID  uint32
	Value uint32
	Data  []byte
}

func NewSetFeatures(fid uint8, value uint32) SetFeatures {
	return SetFeatures{FID: fid, NSID: NSIDAll, Value: value}
}

// SetNumberOfQueues requests sq submission and cq completion I/O queues.
func SetNumberOfQueues(sq, cq uint16) SetFeatures {
	if sq == 0 || cq == 0 {
		panic("nvme: number of queues is one based and cannot be zero")
	}
	return NewSetFeatures(FeatNumQueues, NumberOfQueues{NSQ: sq - 1, NCQ: cq - 1}.Dword())
}

func (SetFeatures) CommandSet() CommandSet { return AdminCommandSet }
func (SetFeatures) Opcode() uint8          { return AdminSetFeatures }

func (s SetFeatures) encode(req *Request) {
	cmd := &req.Command
	cmd.NSID = s.NSID
	cmd.Cdw10 = uint32(s.FID)
	if s.Save {
		cmd.Cdw10 = Inject(cmd.Cdw10, 31, 32, 1)
	}
	cmd.Cdw11 = s.Value
	req.Data = s.Data
}

func decodeSetFeatures(req *Request) SetFeatures {
	cmd := &req.Command
	return SetFeatures{
		FID:   uint8(Extract(cmd.Cdw10, 0, 8)),
		Save:  Extract(cmd.Cdw10, 31, 32) == 1,
		NSID:  cmd.NSID,
		Value: cmd.Cdw11,
		Data:  req.Data,
	}
}

// PropertyWidth overrides the ATTRIB bit of a property command. With
// WidthAuto the bit follows the offset, the other values force it, which is
// how mismatched accesses are produced on purpose.
type PropertyWidth uint8

const (
	WidthAuto PropertyWidth = iota
	Width32
	Width64
)

func (w PropertyWidth) attrib(offset uint32) uint32 {
	switch w {
	case Width32:
		return 0
	case Width64:
		return 1
	default:
		return uint32(Attrib(offset))
	}
}

func widthFromAttrib(offset, attrib uint32) PropertyWidth {
	if attrib == uint32(Attrib(offset)) {
		return WidthAuto
	}
	if attrib == 1 {
		return Width64
	}
	return Width32
}

// PropertyGet reads the controller property at Offset.
type PropertyGet struct {
	Offset uint32
	Width  PropertyWidth
}

func (PropertyGet) CommandSet() CommandSet { return FabricsCommandSet }
func (PropertyGet) Opcode() uint8          { return FabricsCommand }

func (p PropertyGet) encode(req *Request) {
	cmd := &req.Command
	cmd.NSID = uint32(FabricsTypePropertyGet)
	cmd.Cdw10 = Inject(0, 0, 1, p.Width.attrib(p.Offset))
	cmd.Cdw11 = p.Offset
	req.Direction = DataNone
}

func decodePropertyGet(req *Request) PropertyGet {
	cmd := &req.Command
	return PropertyGet{
		Offset: cmd.Cdw11,
		Width:  widthFromAttrib(cmd.Cdw11, Extract(cmd.Cdw10, 0, 1)),
	}
}

// PropertySet writes Value to the controller property at Offset.
type PropertySet struct {
	Offset uint32
	Value  uint64
	Width  PropertyWidth
}

func (PropertySet) CommandSet() CommandSet { return FabricsCommandSet }
func (PropertySet) Opcode() uint8          { return FabricsCommand }

func (p PropertySet) encode(req *Request) {
	cmd := &req.Command
	cmd.NSID = uint32(FabricsTypePropertySet)
	cmd.Cdw10 = Inject(0, 0, 1, p.Width.attrib(p.Offset))
	cmd.Cdw11 = p.Offset
	cmd.Cdw12 = lower32Bits(p.Value)
	cmd.Cdw13 = upper32Bits(p.Value)
	req.Direction = DataNone
}

func decodePropertySet(req *Request) PropertySet {
	cmd := &req.Command
	return PropertySet{
		Offset: cmd.Cdw11,
		Value:  join32Bits(cmd.Cdw12, cmd.Cdw13),
		Width:  widthFromAttrib(cmd.Cdw11, Extract(cmd.Cdw10, 0, 1)),
	}
}

// Connect creates a queue on a fabrics controller. The connect data travels
// as the command payload.
type Connect struct {
	RecFmt uint16
	QID    uint16
	SQSize uint16
	CAttr  uint8
	KATO   uint32
	Data   ConnectData
}

func (Connect) CommandSet() CommandSet { return FabricsCommandSet }
func (Connect) Opcode() uint8          { return FabricsCommand }

func (c Connect) encode(req *Request) {
	cmd := &req.Command
	cmd.NSID = uint32(FabricsTypeConnect)
	cmd.Cdw10 = Inject(uint32(c.RecFmt), 16, 32, uint32(c.QID))
	cmd.Cdw11 = Inject(uint32(c.SQSize), 16, 24, uint32(c.CAttr))
	cmd.Cdw12 = c.KATO
	data := c.Data
	packed, err := data.MarshalBinary()
	if err != nil {
		panic(err)
	}
	req.Data = packed
	req.Direction = DataToController
}

func decodeConnect(req *Request) (Connect, error) {
	cmd := &req.Command
	c := Connect{
		RecFmt: uint16(Extract(cmd.Cdw10, 0, 16)),
		QID:    uint16(Extract(cmd.Cdw10, 16, 32)),
		SQSize: uint16(Extract(cmd.Cdw11, 0, 16)),
		CAttr:  uint8(Extract(cmd.Cdw11, 16, 24)),
		KATO:   cmd.Cdw12,
	}
	if len(req.Data) > 0 {
		if err := c.Data.UnmarshalBinary(req.Data); err != nil {
			return c, err
		}
	}
	return c, nil
}

// Read NLB logical blocks starting at SLBA. BlockSize sizes the data buffer
// and is not part of the command.
type Read struct {
	NSID      uint32
	SLBA      uint64
	NLB       uint32
	FUA       bool
	BlockSize uint32
}

func (Read) CommandSet() CommandSet { return IOCommandSet }
func (Read) Opcode() uint8          { return IORead }

func (r Read) encode(req *Request) {
	encodeRW(&req.Command, r.NSID, r.SLBA, r.NLB, r.FUA)
	if r.BlockSize > 0 {
		req.Data = make([]byte, r.NLB*r.BlockSize)
	}
}

// Write NLB logical blocks from Data starting at SLBA.
type Write struct {
	NSID uint32
	SLBA uint64
	NLB  uint32
	FUA  bool
	Data []byte
}

func (Write) CommandSet() CommandSet { return IOCommandSet }
func (Write) Opcode() uint8          { return IOWrite }

func (w Write) encode(req *Request) {
	encodeRW(&req.Command, w.NSID, w.SLBA, w.NLB, w.FUA)
	req.Data = w.Data
}

func encodeRW(cmd *Command, nsid uint32, slba uint64, nlb uint32, fua bool) {
	if nlb == 0 || nlb > 1<<16 {
		panic(fmt.Sprintf("nvme: number of logical blocks %d out of range [1, 65536]", nlb))
	}
	cmd.NSID = nsid
	cmd.Cdw10 = lower32Bits(slba)
	cmd.Cdw11 = upper32Bits(slba)
	cmd.Cdw12 = Inject(0, 0, 16, nlb-1)
	if fua {
		cmd.Cdw12 = Inject(cmd.Cdw12, 30, 31, 1)
	}
}

func decodeRW(cmd *Command) (nsid uint32, slba uint64, nlb uint32, fua bool) {
	return cmd.NSID, join32Bits(cmd.Cdw10, cmd.Cdw11), Extract(cmd.Cdw12, 0, 16) + 1, Extract(cmd.Cdw12, 30, 31) == 1
}

// Flush commits volatile data of namespace NSID.
type Flush struct {
	NSID uint32
}

func (Flush) CommandSet() CommandSet { return IOCommandSet }
func (Flush) Opcode() uint8          { return IOFlush }

func (f Flush) encode(req *Request) {
	req.Command.NSID = f.NSID
}

// AsyncEventRequest stays outstanding on the controller until an event
// occurs.
type AsyncEventRequest struct{}

func (AsyncEventRequest) CommandSet() CommandSet { return AdminCommandSet }
func (AsyncEventRequest) Opcode() uint8          { return AdminAsyncEvent }
func (AsyncEventRequest) encode(req *Request)    {}

type KeepAlive struct{}

func (KeepAlive) CommandSet() CommandSet { return AdminCommandSet }
func (KeepAlive) Opcode() uint8          { return AdminKeepAlive }
func (KeepAlive) encode(req *Request)    {}

// Decode maps a request back to the intent that produces it. The command set
// is needed to tell apart opcodes that are shared between sets.
func Decode(req *Request) (Intent, error) {
	cmd := &req.Command
	switch req.CommandSet {
	case AdminCommandSet:
		switch cmd.Opcode {
		case AdminIdentify:
			return decodeIdentify(req), nil
		case AdminGetLogPage:
			return decodeGetLogPage(req)
		case AdminGetFeatures:
			return decodeGetFeatures(req), nil
		case AdminSetFeatures:
			return decodeSetFeatures(req), nil
		case AdminAsyncEvent:
			return AsyncEventRequest{}, nil
		case AdminKeepAlive:
			return KeepAlive{}, nil
		}
	case IOCommandSet:
		switch cmd.Opcode {
		case IORead:
			nsid, slba, nlb, fua := decodeRW(cmd)
			r := Read{NSID: nsid, SLBA: slba, NLB: nlb, FUA: fua}
			if len(req.Data) > 0 {
				r.BlockSize = uint32(len(req.Data)) / nlb
			}
			return r, nil
		case IOWrite:
			nsid, slba, nlb, fua := decodeRW(cmd)
			return Write{NSID: nsid, SLBA: slba, NLB: nlb, FUA: fua, Data: req.Data}, nil
		case IOFlush:
			return Flush{NSID: cmd.NSID}, nil
		}
	case FabricsCommandSet:
		if cmd.Opcode != FabricsCommand {
			break
		}
		switch FabricsType(cmd) {
		case FabricsTypePropertyGet:
			return decodePropertyGet(req), nil
		case FabricsTypePropertySet:
			return decodePropertySet(req), nil
		case FabricsTypeConnect:
			return decodeConnect(req)
		}
		return nil, &DecodeError{Set: req.CommandSet, Opcode: cmd.Opcode, Msg: fmt.Sprintf("unknown fctype %#02x", FabricsType(cmd))}
	}
	return nil, &DecodeError{Set: req.CommandSet, Opcode: cmd.Opcode, Msg: "no such command"}
}

// FabricsType returns the FCTYPE byte of a fabrics command.
func FabricsType(cmd *Command) uint8 {
	return uint8(cmd.NSID & 0xff)
}
