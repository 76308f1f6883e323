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
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/lunixbochs/struc"
)

const (
	CommandSize    = 64
	CompletionSize = 16
	PassthruSize   = 72
)

// SGL descriptor types (upper nibble of the descriptor type byte)
const (
	SGLFmtDataDesc         uint8 = 0x00
	SGLFmtSegDesc          uint8 = 0x02
	SGLFmtLastSegDesc      uint8 = 0x03
	SGLFmtKeyedDataDesc    uint8 = 0x04
	SGLFmtTransportDataDes uint8 = 0x05
)

// SGL descriptor sub types (lower nibble)
const (
	SGLFmtAddress    uint8 = 0x00
	SGLFmtOffset     uint8 = 0x01
	SGLFmtTransportA uint8 = 0x0a
	SGLFmtInvalidate uint8 = 0x0f
)

// PSDT values of CDW0 flags
const (
	PSDTPRP         uint8 = 0x0
	PSDTSGLBuffer   uint8 = 0x1
	PSDTSGLSegments uint8 = 0x2
)

// Command is a 64 bytes submission queue entry. Every opcode shares this
// layout, the meaning of cdw10-cdw15 depends on the opcode and the command
// set it is submitted to.
type Command struct {
	Opcode    uint8  `struc:"uint8"`
	Flags     uint8  `struc:"uint8"`
	CommandID uint16 `struc:"uint16,little"`
	NSID      uint32 `struc:"uint32,little"`
	Cdw2      uint32 `struc:"uint32,little"`
	Cdw3      uint32 `struc:"uint32,little"`
	Metadata  uint64 `struc:"uint64,little"`
	Dptr      DataPtr
	Cdw10     uint32 `struc:"uint32,little"`
	Cdw11     uint32 `struc:"uint32,little"`
	Cdw12     uint32 `struc:"uint32,little"`
	Cdw13     uint32 `struc:"uint32,little"`
	Cdw14     uint32 `struc:"uint32,little"`
	Cdw15     uint32 `struc:"uint32,little"`
}

func (cmd *Command) Dword0() Dword0 {
	return Dword0(uint32(cmd.Opcode) | uint32(cmd.Flags)<<8 | uint32(cmd.CommandID)<<16)
}

func (cmd *Command) SetDword0(d Dword0) {
	cmd.Opcode = d.Opcode()
	cmd.Flags = d.Flags()
	cmd.CommandID = d.CommandID()
}

func (cmd *Command) Fuse() uint8 { return cmd.Dword0().Fuse() }
func (cmd *Command) PSDT() uint8 { return cmd.Dword0().PSDT() }

func (cmd *Command) SetFuse(fuse uint8) { cmd.SetDword0(cmd.Dword0().WithFuse(fuse)) }
func (cmd *Command) SetPSDT(psdt uint8) { cmd.SetDword0(cmd.Dword0().WithPSDT(psdt)) }

// Dwords returns the raw 32 bit view of the entry.
func (cmd *Command) Dwords() [CommandSize / 4]uint32 {
	var dwords [CommandSize / 4]uint32
	raw, err := cmd.MarshalBinary()
	if err != nil {
		panic(err)
	}
	for i := range dwords {
		dwords[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return dwords
}

func (cmd *Command) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.Pack(&buf, cmd); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (cmd *Command) UnmarshalBinary(data []byte) error {
	if len(data) != CommandSize {
		return fmt.Errorf("submission queue entry must be %d bytes, got %d", CommandSize, len(data))
	}
	return struc.Unpack(bytes.NewReader(data), cmd)
}

func (cmd *Command) String() string {
	return fmt.Sprintf("%s, id: %#04x. opcode: %#02x. nsid: %#x. cdw10: %#08x. cdw11: %#08x. cdw12: %#08x",
		reflect.TypeOf(cmd).String(), cmd.CommandID, cmd.Opcode, cmd.NSID, cmd.Cdw10, cmd.Cdw11, cmd.Cdw12)
}

// DataPtr is the 16 bytes DPTR union. Part1 is always the address, Part2 is
// interpreted according to the view in use.
type DataPtr struct {
	Part1 uint64   `struc:"uint64,little"`
	Part2 [8]uint8 `struc:"[8]uint8"`
}

// SGLDescriptor is the DPTR interpreted as an NVMe SGL descriptor.
type SGLDescriptor struct {
	Addr   uint64
	Length uint32
	Type   uint8
}

func (dataPtr *DataPtr) PRP1() uint64 { return dataPtr.Part1 }

func (dataPtr *DataPtr) PRP2() uint64 {
	return binary.LittleEndian.Uint64(dataPtr.Part2[:])
}

func (dataPtr *DataPtr) SetPRP(prp1, prp2 uint64) {
	dataPtr.Part1 = prp1
	binary.LittleEndian.PutUint64(dataPtr.Part2[:], prp2)
}

// Addr, MetadataLen and DataLen are the passthru view of DPTR used by the
// kernel passthru ABI.
func (dataPtr *DataPtr) Addr() uint64 { return dataPtr.Part1 }

func (dataPtr *DataPtr) MetadataLen() uint32 {
	return binary.LittleEndian.Uint32(dataPtr.Part2[:4])
}

func (dataPtr *DataPtr) DataLen() uint32 {
	return binary.LittleEndian.Uint32(dataPtr.Part2[4:])
}

func (dataPtr *DataPtr) SetPassthru(addr uint64, metadataLen, dataLen uint32) {
	dataPtr.Part1 = addr
	binary.LittleEndian.PutUint32(dataPtr.Part2[:4], metadataLen)
	binary.LittleEndian.PutUint32(dataPtr.Part2[4:], dataLen)
}

func (dataPtr *DataPtr) SGL() SGLDescriptor {
	return SGLDescriptor{
		Addr:   dataPtr.Part1,
		Length: binary.LittleEndian.Uint32(dataPtr.Part2[:4]),
		Type:   dataPtr.Part2[7],
	}
}

func (dataPtr *DataPtr) SetSGL(desc SGLDescriptor) {
	dataPtr.Part1 = desc.Addr
	binary.LittleEndian.PutUint32(dataPtr.Part2[:4], desc.Length)
	dataPtr.Part2[4], dataPtr.Part2[5], dataPtr.Part2[6] = 0, 0, 0
	dataPtr.Part2[7] = desc.Type
}

// SetSgHostData describes data the transport carries in a separate PDU.
func (dataPtr *DataPtr) SetSgHostData(length uint32) {
	dataPtr.SetSGL(SGLDescriptor{Length: length, Type: SGLFmtTransportDataDes<<4 | SGLFmtTransportA})
}

// SetSgInline describes in-capsule data (the connect data for example).
func (dataPtr *DataPtr) SetSgInline(length uint32) {
	dataPtr.SetSGL(SGLDescriptor{Length: length, Type: SGLFmtDataDesc<<4 | SGLFmtOffset})
}

// DataDirection of a command as encoded by bits 1:0 of the opcode.
type DataDirection uint8

const (
	DataNone           DataDirection = 0x0
	DataToController   DataDirection = 0x1
	DataFromController DataDirection = 0x2
	DataBidirectional  DataDirection = 0x3
)

func OpcodeDirection(opcode uint8) DataDirection {
	return DataDirection(opcode & 0x3)
}

// Request is a command together with what travels alongside it: the data
// buffer, the timeout and the dword 0 result returned by the executor.
type Request struct {
	Command    Command
	CommandSet CommandSet
	Direction  DataDirection
	Data       []byte
	TimeoutMS  uint32
	Result     uint32
}

func (r *Request) CommandID() uint16 {
	return r.Command.CommandID
}

func (r *Request) Opcode() uint8 {
	return r.Command.Opcode
}

// IsWrite returns true when the data buffer is sent to the controller.
func (r *Request) IsWrite() bool {
	return r.Direction == DataToController
}

func (r *Request) String() string {
	return fmt.Sprintf("%s, id: %#04x. opcode: %s(%#02x). set: %s. nsid: %#x. data: %d",
		reflect.TypeOf(r).String(), r.Command.CommandID, OpcodeName(r.CommandSet, r.Command.Opcode, r.Command.NSID),
		r.Command.Opcode, r.CommandSet, r.Command.NSID, len(r.Data))
}

// PassthruCommand mirrors struct nvme_passthru_cmd of <linux/nvme_ioctl.h>.
// The command identifier is not part of it, the driver assigns one.
type PassthruCommand struct {
	Opcode      uint8  `struc:"uint8"`
	Flags       uint8  `struc:"uint8"`
	Rsvd1       uint16 `struc:"uint16,little"`
	NSID        uint32 `struc:"uint32,little"`
	Cdw2        uint32 `struc:"uint32,little"`
	Cdw3        uint32 `struc:"uint32,little"`
	Metadata    uint64 `struc:"uint64,little"`
	Addr        uint64 `struc:"uint64,little"`
	MetadataLen uint32 `struc:"uint32,little"`
	DataLen     uint32 `struc:"uint32,little"`
	Cdw10       uint32 `struc:"uint32,little"`
	Cdw11       uint32 `struc:"uint32,little"`
	Cdw12       uint32 `struc:"uint32,little"`
	Cdw13       uint32 `struc:"uint32,little"`
	Cdw14       uint32 `struc:"uint32,little"`
	Cdw15       uint32 `struc:"uint32,little"`
	TimeoutMS   uint32 `struc:"uint32,little"`
	Result      uint32 `struc:"uint32,little"`
}

func (p *PassthruCommand) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.Pack(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *PassthruCommand) UnmarshalBinary(data []byte) error {
	if len(data) != PassthruSize {
		return fmt.Errorf("passthru command must be %d bytes, got %d", PassthruSize, len(data))
	}
	return struc.Unpack(bytes.NewReader(data), p)
}

// Passthru returns the request in the kernel passthru layout. The data length
// is taken from the attached buffer when there is one.
func (r *Request) Passthru() *PassthruCommand {
	cmd := &r.Command
	dataLen := cmd.Dptr.DataLen()
	if r.Data != nil {
		dataLen = uint32(len(r.Data))
	}
	return &PassthruCommand{
		Opcode:      cmd.Opcode,
		Flags:       cmd.Flags,
		NSID:        cmd.NSID,
		Cdw2:        cmd.Cdw2,
		Cdw3:        cmd.Cdw3,
		Metadata:    cmd.Metadata,
		Addr:        cmd.Dptr.Addr(),
		MetadataLen: cmd.Dptr.MetadataLen(),
		DataLen:     dataLen,
		Cdw10:       cmd.Cdw10,
		Cdw11:       cmd.Cdw11,
		Cdw12:       cmd.Cdw12,
		Cdw13:       cmd.Cdw13,
		Cdw14:       cmd.Cdw14,
		Cdw15:       cmd.Cdw15,
		TimeoutMS:   r.TimeoutMS,
		Result:      r.Result,
	}
}

// CommandFromPassthru builds the SQE a driver would submit for p.
func CommandFromPassthru(p *PassthruCommand, cid uint16) Command {
	cmd := Command{
		Opcode:    p.Opcode,
		Flags:     p.Flags,
		CommandID: cid,
		NSID:      p.NSID,
		Cdw2:      p.Cdw2,
		Cdw3:      p.Cdw3,
		Metadata:  p.Metadata,
		Cdw10:     p.Cdw10,
		Cdw11:     p.Cdw11,
		Cdw12:     p.Cdw12,
		Cdw13:     p.Cdw13,
		Cdw14:     p.Cdw14,
		Cdw15:     p.Cdw15,
	}
	cmd.Dptr.SetPassthru(p.Addr, p.MetadataLen, p.DataLen)
	return cmd
}

func init() {
	for _, s := range []struct {
		v    interface{}
		size int
	}{
		{&Command{}, CommandSize},
		{&Completion{}, CompletionSize},
		{&PassthruCommand{}, PassthruSize},
		{&ConnectData{}, ConnectDataSize},
		{&IDCtrl{}, IdentifyDataSize},
	} {
		val, err := struc.Sizeof(s.v)
		if err != nil {
			panic(err)
		}
		if val != s.size {
			panic(fmt.Sprintf("%T is %d bytes, expected %d", s.v, val, s.size))
		}
	}
}
