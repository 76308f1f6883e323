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

	"github.com/lunixbochs/struc"
)

// StatusField is the 15 bit status of a completion without the phase tag.
//
//	bits 0-7   status code (SC)
//	bits 8-10  status code type (SCT)
//	bits 11-12 command retry delay (CRD)
//	bit  13    more (M)
//	bit  14    do not retry (DNR)
type StatusField uint16

const statusDNR StatusField = 1 << 14

func NewStatusField(sct, sc uint8, dnr bool) StatusField {
	v := Inject(0, 0, 8, uint32(sc))
	v = Inject(v, 8, 11, uint32(sct))
	if dnr {
		v = Inject(v, 14, 15, 1)
	}
	return StatusField(v)
}

func (s StatusField) SC() uint8  { return uint8(Extract(uint32(s), 0, 8)) }
func (s StatusField) SCT() uint8 { return uint8(Extract(uint32(s), 8, 11)) }
func (s StatusField) CRD() uint8 { return uint8(Extract(uint32(s), 11, 13)) }
func (s StatusField) More() bool { return Extract(uint32(s), 13, 14) == 1 }
func (s StatusField) DNR() bool  { return Extract(uint32(s), 14, 15) == 1 }

// IsSuccess is true when both the status code and its type are zero. CRD, M
// and DNR do not turn a successful completion into a failure.
func (s StatusField) IsSuccess() bool {
	return s.SC() == SCSuccess && s.SCT() == SCTGeneric
}

func (s StatusField) WithDNR() StatusField {
	return s | statusDNR
}

func (s StatusField) String() string {
	return fmt.Sprintf("%s(%#04x) sct: %#x sc: %#02x crd: %d more: %t dnr: %t",
		StatusName(s), uint16(s), s.SCT(), s.SC(), s.CRD(), s.More(), s.DNR())
}

// CompletionResult is the command specific dword 0 and dword 1.
type CompletionResult struct {
	Result [8]uint8 `struc:"[8]uint8"`
}

func (cqe *CompletionResult) U16() uint16 { return binary.LittleEndian.Uint16(cqe.Result[:2]) }
func (cqe *CompletionResult) U32() uint32 { return binary.LittleEndian.Uint32(cqe.Result[:4]) }
func (cqe *CompletionResult) U64() uint64 { return binary.LittleEndian.Uint64(cqe.Result[:]) }

func (cqe *CompletionResult) SetU16(result uint16) {
	binary.LittleEndian.PutUint16(cqe.Result[:2], result)
}

func (cqe *CompletionResult) SetU32(result uint32) {
	binary.LittleEndian.PutUint32(cqe.Result[:4], result)
}

func (cqe *CompletionResult) SetU64(result uint64) {
	binary.LittleEndian.PutUint64(cqe.Result[:], result)
}

// Completion is a 16 bytes completion queue entry.
type Completion struct {
	Result    CompletionResult
	SqHead    uint16 `struc:"uint16,little"`
	SqID      uint16 `struc:"uint16,little"`
	CommandID uint16 `struc:"uint16,little"`
	Status    uint16 `struc:"uint16,little"`
}

func NewCompletion(commandID uint16, sqID uint16, status StatusField) *Completion {
	c := &Completion{
		CommandID: commandID,
		Status:    uint16(status) << 1,
		SqID:      sqID,
	}
	return c
}

func (c *Completion) Phase() bool {
	return c.Status&0x1 == 1
}

func (c *Completion) SetPhase(phase bool) {
	c.Status &^= 0x1
	if phase {
		c.Status |= 0x1
	}
}

func (c *Completion) StatusField() StatusField {
	return StatusField(c.Status >> 1)
}

func (c *Completion) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.Pack(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Completion) UnmarshalBinary(data []byte) error {
	if len(data) != CompletionSize {
		return ErrShortCompletion
	}
	return struc.Unpack(bytes.NewReader(data), c)
}

func (c *Completion) String() string {
	return fmt.Sprintf("cqe id: %#04x. sqid: %d. sqhd: %d. result: %#016x. status: %s",
		c.CommandID, c.SqID, c.SqHead, c.Result.U64(), c.StatusField())
}

// NumberOfQueues is the dword 0 of Get/Set Features for FeatNumQueues. Both
// counts are zero based.
type NumberOfQueues struct {
	NSQ uint16
	NCQ uint16
}

func NumberOfQueuesFromResult(result uint32) NumberOfQueues {
	return NumberOfQueues{
		NSQ: uint16(Extract(result, 0, 16)),
		NCQ: uint16(Extract(result, 16, 32)),
	}
}

func (n NumberOfQueues) Dword() uint32 {
	return Inject(uint32(n.NSQ), 16, 32, uint32(n.NCQ))
}

// ConnectResponse is the command specific part of a Connect completion.
// On success it carries the controller id and the authentication request,
// on failure the invalid parameter offset and attributes.
type ConnectResponse struct {
	Success bool
	CntlID  uint16
	AuthReq uint16
	IPO     uint16
	IAttr   uint8
}

// Connect failure IATTR values
const (
	ConnectIAttrCommand uint8 = 0x0
	ConnectIAttrData    uint8 = 0x1
)

func ConnectResponseFromCompletion(c *Completion) ConnectResponse {
	dw0 := c.Result.U32()
	if c.StatusField().IsSuccess() {
		return ConnectResponse{
			Success: true,
			CntlID:  uint16(Extract(dw0, 0, 16)),
			AuthReq: uint16(Extract(dw0, 16, 32)),
		}
	}
	return ConnectResponse{
		IPO:   uint16(Extract(dw0, 0, 16)),
		IAttr: uint8(Extract(dw0, 16, 24)),
	}
}

func (r ConnectResponse) Dword() uint32 {
	if r.Success {
		return Inject(uint32(r.CntlID), 16, 32, uint32(r.AuthReq))
	}
	return Inject(uint32(r.IPO), 16, 24, uint32(r.IAttr))
}
