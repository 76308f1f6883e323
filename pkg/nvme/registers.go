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

	"github.com/HewlettPackard/structex"
)

// CapRegister - Controller Capabilities (CAP), offset 00h, 8 bytes.
type CapRegister struct {
	MQES   uint32 `bitfield:"16"` // Maximum Queue Entries Supported, zero based
	CQR    uint32 `bitfield:"1"`  // Contiguous Queues Required
	AMS    uint32 `bitfield:"2"`  // Arbitration Mechanism Supported
	Rsvd19 uint32 `bitfield:"5,reserved"`
	TO     uint32 `bitfield:"8"` // Timeout, in 500 ms units

	DSTRD  uint32 `bitfield:"4"` // Doorbell Stride
	NSSRS  uint32 `bitfield:"1"` // NVM Subsystem Reset Supported
	CSS    uint32 `bitfield:"8"` // Command Sets Supported
	BPS    uint32 `bitfield:"1"` // Boot Partition Support
	Rsvd46 uint32 `bitfield:"2,reserved"`
	MPSMIN uint32 `bitfield:"4"` // Memory Page Size Minimum
	MPSMAX uint32 `bitfield:"4"` // Memory Page Size Maximum
	PMRS   uint32 `bitfield:"1"`
	CMBS   uint32 `bitfield:"1"`
	Rsvd58 uint32 `bitfield:"6,reserved"`
}

// VersionRegister - Version (VS), offset 08h.
type VersionRegister struct {
	TER uint32 `bitfield:"8"`
	MNR uint32 `bitfield:"8"`
	MJR uint32 `bitfield:"16"`
}

// Shutdown notification values of CC.SHN
const (
	ShutdownNone   uint32 = 0x0
	ShutdownNormal uint32 = 0x1
	ShutdownAbrupt uint32 = 0x2
)

// Shutdown status values of CSTS.SHST
const (
	ShutdownStatusNormal    uint32 = 0x0
	ShutdownStatusOccurring uint32 = 0x1
	ShutdownStatusComplete  uint32 = 0x2
)

// ControllerConfiguration - CC, offset 14h.
type ControllerConfiguration struct {
	EN     uint32 `bitfield:"1"` // Enable
	Rsvd1  uint32 `bitfield:"3,reserved"`
	CSS    uint32 `bitfield:"3"` // I/O Command Set Selected
	MPS    uint32 `bitfield:"4"` // Memory Page Size
	AMS    uint32 `bitfield:"3"` // Arbitration Mechanism Selected
	SHN    uint32 `bitfield:"2"` // Shutdown Notification
	IOSQES uint32 `bitfield:"4"` // I/O Submission Queue Entry Size
	IOCQES uint32 `bitfield:"4"` // I/O Completion Queue Entry Size
	Rsvd24 uint32 `bitfield:"8,reserved"`
}

// ControllerStatus - CSTS, offset 1Ch.
type ControllerStatus struct {
	RDY   uint32 `bitfield:"1"` // Ready
	CFS   uint32 `bitfield:"1"` // Controller Fatal Status
	SHST  uint32 `bitfield:"2"` // Shutdown Status
	NSSRO uint32 `bitfield:"1"` // NVM Subsystem Reset Occurred
	PP    uint32 `bitfield:"1"` // Processing Paused
	Rsvd6 uint32 `bitfield:"26,reserved"`
}

func decodeRegister(value uint64, size int, reg interface{}) error {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, value)
	return structex.DecodeByteBuffer(bytes.NewBuffer(raw[:size]), reg)
}

func encodeRegister(reg interface{}) (uint64, error) {
	raw, err := structex.EncodeByteBuffer(reg)
	if err != nil {
		return 0, err
	}
	padded := make([]byte, 8)
	copy(padded, raw)
	return binary.LittleEndian.Uint64(padded), nil
}

func DecodeCap(value uint64) (*CapRegister, error) {
	reg := &CapRegister{}
	if err := decodeRegister(value, 8, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (reg *CapRegister) Value() (uint64, error) {
	return encodeRegister(reg)
}

func DecodeVersion(value uint32) (*VersionRegister, error) {
	reg := &VersionRegister{}
	if err := decodeRegister(uint64(value), 4, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (reg *VersionRegister) Value() (uint32, error) {
	v, err := encodeRegister(reg)
	return uint32(v), err
}

func (reg *VersionRegister) String() string {
	return fmt.Sprintf("%d.%d.%d", reg.MJR, reg.MNR, reg.TER)
}

func DecodeCC(value uint32) (*ControllerConfiguration, error) {
	reg := &ControllerConfiguration{}
	if err := decodeRegister(uint64(value), 4, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (reg *ControllerConfiguration) Value() (uint32, error) {
	v, err := encodeRegister(reg)
	return uint32(v), err
}

func DecodeCSTS(value uint32) (*ControllerStatus, error) {
	reg := &ControllerStatus{}
	if err := decodeRegister(uint64(value), 4, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (reg *ControllerStatus) Value() (uint32, error) {
	v, err := encodeRegister(reg)
	return uint32(v), err
}

// DecodeProperty returns the typed view of a property value for the
// registers that have one, nil otherwise.
func DecodeProperty(offset uint32, value uint64) (interface{}, error) {
	switch offset {
	case RegCAP:
		return DecodeCap(value)
	case RegVS:
		return DecodeVersion(uint32(value))
	case RegCC:
		return DecodeCC(uint32(value))
	case RegCSTS:
		return DecodeCSTS(uint32(value))
	default:
		return nil, nil
	}
}
