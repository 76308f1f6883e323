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

import "fmt"

func checkRange(start, end uint) {
	if start >= end || end > 32 {
		panic(fmt.Sprintf("nvme: invalid bit range [%d, %d)", start, end))
	}
}

func fieldMask(start, end uint) uint32 {
	return uint32((uint64(1) << (end - start)) - 1)
}

// Extract returns the bits [start, end) of value shifted down to bit 0.
func Extract(value uint32, start, end uint) uint32 {
	checkRange(start, end)
	return (value >> start) & fieldMask(start, end)
}

// Inject returns value with bits [start, end) replaced by field. Bits of field
// above the range width are dropped, all other bits of value are kept.
func Inject(value uint32, start, end uint, field uint32) uint32 {
	checkRange(start, end)
	mask := fieldMask(start, end)
	return (value &^ (mask << start)) | ((field & mask) << start)
}

// Dword0 is CDW0 of a submission queue entry.
//
//	bits 0-7   opcode
//	bits 8-9   fused operation
//	bits 14-15 PRP or SGL for data transfer (PSDT)
//	bits 16-31 command identifier
type Dword0 uint32

func (d Dword0) Opcode() uint8     { return uint8(Extract(uint32(d), 0, 8)) }
func (d Dword0) Fuse() uint8       { return uint8(Extract(uint32(d), 8, 10)) }
func (d Dword0) PSDT() uint8       { return uint8(Extract(uint32(d), 14, 16)) }
func (d Dword0) CommandID() uint16 { return uint16(Extract(uint32(d), 16, 32)) }

// Flags is the second byte of CDW0 as it is laid out in the SQE.
func (d Dword0) Flags() uint8 { return uint8(Extract(uint32(d), 8, 16)) }

func (d Dword0) WithOpcode(opcode uint8) Dword0 {
	return Dword0(Inject(uint32(d), 0, 8, uint32(opcode)))
}

func (d Dword0) WithFuse(fuse uint8) Dword0 {
	return Dword0(Inject(uint32(d), 8, 10, uint32(fuse)))
}

func (d Dword0) WithPSDT(psdt uint8) Dword0 {
	return Dword0(Inject(uint32(d), 14, 16, uint32(psdt)))
}

func (d Dword0) WithCommandID(cid uint16) Dword0 {
	return Dword0(Inject(uint32(d), 16, 32, uint32(cid)))
}

func lower32Bits(n uint64) uint32 {
	return uint32(n)
}

func upper32Bits(n uint64) uint32 {
	return uint32(n >> 32)
}

func join32Bits(low, high uint32) uint64 {
	return uint64(high)<<32 | uint64(low)
}
