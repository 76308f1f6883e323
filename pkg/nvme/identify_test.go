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
	"testing"

	"github.com/lunixbochs/struc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDCtrlLayout(t *testing.T) {
	id := &IDCtrl{
		VID:       0x1d0f,
		Sn:        "SN0001",
		Mn:        "compliance controller",
		Fr:        "1.0",
		CntlID:    0x12,
		Ver:       NVMeVersion(1, 4, 0),
		CntrlType: ControllerTypeIO,
		Aerl:      3,
		Kas:       10,
		Sqes:      0x66,
		Cqes:      0x44,
		Maxcmd:    128,
		Nn:        4,
		Sgls:      1,
		SubNqn:    "nqn.2016-01.com.lightbitslabs:uuid:0001",
		Ioccsz:    4,
		Iorcsz:    1,
	}
	raw, err := id.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, IdentifyDataSize)

	assert.Equal(t, uint16(0x1d0f), binary.LittleEndian.Uint16(raw[0:]))
	assert.Equal(t, []byte("SN0001"), raw[4:10])
	assert.Equal(t, uint16(0x12), binary.LittleEndian.Uint16(raw[78:]))
	assert.Equal(t, uint32(0x00010400), binary.LittleEndian.Uint32(raw[80:]))
	assert.Equal(t, ControllerTypeIO, raw[111])
	assert.Equal(t, uint8(3), raw[259])
	assert.Equal(t, uint16(10), binary.LittleEndian.Uint16(raw[320:]))
	assert.Equal(t, uint8(0x66), raw[512])
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(raw[516:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(raw[536:]))
	assert.Equal(t, []byte(id.SubNqn), raw[768:768+len(id.SubNqn)])
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(raw[1792:]))

	decoded := &IDCtrl{}
	require.NoError(t, decoded.UnmarshalBinary(raw))
	assert.Equal(t, id, decoded)
	assert.Equal(t, 4, decoded.MaxOutstandingAsyncEvents())

	major, minor, ter := decoded.Version()
	assert.Equal(t, uint16(1), major)
	assert.Equal(t, uint8(4), minor)
	assert.Equal(t, uint8(0), ter)

	assert.Error(t, decoded.UnmarshalBinary(raw[:100]))
}

func TestIdentifyCommandView(t *testing.T) {
	req := Build(Identify{CNS: CNSActiveNamespaceList, CNTID: 2, NSID: 7, NVMSetID: 1}, 9)
	raw, err := req.Command.MarshalBinary()
	require.NoError(t, err)

	view := &IdentifyCommand{}
	require.NoError(t, struc.Unpack(bytes.NewReader(raw), view))
	assert.Equal(t, uint32(7), view.NSID)
	assert.Equal(t, CNSActiveNamespaceList, view.Cns)
	assert.Equal(t, uint16(2), view.CntID)
	assert.Equal(t, uint16(1), view.NVMSetID)
	assert.Contains(t, view.String(), "nvme_admin_identify")
}

func TestActiveNamespaceList(t *testing.T) {
	list := NewActiveNamespaceList([]uint32{1, 2, 5})
	raw, err := list.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, IdentifyDataSize)
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(raw[8:]))

	decoded := &ActiveNamespaceList{}
	require.NoError(t, decoded.UnmarshalBinary(raw))
	assert.Equal(t, []uint32{1, 2, 5}, decoded.List())

	assert.Nil(t, (&ActiveNamespaceList{}).List())
}
