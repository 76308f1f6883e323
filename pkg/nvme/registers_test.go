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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerConfiguration(t *testing.T) {
	cc, err := DecodeCC(0x00460001)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), cc.EN)
	assert.Equal(t, uint32(0), cc.CSS)
	assert.Equal(t, uint32(0), cc.MPS)
	assert.Equal(t, ShutdownNone, cc.SHN)
	assert.Equal(t, uint32(6), cc.IOSQES)
	assert.Equal(t, uint32(4), cc.IOCQES)

	cc.SHN = ShutdownNormal
	value, err := cc.Value()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00464001), value)
}

func TestControllerStatus(t *testing.T) {
	csts := &ControllerStatus{RDY: 1, SHST: ShutdownStatusComplete}
	value, err := csts.Value()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x9), value)

	decoded, err := DecodeCSTS(value)
	require.NoError(t, err)
	assert.Equal(t, csts, decoded)
}

func TestCapRegister(t *testing.T) {
	value := uint64(0x7f) | 1<<16 | 0x0f<<24 | 1<<37 | 4<<52
	capReg, err := DecodeCap(value)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7f), capReg.MQES)
	assert.Equal(t, uint32(1), capReg.CQR)
	assert.Equal(t, uint32(0x0f), capReg.TO)
	assert.Equal(t, uint32(0), capReg.DSTRD)
	assert.Equal(t, uint32(1), capReg.CSS)
	assert.Equal(t, uint32(0), capReg.MPSMIN)
	assert.Equal(t, uint32(4), capReg.MPSMAX)

	back, err := capReg.Value()
	require.NoError(t, err)
	assert.Equal(t, value, back)
}

func TestVersionRegister(t *testing.T) {
	vs, err := DecodeVersion(NVMeVersion(1, 4, 0))
	require.NoError(t, err)
	assert.Equal(t, "1.4.0", vs.String())

	value, err := vs.Value()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00010400), value)
}

func TestDecodeProperty(t *testing.T) {
	v, err := DecodeProperty(RegCSTS, 1)
	require.NoError(t, err)
	assert.IsType(t, &ControllerStatus{}, v)

	v, err = DecodeProperty(RegAQA, 0x001f001f)
	require.NoError(t, err)
	assert.Nil(t, v)
}
