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
	"strings"

	"github.com/lunixbochs/struc"
)

// IdentifyCommand is the SQE layout of an Identify command.
type IdentifyCommand struct {
	Opcode    uint8     `struc:"uint8"`
	Flags     uint8     `struc:"uint8"`
	CommandID uint16    `struc:"uint16,little"`
	NSID      uint32    `struc:"uint32,little"`
	Rsvd2     [2]uint32 `struc:"[2]uint32,little"`
	Metadata  uint64    `struc:"uint64,little"`
	Dptr      DataPtr
	Cns       uint8     `struc:"uint8"`
	Rsvd3     uint8     `struc:"uint8"`
	CntID     uint16    `struc:"uint16,little"`
	NVMSetID  uint16    `struc:"uint16,little"`
	Rsvd11    [18]uint8 `struc:"[18]uint8"`
}

func (cmd *IdentifyCommand) String() string {
	return fmt.Sprintf("%s, id: %#04x. opcode: %s(%#02x). nsid: %d. cns: %#02x",
		reflect.TypeOf(cmd).String(), cmd.CommandID, OpcodeName(AdminCommandSet, cmd.Opcode, cmd.NSID),
		cmd.Opcode, cmd.NSID, cmd.Cns)
}

// IDCtrl is the 4096 bytes Identify Controller data structure (CNS 01h).
type IDCtrl struct {
	VID       uint16      `struc:"uint16,little"`
	SSVID     uint16      `struc:"uint16,little"`
	Sn        string      `struc:"[20]uint8"`
	Mn        string      `struc:"[40]uint8"`
	Fr        string      `struc:"[8]uint8"`
	Rab       uint8       `struc:"uint8"`
	Ieee      [3]uint8    `struc:"[3]uint8"`
	Cmic      uint8       `struc:"uint8"`
	Mdts      uint8       `struc:"uint8"`
	CntlID    uint16      `struc:"uint16,little"`
	Ver       uint32      `struc:"uint32,little"`
	Rtd3r     uint32      `struc:"uint32,little"`
	Rtd3e     uint32      `struc:"uint32,little"`
	Oaes      uint32      `struc:"uint32,little"`
	CtrAtt    uint32      `struc:"uint32,little"`
	Rrls      uint16      `struc:"uint16,little"`
	Rsvd102   [9]uint8    `struc:"[9]uint8"`
	CntrlType uint8       `struc:"uint8"`
	FGUID     [16]uint8   `struc:"[16]uint8"`
	Crdt1     uint16      `struc:"uint16,little"`
	Crdt2     uint16      `struc:"uint16,little"`
	Crdt3     uint16      `struc:"uint16,little"`
	Rsvd134   [119]uint8  `struc:"[119]uint8"`
	Nvmsr     uint8       `struc:"uint8"`
	Vwci      uint8       `struc:"uint8"`
	Mec       uint8       `struc:"uint8"`
	Oacs      uint16      `struc:"uint16,little"`
	ACL       uint8       `struc:"uint8"`
	Aerl      uint8       `struc:"uint8"`
	Frmw      uint8       `struc:"uint8"`
	Lpa       uint8       `struc:"uint8"`
	Elpe      uint8       `struc:"uint8"`
	Npss      uint8       `struc:"uint8"`
	Avscc     uint8       `struc:"uint8"`
	Apsta     uint8       `struc:"uint8"`
	Wctemp    uint16      `struc:"uint16,little"`
	Cctemp    uint16      `struc:"uint16,little"`
	Mtfa      uint16      `struc:"uint16,little"`
	Hmpre     uint32      `struc:"uint32,little"`
	Hmmin     uint32      `struc:"uint32,little"`
	Tnvmcap   [16]uint8   `struc:"[16]uint8"`
	Unvmcap   [16]uint8   `struc:"[16]uint8"`
	Rpmbs     uint32      `struc:"uint32,little"`
	Edstt     uint16      `struc:"uint16,little"`
	Dsto      uint8       `struc:"uint8"`
	FwUg      uint8       `struc:"uint8"`
	Kas       uint16      `struc:"uint16,little"`
	Hctma     uint16      `struc:"uint16,little"`
	MntMt     uint16      `struc:"uint16,little"`
	MxtMt     uint16      `struc:"uint16,little"`
	Sancap    uint32      `struc:"uint32,little"`
	Hmminds   uint32      `struc:"uint32,little"`
	Hmmaxd    uint16      `struc:"uint16,little"`
	NSetIDMax uint16      `struc:"uint16,little"`
	EndGIDMax uint16      `struc:"uint16,little"`
	Anatt     uint8       `struc:"uint8"`
	AnaCap    uint8       `struc:"uint8"`
	AnaGrpMax uint32      `struc:"uint32,little"`
	AnaGrpID  uint32      `struc:"uint32,little"`
	Pels      uint32      `struc:"uint32,little"`
	Rsvd356   [156]uint8  `struc:"[156]uint8"`
	Sqes      uint8       `struc:"uint8"`
	Cqes      uint8       `struc:"uint8"`
	Maxcmd    uint16      `struc:"uint16,little"`
	Nn        uint32      `struc:"uint32,little"`
	Oncs      uint16      `struc:"uint16,little"`
	Fuses     uint16      `struc:"uint16,little"`
	Fna       uint8       `struc:"uint8"`
	Vwc       uint8       `struc:"uint8"`
	Awun      uint16      `struc:"uint16,little"`
	AwUpf     uint16      `struc:"uint16,little"`
	Nvscc     uint8       `struc:"uint8"`
	Nwpc      uint8       `struc:"uint8"`
	Acwu      uint16      `struc:"uint16,little"`
	Rsvd534   [2]uint8    `struc:"[2]uint8"`
	Sgls      uint32      `struc:"uint32,little"`
	Mnan      uint32      `struc:"uint32,little"`
	Rsvd544   [224]uint8  `struc:"[224]uint8"`
	SubNqn    string      `struc:"[256]uint8"`
	Rsvd1024  [768]uint8  `struc:"[768]uint8"`
	Ioccsz    uint32      `struc:"uint32,little"`
	Iorcsz    uint32      `struc:"uint32,little"`
	IodOff    uint16      `struc:"uint16,little"`
	CtrlAttr  uint8       `struc:"uint8"`
	Msdbd     uint8       `struc:"uint8"`
	Rsvd1804  [244]uint8  `struc:"[244]uint8"`
	Psd       [1024]uint8 `struc:"[1024]uint8"`
	VS        [1024]uint8 `struc:"[1024]uint8"`
}

// Controller types reported in CNTRLTYPE
const (
	ControllerTypeIO        uint8 = 0x1
	ControllerTypeDiscovery uint8 = 0x2
	ControllerTypeAdmin     uint8 = 0x3
)

func (id *IDCtrl) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.Pack(&buf, id); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (id *IDCtrl) UnmarshalBinary(data []byte) error {
	if len(data) < IdentifyDataSize {
		return fmt.Errorf("identify controller data must be %d bytes, got %d", IdentifyDataSize, len(data))
	}
	if err := struc.Unpack(bytes.NewReader(data[:IdentifyDataSize]), id); err != nil {
		return err
	}
	// ascii fields are space padded, nqn is zero padded
	id.Sn = strings.TrimRight(id.Sn, " \x00")
	id.Mn = strings.TrimRight(id.Mn, " \x00")
	id.Fr = strings.TrimRight(id.Fr, " \x00")
	id.SubNqn = strings.TrimRight(id.SubNqn, "\x00")
	return nil
}

// Version returns the major, minor and tertiary version of VER.
func (id *IDCtrl) Version() (uint16, uint8, uint8) {
	return uint16(Extract(id.Ver, 16, 32)), uint8(Extract(id.Ver, 8, 16)), uint8(Extract(id.Ver, 0, 8))
}

// MaxOutstandingAsyncEvents is AERL as a count, AERL is zero based.
func (id *IDCtrl) MaxOutstandingAsyncEvents() int {
	return int(id.Aerl) + 1
}

// NVMeVersion encodes a version the way VER and the VS property hold it.
func NVMeVersion(major uint16, minor, tertiary uint8) uint32 {
	return uint32(major)<<16 | uint32(minor)<<8 | uint32(tertiary)
}

// ActiveNamespaceList is the CNS 02h response, a zero terminated list of up
// to 1024 increasing namespace ids.
type ActiveNamespaceList struct {
	NSIDs [IdentifyDataSize / 4]uint32 `struc:"[1024]uint32,little"`
}

func NewActiveNamespaceList(nsids []uint32) *ActiveNamespaceList {
	l := &ActiveNamespaceList{}
	copy(l.NSIDs[:], nsids)
	return l
}

// List returns the namespace ids up to the first zero entry.
func (l *ActiveNamespaceList) List() []uint32 {
	var nsids []uint32
	for _, nsid := range l.NSIDs {
		if nsid == 0 {
			break
		}
		nsids = append(nsids, nsid)
	}
	return nsids
}

func (l *ActiveNamespaceList) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.Pack(&buf, l); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (l *ActiveNamespaceList) UnmarshalBinary(data []byte) error {
	if len(data) < IdentifyDataSize {
		return fmt.Errorf("namespace list must be %d bytes, got %d", IdentifyDataSize, len(data))
	}
	return struc.Unpack(bytes.NewReader(data[:IdentifyDataSize]), l)
}
