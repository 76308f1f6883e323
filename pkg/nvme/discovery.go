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

// SubsystemType (SUBTYPE): Specifies the type of the NVM subsystem that is indicated in this entry.
type SubsystemType uint8

const (
	// SubsystemTypeDiscovery - The entry describes a referral to another Discovery Service composed of
	// Discovery controllers for additional records.
	SubsystemTypeDiscovery SubsystemType = 0x1
	// SubsystemTypeNVMe - The entry describes an NVM subsystem that is not associated with
	// Discovery controllers and whose controllers may have attached
	// namespaces.
	SubsystemTypeNVMe SubsystemType = 0x2
)

func (t SubsystemType) String() string {
	switch t {
	case SubsystemTypeDiscovery:
		return "discovery"
	case SubsystemTypeNVMe:
		return "nvme"
	default:
		return "unknown"
	}
}

// Transport types (TRTYPE)
const (
	TrTypeRDMA uint8 = 0x1
	TrTypeFC   uint8 = 0x2
	TrTypeTCP  uint8 = 0x3
	TrTypeLoop uint8 = 0xfe
)

// Address families (ADRFAM)
const (
	AdrFamIPv4 uint8 = 0x1
	AdrFamIPv6 uint8 = 0x2
)

func TrTypeName(trtype uint8) string {
	switch trtype {
	case TrTypeRDMA:
		return "rdma"
	case TrTypeFC:
		return "fc"
	case TrTypeTCP:
		return "tcp"
	case TrTypeLoop:
		return "loop"
	default:
		return "unknown"
	}
}

// GetLogPageCommand is the SQE layout of a Get Log Page command.
type GetLogPageCommand struct {
	Opcode    uint8     `struc:"uint8"`
	Flags     uint8     `struc:"uint8"`
	CommandID uint16    `struc:"uint16,little"`
	NSID      uint32    `struc:"uint32,little"`
	Rsvd2     [2]uint32 `struc:"[2]uint32,little"`
	Metadata  uint64    `struc:"uint64,little"`
	Dptr      DataPtr
	Lid       uint8     `struc:"uint8"`
	Lsp       uint8     `struc:"uint8"`
	NumDl     uint16    `struc:"uint16,little"`
	NumDu     uint16    `struc:"uint16,little"`
	Lsi       uint16    `struc:"uint16,little"`
	Lpol      uint32    `struc:"uint32,little"`
	Lpou      uint32    `struc:"uint32,little"`
	Rsvd14    [2]uint32 `struc:"[2]uint32,little"`
}

func (cmd *GetLogPageCommand) String() string {
	return fmt.Sprintf("%s, id: %#04x. opcode: %s(%#02x). nsid: %d. lid: %s(%#02x)",
		reflect.TypeOf(cmd).String(), cmd.CommandID, OpcodeName(AdminCommandSet, cmd.Opcode, cmd.NSID),
		cmd.Opcode, cmd.NSID, LogPageName(cmd.Lid), cmd.Lid)
}

// LogPageLen returns the transfer length in bytes. The RAE bit shares the
// byte with LSP and is masked out.
func (cmd *GetLogPageCommand) LogPageLen() uint64 {
	return numdToBytes(uint32(cmd.NumDu)<<16 | uint32(cmd.NumDl))
}

func (cmd *GetLogPageCommand) LogPageOffset() uint64 {
	return join32Bits(cmd.Lpol, cmd.Lpou)
}

// Port describes the transport address a subsystem is reachable through.
type Port struct {
	TrAddr  string
	TrsvcID string
	TrType  uint8
	AdrFam  uint8
	Treq    uint8
	ID      uint16
	Tsas    [256]byte
}

// DiscRspPageHdr is the 1024 bytes header of the discovery log page.
type DiscRspPageHdr struct {
	GenCtr uint64      `struc:"uint64,little"`
	NumRec uint64      `struc:"uint64,little"`
	RecFmt uint16      `struc:"uint16,little"`
	Resv14 [1006]uint8 `struc:"[1006]uint8"`
}

// DiscoveryLogEntry is one 1024 bytes discovery log page record.
type DiscoveryLogEntry struct {
	TrType  uint8         `struc:"uint8"`
	AdrFam  uint8         `struc:"uint8"`
	SubType SubsystemType `struc:"uint8"`
	Treq    uint8         `struc:"uint8"`
	PortID  uint16        `struc:"uint16,little"`
	CntlID  uint16        `struc:"uint16,little"`
	Asqsz   uint16        `struc:"uint16,little"`
	Resv8   [22]uint8     `struc:"[22]uint8"`
	TrsvcID string        `struc:"[32]uint8"`
	Resv64  [192]uint8    `struc:"[192]uint8"`
	Subnqn  string        `struc:"[256]uint8"`
	Traddr  string        `struc:"[256]uint8"`
	Tsas    [256]uint8    `struc:"[256]uint8"`
}

const discoveryRecordSize = 1024

// NewDiscoveryLogEntry builds the record of a subsystem behind port. A zero
// AdrFam is derived from an IP literal TrAddr.
func NewDiscoveryLogEntry(port *Port, subsysNqn string, subType SubsystemType) *DiscoveryLogEntry {
	adrfam := port.AdrFam
	if adrfam == 0 {
		adrfam, _ = AddressFamily(port.TrAddr)
	}
	return &DiscoveryLogEntry{
		TrType:  port.TrType,
		AdrFam:  adrfam,
		Treq:    port.Treq,
		PortID:  port.ID,
		CntlID:  FabricsConnectDynamicCtrl,
		Asqsz:   AdminQueueDepth,
		SubType: subType,
		TrsvcID: port.TrsvcID,
		Traddr:  port.TrAddr,
		Tsas:    port.Tsas,
		Subnqn:  subsysNqn,
	}
}

func (e *DiscoveryLogEntry) String() string {
	return fmt.Sprintf("trtype: %s. subtype: %s. traddr: %s. trsvcid: %s. subnqn: %s",
		TrTypeName(e.TrType), e.SubType, e.Traddr, e.TrsvcID, e.Subnqn)
}

func (e *DiscoveryLogEntry) trim() {
	e.TrsvcID = strings.TrimRight(e.TrsvcID, "\x00 ")
	e.Traddr = strings.TrimRight(e.Traddr, "\x00 ")
	e.Subnqn = strings.TrimRight(e.Subnqn, "\x00")
}

// DiscoveryLog is a complete discovery log page.
type DiscoveryLog struct {
	GenCtr  uint64
	RecFmt  uint16
	Entries []*DiscoveryLogEntry
}

// MarshalBinary returns the header followed by every record.
func (l *DiscoveryLog) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	header := &DiscRspPageHdr{
		GenCtr: l.GenCtr,
		NumRec: uint64(len(l.Entries)),
		RecFmt: l.RecFmt,
	}
	if err := struc.Pack(&buf, header); err != nil {
		return nil, err
	}
	for _, entry := range l.Entries {
		if err := struc.Pack(&buf, entry); err != nil {
			return nil, fmt.Errorf("failed to write discovery log page entry: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Window returns length bytes of the log page starting at offset, the way a
// controller serves a Get Log Page for it. Bytes past the end of the log are
// zero.
func (l *DiscoveryLog) Window(offset uint64, length uint32) ([]byte, error) {
	full, err := l.MarshalBinary()
	if err != nil {
		return nil, err
	}
	window := make([]byte, length)
	if offset < uint64(len(full)) {
		copy(window, full[offset:])
	}
	return window, nil
}

// ParseDiscoveryLog decodes a discovery log page. A short buffer yields only
// the records it fully contains, NumRec tells how many there are in total.
func ParseDiscoveryLog(data []byte) (*DiscoveryLog, uint64, error) {
	if len(data) < discoveryRecordSize {
		return nil, 0, fmt.Errorf("discovery log page header needs %d bytes, got %d", discoveryRecordSize, len(data))
	}
	header := &DiscRspPageHdr{}
	if err := struc.Unpack(bytes.NewReader(data[:discoveryRecordSize]), header); err != nil {
		return nil, 0, err
	}
	log := &DiscoveryLog{GenCtr: header.GenCtr, RecFmt: header.RecFmt}
	rest := data[discoveryRecordSize:]
	for i := uint64(0); i < header.NumRec && len(rest) >= discoveryRecordSize; i++ {
		entry := &DiscoveryLogEntry{}
		if err := struc.Unpack(bytes.NewReader(rest[:discoveryRecordSize]), entry); err != nil {
			return nil, 0, err
		}
		entry.trim()
		log.Entries = append(log.Entries, entry)
		rest = rest[discoveryRecordSize:]
	}
	return log, header.NumRec, nil
}

// DiscoveryLogSize is the number of bytes needed to hold numRec records.
func DiscoveryLogSize(numRec uint64) uint32 {
	return uint32((numRec + 1) * discoveryRecordSize)
}
