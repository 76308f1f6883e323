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

// CommandSet selects which submission queue a command belongs to. The same
// opcode value means different things in different sets (0x02 is Get Log Page
// on the admin queue and Read on an I/O queue).
type CommandSet uint8

const (
	AdminCommandSet CommandSet = iota
	IOCommandSet
	FabricsCommandSet
)

func (s CommandSet) String() string {
	switch s {
	case AdminCommandSet:
		return "admin"
	case IOCommandSet:
		return "io"
	case FabricsCommandSet:
		return "fabrics"
	default:
		return "unknown"
	}
}

// Admin command set opcodes (<linux/nvme.h> enum nvme_admin_opcode)
const (
	AdminDeleteSQ    uint8 = 0x00
	AdminCreateSQ    uint8 = 0x01
	AdminGetLogPage  uint8 = 0x02
	AdminDeleteCQ    uint8 = 0x04
	AdminCreateCQ    uint8 = 0x05
	AdminIdentify    uint8 = 0x06
	AdminAbort       uint8 = 0x08
	AdminSetFeatures uint8 = 0x09
	AdminGetFeatures uint8 = 0x0a
	AdminAsyncEvent  uint8 = 0x0c
	AdminNSMgmt      uint8 = 0x0d
	AdminKeepAlive   uint8 = 0x18
)

// NVM command set opcodes
const (
	IOFlush uint8 = 0x00
	IOWrite uint8 = 0x01
	IORead  uint8 = 0x02
)

// FabricsCommand is the single opcode shared by all fabrics commands, the
// FCTYPE byte selects the actual command.
const FabricsCommand uint8 = 0x7f

// Fabrics command types. FCTYPE occupies byte 4 of the SQE, the same byte as
// the low byte of NSID, which is how passthru tools carry it.
const (
	FabricsTypePropertySet    uint8  = 0x00
	FabricsTypeConnect        uint8  = 0x01
	FabricsTypePropertyGet    uint8  = 0x04
	FabricsTypeAuthSend       uint8  = 0x05
	FabricsTypeAuthReceive    uint8  = 0x06
	FabricsTypeDisconnect     uint8  = 0x08
	FabricsConnectRecFmt      uint16 = 0x0
	FabricsConnectDynamicCtrl uint16 = 0xffff
)

// Namespace identifier sentinels
const (
	NSIDNone uint32 = 0x0
	NSIDAll  uint32 = 0xffffffff
)

// Identify CNS values
const (
	CNSNamespace           uint8 = 0x00
	CNSController          uint8 = 0x01
	CNSActiveNamespaceList uint8 = 0x02
	CNSNamespaceDescList   uint8 = 0x03
)

const IdentifyDataSize = 4096

// Log page identifiers
const (
	LogError            uint8 = 0x01
	LogSmart            uint8 = 0x02
	LogFirmwareSlot     uint8 = 0x03
	LogChangedNamespace uint8 = 0x04
	LogCommandEffects   uint8 = 0x05
	LogDeviceSelfTest   uint8 = 0x06
	LogTelemetryHost    uint8 = 0x07
	LogTelemetryCtrl    uint8 = 0x08
	LogANA              uint8 = 0x0c
	LogDiscovery        uint8 = 0x70
	LogReservation      uint8 = 0x80
	LogSanitize         uint8 = 0x81
	NoLogSpecificField  uint8 = 0x0
)

const (
	errorLogEntrySize   = 64
	smartLogSize        = 512
	firmwareSlotLogSize = 512
)

// Feature identifiers
const (
	FeatArbitration      uint8 = 0x01
	FeatPowerManagement  uint8 = 0x02
	FeatLBARange         uint8 = 0x03
	FeatTempThreshold    uint8 = 0x04
	FeatErrorRecovery    uint8 = 0x05
	FeatVolatileWC       uint8 = 0x06
	FeatNumQueues        uint8 = 0x07
	FeatIRQCoalesce      uint8 = 0x08
	FeatIRQConfig        uint8 = 0x09
	FeatWriteAtomic      uint8 = 0x0a
	FeatAsyncEvent       uint8 = 0x0b
	FeatAutoPST          uint8 = 0x0c
	FeatHostMemBuf       uint8 = 0x0d
	FeatTimestamp        uint8 = 0x0e
	FeatKATO             uint8 = 0x0f
	FeatHostID           uint8 = 0x81
	FeatReservationMask  uint8 = 0x82
	FeatReservationPersi uint8 = 0x83
)

// Get Features select field (cdw10 bits 8-10)
const (
	FeatSelectCurrent   uint8 = 0x0
	FeatSelectDefault   uint8 = 0x1
	FeatSelectSaved     uint8 = 0x2
	FeatSelectSupported uint8 = 0x3
)

// Status code types
const (
	SCTGeneric         uint8 = 0x0
	SCTCommandSpecific uint8 = 0x1
	SCTMediaError      uint8 = 0x2
	SCTPathRelated     uint8 = 0x3
	SCTVendorSpecific  uint8 = 0x7
)

// Generic command status codes (SCT 0)
const (
	SCSuccess             uint8 = 0x00
	SCInvalidOpcode       uint8 = 0x01
	SCInvalidField        uint8 = 0x02
	SCCommandIDConflict   uint8 = 0x03
	SCDataTransferError   uint8 = 0x04
	SCPowerLoss           uint8 = 0x05
	SCInternal            uint8 = 0x06
	SCAbortRequested      uint8 = 0x07
	SCAbortQueue          uint8 = 0x08
	SCFusedFail           uint8 = 0x09
	SCFusedMissing        uint8 = 0x0a
	SCInvalidNamespace    uint8 = 0x0b
	SCCommandSeqError     uint8 = 0x0c
	SCSGLInvalidLast      uint8 = 0x0d
	SCSGLInvalidCount     uint8 = 0x0e
	SCSGLInvalidData      uint8 = 0x0f
	SCSGLInvalidMetadata  uint8 = 0x10
	SCSGLInvalidType      uint8 = 0x11
	SCSGLInvalidOffset    uint8 = 0x16
	SCHostIDInconsistent  uint8 = 0x18
	SCKATOExpired         uint8 = 0x19
	SCKATOInvalid         uint8 = 0x1a
	SCNamespaceNotReady   uint8 = 0x82
	SCLBARange            uint8 = 0x80
	SCCapacityExceeded    uint8 = 0x81
	SCReservationConflict uint8 = 0x83
	SCFormatInProgress    uint8 = 0x84
)

// Command specific status codes (SCT 1)
const (
	SCCQInvalid            uint8 = 0x00
	SCQIDInvalid           uint8 = 0x01
	SCQueueSize            uint8 = 0x02
	SCAbortLimit           uint8 = 0x03
	SCAsyncLimit           uint8 = 0x05
	SCFirmwareSlot         uint8 = 0x06
	SCFirmwareImage        uint8 = 0x07
	SCInvalidLogPage       uint8 = 0x09
	SCFeatureNotSaveable   uint8 = 0x0d
	SCFeatureNotChangeable uint8 = 0x0e
	SCConnectFormat        uint8 = 0x80
	SCConnectCtrlBusy      uint8 = 0x81
	SCConnectInvalidParam  uint8 = 0x82
	SCConnectRestartDisc   uint8 = 0x83
	SCConnectInvalidHost   uint8 = 0x84
	SCDiscoveryRestart     uint8 = 0x90
	SCAuthRequired         uint8 = 0x91
)

// Connect attributes (CATTR)
const (
	ConnectAttrPriorityClassMask uint8 = 0x3
	ConnectAttrDisableSQFlow     uint8 = 1 << 2
)

// Keep alive defaults in milliseconds
const (
	KATODefault     uint32 = 120000
	KATONonZero     uint32 = 60000
	AdminQueueDepth uint16 = 32
)

// Field widths of fabrics structures
const (
	NQNSize         = 256
	HostIDSize      = 16
	TrsvcIDSize     = 32
	TraddrSize      = 256
	ConnectDataSize = 1024
)

// DiscoverySubsysName name of discovery subsystem
const DiscoverySubsysName string = "nqn.2014-08.org.nvmexpress.discovery"
