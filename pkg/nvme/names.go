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

// OpcodeName returns a printable name of opcode within set. For fabrics
// commands nsid carries the FCTYPE.
func OpcodeName(set CommandSet, opcode uint8, nsid uint32) string {
	var name string
	switch set {
	case AdminCommandSet:
		switch opcode {
		case AdminDeleteSQ:
			name = "nvme_admin_delete_sq"
		case AdminCreateSQ:
			name = "nvme_admin_create_sq"
		case AdminGetLogPage:
			name = "nvme_admin_get_log_page"
		case AdminDeleteCQ:
			name = "nvme_admin_delete_cq"
		case AdminCreateCQ:
			name = "nvme_admin_create_cq"
		case AdminIdentify:
			name = "nvme_admin_identify"
		case AdminAbort:
			name = "nvme_admin_abort_cmd"
		case AdminSetFeatures:
			name = "nvme_admin_set_features"
		case AdminGetFeatures:
			name = "nvme_admin_get_features"
		case AdminAsyncEvent:
			name = "nvme_admin_async_event"
		case AdminNSMgmt:
			name = "nvme_admin_ns_mgmt"
		case AdminKeepAlive:
			name = "nvme_admin_keep_alive"
		default:
			name = "UNKNOWN"
		}
	case IOCommandSet:
		switch opcode {
		case IOFlush:
			name = "nvme_cmd_flush"
		case IOWrite:
			name = "nvme_cmd_write"
		case IORead:
			name = "nvme_cmd_read"
		default:
			name = "UNKNOWN"
		}
	case FabricsCommandSet:
		if opcode != FabricsCommand {
			return "UNKNOWN"
		}
		switch uint8(nsid & 0xff) {
		case FabricsTypePropertySet:
			name = "nvme_fabrics_type_property_set"
		case FabricsTypeConnect:
			name = "nvme_fabrics_type_connect"
		case FabricsTypePropertyGet:
			name = "nvme_fabrics_type_property_get"
		case FabricsTypeAuthSend:
			name = "nvme_fabrics_type_auth_send"
		case FabricsTypeAuthReceive:
			name = "nvme_fabrics_type_auth_receive"
		case FabricsTypeDisconnect:
			name = "nvme_fabrics_type_disconnect"
		default:
			name = "nvme_fabrics_command"
		}
	default:
		name = "UNKNOWN"
	}
	return name
}

var genericStatusNames = map[uint8]string{
	SCSuccess:             "SUCCESS",
	SCInvalidOpcode:       "INVALID_OPCODE",
	SCInvalidField:        "INVALID_FIELD",
	SCCommandIDConflict:   "CMDID_CONFLICT",
	SCDataTransferError:   "DATA_XFER_ERROR",
	SCPowerLoss:           "POWER_LOSS",
	SCInternal:            "INTERNAL",
	SCAbortRequested:      "ABORT_REQ",
	SCAbortQueue:          "ABORT_QUEUE",
	SCFusedFail:           "FUSED_FAIL",
	SCFusedMissing:        "FUSED_MISSING",
	SCInvalidNamespace:    "INVALID_NS",
	SCCommandSeqError:     "CMD_SEQ_ERROR",
	SCSGLInvalidLast:      "SGL_INVALID_LAST",
	SCSGLInvalidCount:     "SGL_INVALID_COUNT",
	SCSGLInvalidData:      "SGL_INVALID_DATA",
	SCSGLInvalidMetadata:  "SGL_INVALID_METADATA",
	SCSGLInvalidType:      "SGL_INVALID_TYPE",
	SCSGLInvalidOffset:    "SGL_INVALID_OFFSET",
	SCHostIDInconsistent:  "HOSTID_INCONSISTENT",
	SCKATOExpired:         "KA_TIMEOUT_EXPIRED",
	SCKATOInvalid:         "KA_TIMEOUT_INVALID",
	SCLBARange:            "LBA_RANGE",
	SCCapacityExceeded:    "CAP_EXCEEDED",
	SCNamespaceNotReady:   "NS_NOT_READY",
	SCReservationConflict: "RESERVATION_CONFLICT",
	SCFormatInProgress:    "FORMAT_IN_PROGRESS",
}

var commandSpecificStatusNames = map[uint8]string{
	SCCQInvalid:            "CQ_INVALID",
	SCQIDInvalid:           "QID_INVALID",
	SCQueueSize:            "QUEUE_SIZE",
	SCAbortLimit:           "ABORT_LIMIT",
	SCAsyncLimit:           "ASYNC_LIMIT",
	SCFirmwareSlot:         "FIRMWARE_SLOT",
	SCFirmwareImage:        "FIRMWARE_IMAGE",
	SCInvalidLogPage:       "INVALID_LOG_PAGE",
	SCFeatureNotSaveable:   "FEATURE_NOT_SAVEABLE",
	SCFeatureNotChangeable: "FEATURE_NOT_CHANGEABLE",
	SCConnectFormat:        "CONNECT_FORMAT",
	SCConnectCtrlBusy:      "CONNECT_CTRL_BUSY",
	SCConnectInvalidParam:  "CONNECT_INVALID_PARAM",
	SCConnectRestartDisc:   "CONNECT_RESTART_DISC",
	SCConnectInvalidHost:   "CONNECT_INVALID_HOST",
	SCDiscoveryRestart:     "DISCOVERY_RESTART",
	SCAuthRequired:         "AUTH_REQUIRED",
}

// StatusName returns the short name of the SCT/SC pair of s.
func StatusName(s StatusField) string {
	var names map[uint8]string
	switch s.SCT() {
	case SCTGeneric:
		names = genericStatusNames
	case SCTCommandSpecific:
		names = commandSpecificStatusNames
	case SCTMediaError:
		return "MEDIA_ERROR"
	case SCTPathRelated:
		return "PATH_ERROR"
	case SCTVendorSpecific:
		return "VENDOR_SPECIFIC"
	default:
		return "UNKNOWN"
	}
	if name, ok := names[s.SC()]; ok {
		return name
	}
	return "UNKNOWN"
}

func LogPageName(logID uint8) string {
	var logPageName string
	switch logID {
	case LogError:
		logPageName = "Error Information"
	case LogSmart:
		logPageName = "SMART / Health Information"
	case LogFirmwareSlot:
		logPageName = "Firmware Slot Information"
	case LogChangedNamespace:
		logPageName = "Changed Namespace List"
	case LogCommandEffects:
		logPageName = "Commands Supported and Effects"
	case LogDeviceSelfTest:
		logPageName = "Device Self-test"
	case LogTelemetryHost:
		logPageName = "Telemetry Host-Initiated"
	case LogTelemetryCtrl:
		logPageName = "Telemetry Controller-Initiated"
	case LogANA:
		logPageName = "Asymmetric Namespace Access"
	case LogReservation:
		logPageName = "Reservation Notification"
	case LogSanitize:
		logPageName = "Sanitize Status"
	case LogDiscovery:
		logPageName = "Discovery"
	default:
		return "UNKNOWN"
	}
	return logPageName
}

func FeatureName(fid uint8) string {
	switch fid {
	case FeatArbitration:
		return "Arbitration"
	case FeatPowerManagement:
		return "Power Management"
	case FeatTempThreshold:
		return "Temperature Threshold"
	case FeatErrorRecovery:
		return "Error Recovery"
	case FeatVolatileWC:
		return "Volatile Write Cache"
	case FeatNumQueues:
		return "Number of Queues"
	case FeatAsyncEvent:
		return "Asynchronous Event Configuration"
	case FeatTimestamp:
		return "Timestamp"
	case FeatKATO:
		return "Keep Alive Timer"
	case FeatHostID:
		return "Host Identifier"
	default:
		return "UNKNOWN"
	}
}
