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

package mockctrl

import (
	"bytes"

	"github.com/lightbitslabs/nvmf-compliance/pkg/collections"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
	"github.com/lunixbochs/struc"
)

const (
	errorLogEntrySize = 64
	// SMART data units are thousands of 512 byte blocks
	smartDataUnit = 512 * 1000
)

// smartLog is the SMART / Health Information log page (02h).
type smartLog struct {
	CriticalWarning  uint8      `struc:"uint8"`
	Temperature      uint16     `struc:"uint16,little"`
	AvailSpare       uint8      `struc:"uint8"`
	SpareThresh      uint8      `struc:"uint8"`
	PercentUsed      uint8      `struc:"uint8"`
	EnduranceCrit    uint8      `struc:"uint8"`
	Rsvd7            [25]uint8  `struc:"[25]uint8"`
	DataUnitsRead    [2]uint64  `struc:"[2]uint64,little"`
	DataUnitsWritten [2]uint64  `struc:"[2]uint64,little"`
	HostReads        [2]uint64  `struc:"[2]uint64,little"`
	HostWrites       [2]uint64  `struc:"[2]uint64,little"`
	CtrlBusyTime     [2]uint64  `struc:"[2]uint64,little"`
	PowerCycles      [2]uint64  `struc:"[2]uint64,little"`
	PowerOnHours     [2]uint64  `struc:"[2]uint64,little"`
	UnsafeShutdowns  [2]uint64  `struc:"[2]uint64,little"`
	MediaErrors      [2]uint64  `struc:"[2]uint64,little"`
	NumErrLogEntries [2]uint64  `struc:"[2]uint64,little"`
	WarningTempTime  uint32     `struc:"uint32,little"`
	CritCompTime     uint32     `struc:"uint32,little"`
	TempSensor       [8]uint16  `struc:"[8]uint16,little"`
	Rsvd216          [296]uint8 `struc:"[296]uint8"`
}

// firmwareSlotLog is the Firmware Slot Information log page (03h) with a
// single active slot.
type firmwareSlotLog struct {
	AFI   uint8      `struc:"uint8"`
	Rsvd1 [7]uint8   `struc:"[7]uint8"`
	FRS1  string     `struc:"[8]uint8"`
	FRS   [48]uint8  `struc:"[48]uint8"`
	Rsvd  [448]uint8 `struc:"[448]uint8"`
}

func pack(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.Pack(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Controller) supportedEvents() uint32 {
	if c.cfg.Discovery {
		return aenDiscoveryChanged
	}
	return aenSmartMask | aenNamespaceAttr | aenFirmwareActivation
}

func (c *Controller) identifyController() *nvme.IDCtrl {
	id := &nvme.IDCtrl{
		Sn:     c.cfg.Serial,
		Mn:     c.cfg.Model,
		Fr:     c.cfg.Firmware,
		CntlID: c.cfg.ControllerID,
		Ver:    nvme.NVMeVersion(1, 4, 0),
		Oaes:   c.supportedEvents() &^ aenSmartMask,
		Aerl:   c.cfg.AERL,
		Lpa:    1 << 2,
		Kas:    1,
		Sqes:   ccIOSQES<<4 | ccIOSQES,
		Cqes:   ccIOCQES<<4 | ccIOCQES,
		Maxcmd: maxCmd,
		Sgls:   1 | 1<<20,
		SubNqn: c.cfg.SubsysNQN,
		Ioccsz: nvme.CommandSize / 16,
		Iorcsz: nvme.CompletionSize / 16,
	}
	if c.cfg.Discovery {
		id.CntrlType = nvme.ControllerTypeDiscovery
	} else {
		id.CntrlType = nvme.ControllerTypeIO
		if ids := c.Namespaces(); len(ids) > 0 {
			id.Nn = ids[len(ids)-1]
		}
	}
	return id
}

func (c *Controller) identify(in nvme.Identify) *outcome {
	switch in.CNS {
	case nvme.CNSController:
		data, err := c.identifyController().MarshalBinary()
		if err != nil {
			c.log.WithError(err).Error("failed to encode identify controller data")
			return failure(nvme.SCTGeneric, nvme.SCInternal, false)
		}
		return &outcome{data: data}
	case nvme.CNSActiveNamespaceList:
		if c.cfg.Discovery {
			break
		}
		if in.NSID >= nvme.NSIDAll-1 {
			return failure(nvme.SCTGeneric, nvme.SCInvalidNamespace, true)
		}
		ids := collections.Filter(c.Namespaces(), func(id uint32) bool { return id > in.NSID })
		data, err := nvme.NewActiveNamespaceList(ids).MarshalBinary()
		if err != nil {
			c.log.WithError(err).Error("failed to encode active namespace list")
			return failure(nvme.SCTGeneric, nvme.SCInternal, false)
		}
		return &outcome{data: data}
	}
	return failure(nvme.SCTGeneric, nvme.SCInvalidField, true)
}

func (c *Controller) getLogPage(in nvme.GetLogPage) *outcome {
	if in.Offset%4 != 0 {
		return failure(nvme.SCTGeneric, nvme.SCInvalidField, true)
	}
	if c.cfg.Discovery {
		if in.LID != nvme.LogDiscovery {
			return failure(nvme.SCTCommandSpecific, nvme.SCInvalidLogPage, true)
		}
		log := &nvme.DiscoveryLog{GenCtr: c.genCtr, Entries: c.records}
		window, err := log.Window(in.Offset, in.Length)
		if err != nil {
			c.log.WithError(err).Error("failed to encode discovery log page")
			return failure(nvme.SCTGeneric, nvme.SCInternal, false)
		}
		c.consumeLog(in)
		return &outcome{data: window}
	}

	var page []byte
	var err error
	switch in.LID {
	case nvme.LogError:
		page = make([]byte, errorLogEntrySize)
	case nvme.LogSmart:
		page, err = pack(c.smartLog())
	case nvme.LogFirmwareSlot:
		page, err = pack(&firmwareSlotLog{AFI: 1, FRS1: c.cfg.Firmware})
	case nvme.LogChangedNamespace:
		page, err = nvme.NewActiveNamespaceList(c.changedNamespaces).MarshalBinary()
	default:
		return failure(nvme.SCTCommandSpecific, nvme.SCInvalidLogPage, true)
	}
	if err != nil {
		c.log.WithError(err).Errorf("failed to encode log page %#x", in.LID)
		return failure(nvme.SCTGeneric, nvme.SCInternal, false)
	}
	if in.Offset >= uint64(len(page)) {
		return failure(nvme.SCTGeneric, nvme.SCInvalidField, true)
	}
	window := make([]byte, in.Length)
	copy(window, page[in.Offset:])
	c.consumeLog(in)
	return &outcome{data: window}
}

// consumeLog unmasks the events reported through the log page unless the
// host asked to retain them.
func (c *Controller) consumeLog(in nvme.GetLogPage) {
	if in.RAE {
		return
	}
	if in.LID == nvme.LogChangedNamespace {
		c.changedNamespaces = nil
	}
	delete(c.masked, in.LID)
	c.deliverEvents()
}

func (c *Controller) smartLog() *smartLog {
	log := smartLog{}
	log.Temperature = 0x0141
	log.AvailSpare = 100
	log.SpareThresh = 10
	log.DataUnitsRead[0] = divRoundUp(c.stats.bytesRead, smartDataUnit)
	log.DataUnitsWritten[0] = divRoundUp(c.stats.bytesWritten, smartDataUnit)
	log.HostReads[0] = c.stats.reads
	log.HostWrites[0] = c.stats.writes
	log.PowerCycles[0] = 1
	log.PowerOnHours[0] = uint64(c.now().Sub(c.created).Hours())
	return &log
}

func divRoundUp(n, d uint64) uint64 {
	return (n + d - 1) / d
}

func (c *Controller) featureValues(fid uint8) (current, def uint32, ok bool) {
	switch fid {
	case nvme.FeatNumQueues:
		limit := c.cfg.MaxIOQueues - 1
		return c.queues.Dword(), nvme.NumberOfQueues{NSQ: limit, NCQ: limit}.Dword(), true
	case nvme.FeatKATO:
		def := uint32(0)
		if c.cfg.Discovery {
			def = uint32(discoveryKATO.Milliseconds())
		}
		return uint32(c.kato.Milliseconds()), def, true
	case nvme.FeatAsyncEvent:
		return c.aenConfig, 0, true
	}
	return 0, 0, false
}

func (c *Controller) getFeatures(in nvme.GetFeatures) *outcome {
	current, def, ok := c.featureValues(in.FID)
	if !ok {
		return failure(nvme.SCTGeneric, nvme.SCInvalidField, true)
	}
	switch in.Select {
	case nvme.FeatSelectCurrent:
		return success(uint64(current))
	case nvme.FeatSelectDefault, nvme.FeatSelectSaved:
		return success(uint64(def))
	case nvme.FeatSelectSupported:
		// changeable, neither saveable nor namespace specific
		return success(1 << 2)
	}
	return failure(nvme.SCTGeneric, nvme.SCInvalidField, true)
}

func (c *Controller) setFeatures(in nvme.SetFeatures) *outcome {
	if _, _, ok := c.featureValues(in.FID); !ok {
		return failure(nvme.SCTGeneric, nvme.SCInvalidField, true)
	}
	if in.Save {
		return failure(nvme.SCTCommandSpecific, nvme.SCFeatureNotSaveable, true)
	}
	switch in.FID {
	case nvme.FeatNumQueues:
		requested := nvme.NumberOfQueuesFromResult(in.Value)
		if requested.NSQ == 0xffff || requested.NCQ == 0xffff {
			return failure(nvme.SCTGeneric, nvme.SCInvalidField, true)
		}
		if len(c.ioQueues) > 0 {
			return failure(nvme.SCTGeneric, nvme.SCCommandSeqError, true)
		}
		limit := c.cfg.MaxIOQueues - 1
		c.queues = nvme.NumberOfQueues{NSQ: min(requested.NSQ, limit), NCQ: min(requested.NCQ, limit)}
		return success(uint64(c.queues.Dword()))
	case nvme.FeatKATO:
		c.kato = msToDuration(in.Value)
		c.lastKeepAlive = c.now()
		return success(0)
	default:
		if in.Value&^c.supportedEvents() != 0 {
			return failure(nvme.SCTGeneric, nvme.SCInvalidField, true)
		}
		c.aenConfig = in.Value
		c.deliverEvents()
		return success(uint64(in.Value))
	}
}
