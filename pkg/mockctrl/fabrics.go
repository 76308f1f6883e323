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
	"github.com/google/uuid"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
)

// Byte offsets of the Connect fields inside the submission queue entry.
const (
	ipoRecFmt uint16 = 40
	ipoQID    uint16 = 42
	ipoSQSize uint16 = 44
)

const (
	ccIOSQES = 6
	ccIOCQES = 4
)

func connectFailure(ipo uint16, iattr uint8) *outcome {
	return connectStatus(nvme.SCConnectInvalidParam, ipo, iattr)
}

func connectStatus(sc uint8, ipo uint16, iattr uint8) *outcome {
	out := failure(nvme.SCTCommandSpecific, sc, true)
	out.result = uint64(nvme.ConnectResponse{IPO: ipo, IAttr: iattr}.Dword())
	return out
}

func (c *Controller) connect(in nvme.Connect) *outcome {
	if in.RecFmt != nvme.FabricsConnectRecFmt {
		return connectStatus(nvme.SCConnectFormat, ipoRecFmt, nvme.ConnectIAttrCommand)
	}
	if in.Data.SubsysNqn != c.cfg.SubsysNQN {
		return connectFailure(nvme.ConnectDataSubNqnOffset, nvme.ConnectIAttrData)
	}
	if in.Data.HostNqn == "" {
		return connectFailure(nvme.ConnectDataHostNqnOffset, nvme.ConnectIAttrData)
	}
	if in.SQSize == 0 || in.SQSize >= queueEntries {
		return connectFailure(ipoSQSize, nvme.ConnectIAttrCommand)
	}
	if in.QID == 0 {
		return c.connectAdmin(in)
	}
	return c.connectIO(in)
}

func (c *Controller) connectAdmin(in nvme.Connect) *outcome {
	if c.connected {
		return connectStatus(nvme.SCConnectCtrlBusy, 0, nvme.ConnectIAttrCommand)
	}
	if in.Data.CntlID != nvme.FabricsConnectDynamicCtrl {
		return connectFailure(nvme.ConnectDataCntlIDOffset, nvme.ConnectIAttrData)
	}
	hostID, err := uuid.FromBytes(in.Data.HostID[:])
	if err != nil || hostID == uuid.Nil {
		return connectFailure(nvme.ConnectDataHostIDOffset, nvme.ConnectIAttrData)
	}

	c.connected = true
	c.hostNQN = in.Data.HostNqn
	c.hostID = hostID
	c.sqFlowDisable = in.CAttr&nvme.ConnectAttrDisableSQFlow != 0
	c.kato = msToDuration(in.KATO)
	if c.kato == 0 && c.cfg.Discovery {
		c.kato = discoveryKATO
	}
	c.lastKeepAlive = c.now()
	c.log.Infof("host %s (%s) connected, kato %s", c.hostNQN, c.hostID, c.kato)
	return success(uint64(nvme.ConnectResponse{Success: true, CntlID: c.cfg.ControllerID}.Dword()))
}

func (c *Controller) connectIO(in nvme.Connect) *outcome {
	if !c.connected || in.Data.CntlID != c.cfg.ControllerID {
		return connectFailure(nvme.ConnectDataCntlIDOffset, nvme.ConnectIAttrData)
	}
	if in.Data.HostNqn != c.hostNQN {
		return connectFailure(nvme.ConnectDataHostNqnOffset, nvme.ConnectIAttrData)
	}
	if c.cfg.Discovery || !c.ready() || in.QID > c.queues.NSQ+1 {
		return connectFailure(ipoQID, nvme.ConnectIAttrCommand)
	}
	if _, ok := c.ioQueues[in.QID]; ok {
		return connectFailure(ipoQID, nvme.ConnectIAttrCommand)
	}
	c.ioQueues[in.QID] = in.SQSize
	c.log.Debugf("io queue %d connected, sqsize %d", in.QID, in.SQSize)
	return success(uint64(nvme.ConnectResponse{Success: true, CntlID: c.cfg.ControllerID}.Dword()))
}

func (c *Controller) propertyGet(in nvme.PropertyGet) *outcome {
	if in.Width != nvme.WidthAuto {
		return failure(nvme.SCTGeneric, nvme.SCInvalidField, true)
	}
	switch in.Offset {
	case nvme.RegCAP:
		return success(c.cap)
	case nvme.RegVS:
		return success(uint64(nvme.NVMeVersion(1, 4, 0)))
	case nvme.RegCC:
		return success(uint64(c.cc))
	case nvme.RegCSTS:
		return success(uint64(c.csts))
	}
	return failure(nvme.SCTGeneric, nvme.SCInvalidField, true)
}

func (c *Controller) propertySet(in nvme.PropertySet) *outcome {
	if in.Width != nvme.WidthAuto || in.Offset != nvme.RegCC {
		return failure(nvme.SCTGeneric, nvme.SCInvalidField, true)
	}
	if err := c.setCC(uint32(in.Value)); err != nil {
		c.log.WithError(err).Error("failed to update CC")
		return failure(nvme.SCTGeneric, nvme.SCInternal, false)
	}
	return success(0)
}

func (c *Controller) setCC(value uint32) error {
	old, err := nvme.DecodeCC(c.cc)
	if err != nil {
		return err
	}
	cc, err := nvme.DecodeCC(value)
	if err != nil {
		return err
	}
	csts, err := nvme.DecodeCSTS(c.csts)
	if err != nil {
		return err
	}

	c.cc = value
	switch {
	case cc.EN == 1 && old.EN == 0:
		if cc.IOSQES != ccIOSQES || cc.IOCQES != ccIOCQES || cc.MPS != 0 || cc.AMS != 0 || cc.CSS != 0 {
			c.log.Warnf("invalid controller configuration %#x", value)
			csts.CFS = 1
		} else {
			csts.RDY = 1
			csts.SHST = nvme.ShutdownStatusNormal
		}
	case cc.EN == 0 && old.EN == 1:
		c.disable()
		csts.RDY = 0
		c.cc = 0
	}
	// CC is cleared on shutdown, the next enable starts from a reset state.
	if cc.SHN != nvme.ShutdownNone && old.SHN == nvme.ShutdownNone {
		c.disable()
		csts.RDY = 0
		csts.SHST = nvme.ShutdownStatusComplete
		c.cc = 0
	}

	c.csts, err = csts.Value()
	return err
}

// disable tears down the I/O queues and aborts the outstanding events.
func (c *Controller) disable() {
	c.ioQueues = map[uint16]uint16{}
	c.abortEvents()
}
