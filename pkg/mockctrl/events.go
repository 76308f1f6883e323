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
	"time"

	"github.com/lightbitslabs/nvmf-compliance/pkg/collections"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
)

// Asynchronous event types
const (
	EventTypeError  uint8 = 0x0
	EventTypeSmart  uint8 = 0x1
	EventTypeNotice uint8 = 0x2
)

// Notice event information
const (
	NoticeNamespaceChanged   uint8 = 0x00
	NoticeFirmwareActivation uint8 = 0x01
	NoticeDiscoveryChanged   uint8 = 0xf0
)

// Asynchronous Event Configuration bits
const (
	aenSmartMask          uint32 = 0xff
	aenNamespaceAttr      uint32 = 1 << 8
	aenFirmwareActivation uint32 = 1 << 9
	aenDiscoveryChanged   uint32 = 1 << 31
)

// AsyncEvent is reported in dword 0 of an Asynchronous Event Request
// completion.
type AsyncEvent struct {
	Type    uint8
	Info    uint8
	LogPage uint8
}

func DiscoveryChangedEvent() AsyncEvent {
	return AsyncEvent{Type: EventTypeNotice, Info: NoticeDiscoveryChanged, LogPage: nvme.LogDiscovery}
}

func NamespaceChangedEvent() AsyncEvent {
	return AsyncEvent{Type: EventTypeNotice, Info: NoticeNamespaceChanged, LogPage: nvme.LogChangedNamespace}
}

func AsyncEventFromResult(result uint32) AsyncEvent {
	return AsyncEvent{
		Type:    uint8(nvme.Extract(result, 0, 3)),
		Info:    uint8(nvme.Extract(result, 8, 16)),
		LogPage: uint8(nvme.Extract(result, 16, 24)),
	}
}

func (e AsyncEvent) Dword() uint32 {
	result := nvme.Inject(0, 0, 3, uint32(e.Type))
	result = nvme.Inject(result, 8, 16, uint32(e.Info))
	return nvme.Inject(result, 16, 24, uint32(e.LogPage))
}

// enabledBy returns the configuration bits that enable the event. Error
// events cannot be disabled.
func (e AsyncEvent) enabledBy() (uint32, bool) {
	switch e.Type {
	case EventTypeError:
		return 0, true
	case EventTypeSmart:
		return aenSmartMask, true
	case EventTypeNotice:
		switch e.Info {
		case NoticeNamespaceChanged:
			return aenNamespaceAttr, true
		case NoticeFirmwareActivation:
			return aenFirmwareActivation, true
		case NoticeDiscoveryChanged:
			return aenDiscoveryChanged, true
		}
	}
	return 0, false
}

func (c *Controller) asyncEventRequest() *outcome {
	if len(c.aers) > int(c.cfg.AERL) {
		return failure(nvme.SCTCommandSpecific, nvme.SCAsyncLimit, true)
	}
	if ev, ok := c.popEvent(); ok {
		return success(uint64(ev.Dword()))
	}
	return nil
}

// PostAsyncEvent reports ev to the host. It completes the oldest outstanding
// Asynchronous Event Request and returns true, or queues the event until one
// is submitted. Events disabled by the host, or masked until their log page
// is read, are not reported.
func (c *Controller) PostAsyncEvent(ev AsyncEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.postAsyncEvent(ev)
}

func (c *Controller) postAsyncEvent(ev AsyncEvent) bool {
	mask, ok := c.enabled(ev)
	if !ok {
		c.log.Debugf("event %#x is disabled (config %#x, mask %#x)", ev.Dword(), c.aenConfig, mask)
		return false
	}
	for _, pending := range c.events {
		if pending == ev {
			return false
		}
	}
	c.events = append(c.events, ev)
	return c.deliverEvents() > 0
}

func (c *Controller) enabled(ev AsyncEvent) (uint32, bool) {
	mask, known := ev.enabledBy()
	if !known || !c.connected {
		return mask, false
	}
	return mask, mask == 0 || c.aenConfig&mask != 0
}

func (c *Controller) popEvent() (AsyncEvent, bool) {
	for i, ev := range c.events {
		if c.masked[ev.LogPage] {
			continue
		}
		if _, ok := c.enabled(ev); !ok {
			continue
		}
		c.events = append(c.events[:i], c.events[i+1:]...)
		c.masked[ev.LogPage] = true
		return ev, true
	}
	return AsyncEvent{}, false
}

// deliverEvents completes outstanding requests with pending events and
// returns how many it completed.
func (c *Controller) deliverEvents() int {
	delivered := 0
	for len(c.aers) > 0 {
		ev, ok := c.popEvent()
		if !ok {
			break
		}
		p := c.aers[0]
		c.aers = c.aers[1:]
		c.log.Debugf("%s: reporting event %#x", p.handle, ev.Dword())
		c.complete(p.handle, p.req, success(uint64(ev.Dword())))
		delivered++
	}
	return delivered
}

func (c *Controller) abortEvents() {
	for _, p := range c.aers {
		c.complete(p.handle, p.req, failure(nvme.SCTGeneric, nvme.SCAbortQueue, false))
	}
	c.aers = nil
}

// SetDiscoveryRecords replaces the records of the discovery log page and
// notifies the host.
func (c *Controller) SetDiscoveryRecords(records []*nvme.DiscoveryLogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = records
	c.genCtr++
	c.postAsyncEvent(DiscoveryChangedEvent())
}

// AttachNamespace adds a namespace and notifies the host.
func (c *Controller) AttachNamespace(cfg NamespaceConfig) error {
	if err := validate.Struct(&cfg); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.Discovery {
		return ErrDiscoveryNamespace
	}
	if _, ok := c.namespaces[cfg.ID]; ok {
		return ErrNamespaceExists
	}
	c.namespaces[cfg.ID] = newNamespace(cfg)
	c.namespaceChanged(cfg.ID)
	return nil
}

// DetachNamespace removes namespace nsid and notifies the host.
func (c *Controller) DetachNamespace(nsid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.namespaces[nsid]; !ok {
		return ErrNamespaceNotFound
	}
	delete(c.namespaces, nsid)
	c.namespaceChanged(nsid)
	return nil
}

func (c *Controller) namespaceChanged(nsid uint32) {
	if !collections.Any(c.changedNamespaces, func(id uint32) bool { return id == nsid }) {
		c.changedNamespaces = append(c.changedNamespaces, nsid)
	}
	c.postAsyncEvent(NamespaceChangedEvent())
}

func msToDuration(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
