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
	"io"

	"github.com/dustin/go-humanize"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
)

// namespace keeps its blocks in memory. The backing buffer is allocated on
// the first write, unwritten blocks read as zeroes.
type namespace struct {
	cfg  NamespaceConfig
	data []byte
}

func newNamespace(cfg NamespaceConfig) *namespace {
	return &namespace{cfg: cfg}
}

func (ns *namespace) size() uint64 {
	return ns.cfg.Blocks * uint64(ns.cfg.BlockSize)
}

func (ns *namespace) String() string {
	return humanize.IBytes(ns.size())
}

type ioStats struct {
	reads        uint64
	writes       uint64
	bytesRead    uint64
	bytesWritten uint64
}

// locate returns the byte range of nlb blocks at slba.
func (c *Controller) locate(nsid uint32, slba uint64, nlb uint32) (*namespace, uint64, int, *outcome) {
	ns, ok := c.namespaces[nsid]
	if !ok {
		return nil, 0, 0, failure(nvme.SCTGeneric, nvme.SCInvalidNamespace, true)
	}
	if slba >= ns.cfg.Blocks || uint64(nlb) > ns.cfg.Blocks-slba {
		return nil, 0, 0, failure(nvme.SCTGeneric, nvme.SCLBARange, true)
	}
	bs := uint64(ns.cfg.BlockSize)
	return ns, slba * bs, int(uint64(nlb) * bs), nil
}

func (c *Controller) io(intent nvme.Intent, req *nvme.Request) *outcome {
	switch in := intent.(type) {
	case nvme.Flush:
		if in.NSID == nvme.NSIDAll {
			return success(0)
		}
		if _, ok := c.namespaces[in.NSID]; !ok {
			return failure(nvme.SCTGeneric, nvme.SCInvalidNamespace, true)
		}
		return success(0)
	case nvme.Read:
		ns, offset, length, out := c.locate(in.NSID, in.SLBA, in.NLB)
		if out != nil {
			return out
		}
		if len(req.Data) < length {
			return failure(nvme.SCTGeneric, nvme.SCSGLInvalidData, true)
		}
		data := make([]byte, length)
		if ns.data != nil {
			copy(data, ns.data[offset:])
		}
		c.stats.reads++
		c.stats.bytesRead += uint64(length)
		return &outcome{data: data}
	case nvme.Write:
		ns, offset, length, out := c.locate(in.NSID, in.SLBA, in.NLB)
		if out != nil {
			return out
		}
		if len(in.Data) < length {
			return failure(nvme.SCTGeneric, nvme.SCSGLInvalidData, true)
		}
		if ns.data == nil {
			c.log.Debugf("allocating %s for namespace %d", ns, ns.cfg.ID)
			ns.data = make([]byte, ns.size())
		}
		r := nvme.NewScatterListReader(nvme.NewScatterListFrom(in.Data[:length], pageSize))
		if _, err := io.ReadFull(r, ns.data[offset:offset+uint64(length)]); err != nil {
			c.log.WithError(err).Errorf("namespace %d: short write", ns.cfg.ID)
			return failure(nvme.SCTGeneric, nvme.SCDataTransferError, false)
		}
		c.stats.writes++
		c.stats.bytesWritten += uint64(length)
		return success(0)
	}
	return failure(nvme.SCTGeneric, nvme.SCInvalidOpcode, true)
}
