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

// Package mockctrl is an in-memory NVMe over Fabrics controller. It answers
// encoded requests the way a compliant target does and is used to check host
// side encodings without a real fabric.
package mockctrl

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lightbitslabs/nvmf-compliance/pkg/hostapi"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAERL         uint8  = 3
	DefaultMaxIOQueues  uint16 = 64
	DefaultControllerID uint16 = 1

	queueEntries  = 1024
	maxCmd        = 1024
	pageSize      = 4096
	discoveryKATO = 2 * time.Minute
)

// NamespaceConfig describes one in-memory namespace.
type NamespaceConfig struct {
	ID        uint32 `yaml:"id" mapstructure:"id" validate:"required,lt=4294967295"`
	BlockSize uint32 `yaml:"blockSize" mapstructure:"blockSize" validate:"required,oneof=512 4096"`
	Blocks    uint64 `yaml:"blocks" mapstructure:"blocks" validate:"required,lte=65536"`
}

type Config struct {
	SubsysNQN    string            `yaml:"subsysnqn" mapstructure:"subsysnqn" validate:"required,max=223"`
	Discovery    bool              `yaml:"discovery" mapstructure:"discovery"`
	ControllerID uint16            `yaml:"cntlid" mapstructure:"cntlid" validate:"lt=65520"`
	Serial       string            `yaml:"serial" mapstructure:"serial" validate:"max=20"`
	Model        string            `yaml:"model" mapstructure:"model" validate:"max=40"`
	Firmware     string            `yaml:"firmware" mapstructure:"firmware" validate:"max=8"`
	AERL         uint8             `yaml:"aerl" mapstructure:"aerl"`
	MaxIOQueues  uint16            `yaml:"maxIOQueues" mapstructure:"maxIOQueues"`
	Namespaces   []NamespaceConfig `yaml:"namespaces" mapstructure:"namespaces" validate:"dive"`

	// Records served in the discovery log page of a discovery controller.
	Records []*nvme.DiscoveryLogEntry `yaml:"-" mapstructure:"-"`
}

// NewDiscoveryConfig returns the configuration of a discovery controller
// serving records.
func NewDiscoveryConfig(records []*nvme.DiscoveryLogEntry) Config {
	return Config{
		SubsysNQN: nvme.DiscoverySubsysName,
		Discovery: true,
		Records:   records,
	}
}

func (cfg *Config) setDefaults() {
	if cfg.ControllerID == 0 {
		cfg.ControllerID = DefaultControllerID
	}
	if cfg.AERL == 0 {
		cfg.AERL = DefaultAERL
	}
	if cfg.MaxIOQueues == 0 {
		cfg.MaxIOQueues = DefaultMaxIOQueues
	}
	if cfg.Serial == "" {
		cfg.Serial = "MOCK0000000000000001"
	}
	if cfg.Model == "" {
		cfg.Model = "nvmf-compliance mock controller"
	}
	if cfg.Firmware == "" {
		cfg.Firmware = "1.0"
	}
}

// outcome is what a command handler produces. A nil outcome parks the
// request until an event completes it.
type outcome struct {
	status nvme.StatusField
	result uint64
	data   []byte
}

func success(result uint64) *outcome {
	return &outcome{result: result}
}

func failure(sct, sc uint8, dnr bool) *outcome {
	return &outcome{status: nvme.NewStatusField(sct, sc, dnr)}
}

type parked struct {
	handle hostapi.Handle
	req    *nvme.Request
}

// Controller is safe for concurrent use. Commands run inline in Submit and
// are polled back by handle, Asynchronous Event Requests stay parked until
// an event is posted.
type Controller struct {
	cfg Config
	log *logrus.Entry
	now func() time.Time

	mu         sync.Mutex
	lastHandle hostapi.Handle
	completed  map[hostapi.Handle]*nvme.Response

	connected     bool
	hostNQN       string
	hostID        uuid.UUID
	sqFlowDisable bool
	ioQueues      map[uint16]uint16

	cap  uint64
	cc   uint32
	csts uint32

	kato          time.Duration
	lastKeepAlive time.Time
	expired       bool

	queues    nvme.NumberOfQueues
	aenConfig uint32
	aers      []parked
	events    []AsyncEvent
	masked    map[uint8]bool

	genCtr            uint64
	records           []*nvme.DiscoveryLogEntry
	namespaces        map[uint32]*namespace
	changedNamespaces []uint32
	stats             ioStats
	created           time.Time
}

var _ hostapi.Executor = (*Controller)(nil)

var (
	ErrNamespaceExists    = errors.New("namespace already exists")
	ErrNamespaceNotFound  = errors.New("namespace not found")
	ErrDiscoveryNamespace = errors.New("discovery controllers have no namespaces")

	validate = validator.New()
)

func New(cfg Config) (*Controller, error) {
	cfg.setDefaults()
	if err := validate.Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid mock controller configuration")
	}
	if cfg.Discovery && len(cfg.Namespaces) > 0 {
		return nil, ErrDiscoveryNamespace
	}
	c := &Controller{
		cfg: cfg,
		log: logrus.WithFields(logrus.Fields{
			"subsysnqn": cfg.SubsysNQN,
			"cntlid":    cfg.ControllerID,
		}),
		now:        time.Now,
		completed:  map[hostapi.Handle]*nvme.Response{},
		ioQueues:   map[uint16]uint16{},
		masked:     map[uint8]bool{},
		genCtr:     1,
		records:    cfg.Records,
		namespaces: map[uint32]*namespace{},
	}
	c.created = c.now()
	for _, nsCfg := range cfg.Namespaces {
		if _, ok := c.namespaces[nsCfg.ID]; ok {
			return nil, errors.Wrapf(ErrNamespaceExists, "namespace %d", nsCfg.ID)
		}
		c.namespaces[nsCfg.ID] = newNamespace(nsCfg)
	}
	if err := c.initCap(); err != nil {
		return nil, err
	}
	c.reset()
	return c, nil
}

func (c *Controller) initCap() error {
	reg := nvme.CapRegister{
		MQES: queueEntries - 1,
		TO:   15,
		CSS:  1,
	}
	value, err := reg.Value()
	if err != nil {
		return errors.Wrap(err, "failed to encode CAP")
	}
	c.cap = value
	return nil
}

// reset returns the controller to its state before the admin queue connect.
func (c *Controller) reset() {
	c.connected = false
	c.hostNQN = ""
	c.hostID = uuid.Nil
	c.ioQueues = map[uint16]uint16{}
	c.cc = 0
	c.csts = 0
	c.kato = 0
	c.expired = false
	c.queues = nvme.NumberOfQueues{NSQ: c.cfg.MaxIOQueues - 1, NCQ: c.cfg.MaxIOQueues - 1}
	c.aenConfig = 0
	c.events = nil
	c.masked = map[uint8]bool{}
}

// Disconnect drops the association as a transport disconnect does.
// Outstanding Asynchronous Event Requests are aborted.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortEvents()
	c.reset()
}

func (c *Controller) Config() Config {
	return c.cfg
}

func (c *Controller) ControllerID() uint16 {
	return c.cfg.ControllerID
}

func (c *Controller) Submit(ctx context.Context, req *nvme.Request) (hostapi.Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastHandle++
	h := c.lastHandle
	c.log.Debugf("%s: %s", h, req)
	out := c.execute(req)
	if out == nil {
		c.aers = append(c.aers, parked{handle: h, req: req})
		return h, nil
	}
	c.complete(h, req, out)
	return h, nil
}

func (c *Controller) Poll(h hostapi.Handle) (*nvme.Response, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rsp, ok := c.completed[h]; ok {
		delete(c.completed, h)
		return rsp, true, nil
	}
	if c.parkedIndex(h) != -1 {
		return nil, false, nil
	}
	return nil, false, hostapi.ErrUnknownHandle
}

func (c *Controller) Cancel(h hostapi.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.completed[h]; ok {
		delete(c.completed, h)
		return nil
	}
	if idx := c.parkedIndex(h); idx != -1 {
		c.aers = append(c.aers[:idx], c.aers[idx+1:]...)
		return nil
	}
	return hostapi.ErrUnknownHandle
}

func (c *Controller) parkedIndex(h hostapi.Handle) int {
	for i, p := range c.aers {
		if p.handle == h {
			return i
		}
	}
	return -1
}

func (c *Controller) complete(h hostapi.Handle, req *nvme.Request, out *outcome) {
	sqid := uint16(0)
	if req.CommandSet == nvme.IOCommandSet {
		sqid = 1
	}
	rsp := &nvme.Response{
		DecodeResult: nvme.ResultFromStatus(out.status),
		Completion:   *nvme.NewCompletion(req.CommandID(), sqid, out.status),
	}
	rsp.Completion.Result.SetU64(out.result)
	if out.data != nil {
		data := out.data
		if req.Data != nil {
			if len(data) > len(req.Data) {
				data = data[:len(req.Data)]
			}
			w := nvme.NewScatterListWriter(nvme.NewScatterListFrom(req.Data, pageSize))
			if _, err := w.Write(data); err != nil {
				c.log.WithError(err).Errorf("%s: failed to transfer data", h)
			}
		}
		rsp.Data = data
	}
	req.Result = uint32(out.result)
	if !out.status.IsSuccess() {
		c.log.Debugf("%s: completed with %s", h, out.status)
	}
	c.completed[h] = rsp
}

func (c *Controller) execute(req *nvme.Request) *outcome {
	cmd := &req.Command
	if cmd.Fuse() != 0 {
		return failure(nvme.SCTGeneric, nvme.SCInvalidField, true)
	}
	intent, err := nvme.Decode(req)
	if err != nil {
		if req.CommandSet == nvme.FabricsCommandSet && nvme.FabricsType(cmd) == nvme.FabricsTypeConnect {
			return connectFailure(nvme.ConnectDataHostIDOffset, nvme.ConnectIAttrData)
		}
		if errors.Is(err, nvme.ErrLengthOverflow) {
			return failure(nvme.SCTGeneric, nvme.SCInvalidField, true)
		}
		c.log.WithError(err).Debug("unsupported command")
		return failure(nvme.SCTGeneric, nvme.SCInvalidOpcode, true)
	}
	if connect, ok := intent.(nvme.Connect); ok {
		return c.connect(connect)
	}
	if !c.connected {
		return failure(nvme.SCTGeneric, nvme.SCInvalidOpcode, true)
	}
	switch in := intent.(type) {
	case nvme.PropertyGet:
		c.keepAliveExpired()
		return c.propertyGet(in)
	case nvme.PropertySet:
		return c.propertySet(in)
	}
	if c.keepAliveExpired() {
		return failure(nvme.SCTGeneric, nvme.SCKATOExpired, true)
	}
	if !c.ready() {
		return failure(nvme.SCTGeneric, nvme.SCCommandSeqError, true)
	}
	switch in := intent.(type) {
	case nvme.Identify:
		return c.identify(in)
	case nvme.GetLogPage:
		return c.getLogPage(in)
	case nvme.GetFeatures:
		return c.getFeatures(in)
	case nvme.SetFeatures:
		return c.setFeatures(in)
	case nvme.KeepAlive:
		c.lastKeepAlive = c.now()
		return success(0)
	case nvme.AsyncEventRequest:
		return c.asyncEventRequest()
	case nvme.Read, nvme.Write, nvme.Flush:
		if c.cfg.Discovery {
			return failure(nvme.SCTGeneric, nvme.SCInvalidOpcode, true)
		}
		if len(c.ioQueues) == 0 {
			return failure(nvme.SCTGeneric, nvme.SCCommandSeqError, true)
		}
		return c.io(intent, req)
	}
	return failure(nvme.SCTGeneric, nvme.SCInvalidOpcode, true)
}

func (c *Controller) ready() bool {
	csts, err := nvme.DecodeCSTS(c.csts)
	return err == nil && csts.RDY == 1
}

func (c *Controller) keepAliveExpired() bool {
	if c.expired {
		return true
	}
	if c.kato == 0 || c.now().Sub(c.lastKeepAlive) <= c.kato {
		return false
	}
	c.log.Warnf("keep alive timer expired after %s", c.kato)
	c.expired = true
	if csts, err := nvme.DecodeCSTS(c.csts); err == nil {
		csts.CFS = 1
		if value, err := csts.Value(); err == nil {
			c.csts = value
		}
	}
	c.abortEvents()
	return true
}

// Namespaces returns the active namespace ids in ascending order.
func (c *Controller) Namespaces() []uint32 {
	ids := make([]uint32, 0, len(c.namespaces))
	for id := range c.namespaces {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
