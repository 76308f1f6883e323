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

package clientconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
)

const (
	// DefaultQueueSize is the I/O queue depth used when none is configured.
	DefaultQueueSize = 128
	// NQNMaxLength is the longest NQN the specification allows.
	NQNMaxLength = 223
)

// ConnectionConfig describes one fabrics association a host makes with a
// subsystem.
type ConnectionConfig struct {
	Transport        string        `yaml:"transport" mapstructure:"transport" validate:"required,oneof=tcp rdma fc"`
	Traddr           string        `yaml:"traddr" mapstructure:"traddr" validate:"required"`
	Trsvcid          int           `yaml:"trsvcid,omitempty" mapstructure:"trsvcid" validate:"required_unless=Transport fc,gte=0,lte=65535"`
	Subsysnqn        string        `yaml:"subsysnqn" mapstructure:"subsysnqn" validate:"required,max=223"`
	Hostnqn          string        `yaml:"hostnqn" mapstructure:"hostnqn" validate:"required,max=223"`
	Hostid           string        `yaml:"hostid,omitempty" mapstructure:"hostid" validate:"omitempty,uuid"`
	HostTraddr       string        `yaml:"hostTraddr,omitempty" mapstructure:"hostTraddr"`
	DHChapHostSecret string        `yaml:"dhchapSecret,omitempty" mapstructure:"dhchapSecret"`
	DHChapCtrlSecret string        `yaml:"dhchapCtrlSecret,omitempty" mapstructure:"dhchapCtrlSecret"`
	Kato             time.Duration `yaml:"kato,omitempty" mapstructure:"kato" validate:"gte=0"`
	NrIOQueues       int           `yaml:"nrIOQueues,omitempty" mapstructure:"nrIOQueues" validate:"gte=0,lte=65535"`
	QueueSize        int           `yaml:"queueSize,omitempty" mapstructure:"queueSize" validate:"omitempty,gte=2,lte=65536"`
	Duplicate        bool          `yaml:"duplicate,omitempty" mapstructure:"duplicate"`
	DisableSQFlow    bool          `yaml:"disableSQFlow,omitempty" mapstructure:"disableSQFlow"`
	Persistent       bool          `yaml:"persistent,omitempty" mapstructure:"persistent"`
}

var validate = validator.New()

// Validate checks the configuration, the returned error is a *ParserError.
func (c *ConnectionConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return &ParserError{
			Msg:     "invalid connection",
			Details: c.String(),
			Err:     err,
		}
	}
	return nil
}

// Key identifies the association, two configurations with the same key
// connect the same host to the same subsystem through the same port.
func (c *ConnectionConfig) Key() string {
	return fmt.Sprintf("%s/%s/%d/%s/%s", c.Transport, c.Traddr, c.Trsvcid, c.Subsysnqn, c.Hostnqn)
}

// IsDiscovery returns true for connections to the well known discovery
// subsystem.
func (c *ConnectionConfig) IsDiscovery() bool {
	return c.Subsysnqn == nvme.DiscoverySubsysName
}

// String returns the configuration in the conf file line format.
func (c *ConnectionConfig) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("-t %s -a %s", c.Transport, c.Traddr))
	if c.Trsvcid > 0 {
		sb.WriteString(fmt.Sprintf(" -s %d", c.Trsvcid))
	}
	sb.WriteString(fmt.Sprintf(" -q %s -n %s", c.Hostnqn, c.Subsysnqn))
	if c.Persistent {
		sb.WriteString(" -p")
	}
	return sb.String()
}

// HostID returns the 16 bytes host identifier. An explicit Hostid wins, then
// the uuid of a uuid based host NQN, otherwise one is derived from the NQN.
func (c *ConnectionConfig) HostID() (uuid.UUID, error) {
	if len(c.Hostid) > 0 {
		return uuid.Parse(c.Hostid)
	}
	if idx := strings.LastIndex(c.Hostnqn, ":uuid:"); idx != -1 {
		if id, err := uuid.Parse(c.Hostnqn[idx+len(":uuid:"):]); err == nil {
			return id, nil
		}
	}
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(c.Hostnqn)), nil
}

// keepAliveMS is the KATO of the admin queue connect. Non persistent
// discovery connections go without keep alive.
func (c *ConnectionConfig) keepAliveMS() uint32 {
	switch {
	case c.Kato > 0:
		return uint32(c.Kato / time.Millisecond)
	case c.IsDiscovery() && !c.Persistent:
		return 0
	default:
		return nvme.KATODefault
	}
}

func (c *ConnectionConfig) queueSize() int {
	if c.QueueSize > 0 {
		return c.QueueSize
	}
	return DefaultQueueSize
}

// ConnectIntent returns the Connect command creating queue qid on a new
// controller, the controller is allocated dynamically.
func (c *ConnectionConfig) ConnectIntent(qid uint16) (nvme.Connect, error) {
	return c.ConnectIntentFor(qid, nvme.FabricsConnectDynamicCtrl)
}

// ConnectIntentFor returns the Connect command creating queue qid on
// controller cntlid. I/O queues must name the controller the admin queue
// connect returned.
func (c *ConnectionConfig) ConnectIntentFor(qid uint16, cntlid uint16) (nvme.Connect, error) {
	if len(c.Subsysnqn) >= nvme.NQNSize || len(c.Hostnqn) >= nvme.NQNSize {
		return nvme.Connect{}, &ParserError{Msg: "bad nqn", Details: fmt.Sprintf("nqn longer than %d bytes", nvme.NQNSize-1)}
	}
	hostID, err := c.HostID()
	if err != nil {
		return nvme.Connect{}, &ParserError{Msg: "bad hostid", Details: c.Hostid, Err: err}
	}

	connect := nvme.Connect{
		RecFmt: nvme.FabricsConnectRecFmt,
		QID:    qid,
		Data: nvme.ConnectData{
			HostID:    hostID,
			CntlID:    cntlid,
			SubsysNqn: c.Subsysnqn,
			HostNqn:   c.Hostnqn,
		},
	}
	if qid == 0 {
		connect.SQSize = nvme.AdminQueueDepth - 1
		connect.KATO = c.keepAliveMS()
	} else {
		connect.SQSize = uint16(c.queueSize() - 1)
	}
	if c.DisableSQFlow {
		connect.CAttr |= nvme.ConnectAttrDisableSQFlow
	}
	return connect, nil
}

func (c *ConnectionConfig) commonArgs() []string {
	args := []string{"-t", c.Transport, "-a", c.Traddr}
	if c.Trsvcid > 0 {
		args = append(args, "-s", strconv.Itoa(c.Trsvcid))
	}
	if len(c.Hostnqn) > 0 {
		args = append(args, "-q", c.Hostnqn)
	}
	if len(c.Hostid) > 0 {
		args = append(args, "-I", c.Hostid)
	}
	if len(c.HostTraddr) > 0 {
		args = append(args, "-w", c.HostTraddr)
	}
	return args
}

// ConnectArgs returns the arguments of `nvme connect` for this connection.
func (c *ConnectionConfig) ConnectArgs() []string {
	args := c.commonArgs()
	args = append(args, "-n", c.Subsysnqn)
	if c.Kato > 0 {
		args = append(args, "-k", strconv.Itoa(int(c.Kato/time.Second)))
	}
	if c.NrIOQueues > 0 {
		args = append(args, "-i", strconv.Itoa(c.NrIOQueues))
	}
	if c.QueueSize > 0 {
		args = append(args, "-Q", strconv.Itoa(c.QueueSize))
	}
	if c.Duplicate {
		args = append(args, "-D")
	}
	if c.DisableSQFlow {
		args = append(args, "--disable-sqflow")
	}
	if len(c.DHChapHostSecret) > 0 {
		args = append(args, "-S", c.DHChapHostSecret)
	}
	if len(c.DHChapCtrlSecret) > 0 {
		args = append(args, "-C", c.DHChapCtrlSecret)
	}
	return args
}

// DiscoverArgs returns the arguments of `nvme discover` for the discovery
// controller behind this connection's port.
func (c *ConnectionConfig) DiscoverArgs() []string {
	args := c.commonArgs()
	if c.Persistent {
		args = append(args, "-p")
		if c.Kato > 0 {
			args = append(args, "-k", strconv.Itoa(int(c.Kato/time.Second)))
		}
	}
	return args
}

// ToOptions returns a comma delimited key=value string as written to
// /dev/nvme-fabrics
// example: nqn=nqn.xx,transport=tcp,traddr=2.2.2.2,trsvcid=4420,hostnqn=xxxxxxx
func (c *ConnectionConfig) ToOptions() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("nqn=%s", c.Subsysnqn))
	if len(c.Transport) > 0 {
		sb.WriteString(fmt.Sprintf(",transport=%s", c.Transport))
	}
	if len(c.Traddr) > 0 {
		sb.WriteString(fmt.Sprintf(",traddr=%s", c.Traddr))
	}
	if c.Trsvcid > 0 {
		sb.WriteString(fmt.Sprintf(",trsvcid=%d", c.Trsvcid))
	}
	if len(c.Hostnqn) > 0 {
		sb.WriteString(fmt.Sprintf(",hostnqn=%s", c.Hostnqn))
	}
	if len(c.HostTraddr) > 0 {
		sb.WriteString(fmt.Sprintf(",host_traddr=%s", c.HostTraddr))
	}
	if c.Kato > 0 {
		sb.WriteString(fmt.Sprintf(",keep_alive_tmo=%d", int(c.Kato/time.Second)))
	}
	if len(c.Hostid) > 0 {
		sb.WriteString(fmt.Sprintf(",hostid=%s", c.Hostid))
	}
	if c.NrIOQueues > 0 {
		sb.WriteString(fmt.Sprintf(",nr_io_queues=%d", c.NrIOQueues))
	}
	if c.QueueSize > 0 {
		sb.WriteString(fmt.Sprintf(",queue_size=%d", c.QueueSize))
	}
	if c.Duplicate {
		sb.WriteString(",duplicate_connect")
	}
	if c.DisableSQFlow {
		sb.WriteString(",disable_sqflow")
	}
	if len(c.DHChapHostSecret) > 0 {
		sb.WriteString(fmt.Sprintf(",dhchap_secret=%s", c.DHChapHostSecret))
	}
	if len(c.DHChapCtrlSecret) > 0 {
		sb.WriteString(fmt.Sprintf(",dhchap_ctrl_secret=%s", c.DHChapCtrlSecret))
	}
	return sb.String()
}

func ConfigsToString(configs []*ConnectionConfig) string {
	var sb strings.Builder
	for _, c := range configs {
		sb.WriteString(fmt.Sprintf("%s\n", c))
	}
	return sb.String()
}
