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

package nvmeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/lightbitslabs/nvmf-compliance/pkg/clientconfig"
	"github.com/lightbitslabs/nvmf-compliance/pkg/collections"
	"github.com/lightbitslabs/nvmf-compliance/pkg/metrics"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
	"github.com/lightbitslabs/nvmf-compliance/pkg/regexutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// "device: nvme0" or {"device":"nvme0"}
	connectDeviceRegex = regexp.MustCompile(`"?device"?\s*:\s*"?(?P<device>nvme[0-9]+)`)
	disconnectedRegex  = regexp.MustCompile(`disconnected (?P<count>[0-9]+) controller`)
)

const (
	connectSuccess          = "success"
	connectAlreadyConnected = "already_connected"
	connectFailed           = "failed"
)

// Client drives the host side of NVMe over Fabrics with nvme-cli.
type Client struct {
	binary string
	runner Runner

	// ConnectAttempts and ConnectDelay configure the backoff of Connect.
	ConnectAttempts uint
	ConnectDelay    time.Duration
	// SysfsGlob is the glob of sysfs controller directories FindConnected
	// looks at.
	SysfsGlob string
}

// New returns a client running binary with runner. Empty binary and nil
// runner select nvme from PATH and child processes.
func New(binary string, runner Runner) *Client {
	if len(binary) == 0 {
		binary = DefaultBinary
	}
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &Client{
		binary:          binary,
		runner:          runner,
		ConnectAttempts: 5,
		ConnectDelay:    10 * time.Millisecond,
		SysfsGlob:       clientconfig.NvmeCtrlPath,
	}
}

func (c *Client) run(ctx context.Context, args ...string) (*Output, error) {
	return c.runner.Run(ctx, nil, c.binary, args...)
}

func isAlreadyConnected(out *Output) bool {
	return strings.HasSuffix(strings.ToLower(out.diagnostic()), "operation already in progress")
}

// Connect connects the host to the subsystem described by cfg and returns
// the controller device. Failures are retried with backoff, an existing
// connection is reported with ErrAlreadyConnected right away.
func (c *Client) Connect(ctx context.Context, cfg *clientconfig.ConnectionConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	traddr, err := nvme.AdjustTraddr(cfg.Traddr)
	if err != nil {
		return "", &NvmeClientError{Msg: fmt.Sprintf("invalid traddr %s", cfg.Traddr), Err: err}
	}
	request := *cfg
	request.Traddr = traddr
	args := append([]string{"connect"}, request.ConnectArgs()...)
	log := logrus.WithField("target", request.Key())

	var device string
	err = retry.Do(func() error {
		out, err := c.run(ctx, args...)
		if err != nil {
			return err
		}
		if out.ExitCode == 0 {
			device, _ = regexutil.GetParam(connectDeviceRegex, string(out.Stdout), "device")
			return nil
		}
		if isAlreadyConnected(out) {
			return errors.Wrap(ErrAlreadyConnected, request.Subsysnqn)
		}
		return failure("connect failed", out)
	},
		retry.Context(ctx),
		retry.Attempts(c.ConnectAttempts),
		retry.Delay(c.ConnectDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrAlreadyConnected)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Debugf("connect attempt %d failed", n+1)
		}),
	)

	switch {
	case err == nil:
		metrics.Metrics.ConnectAttemptsTotal.WithLabelValues(request.Transport, connectSuccess).Inc()
	case errors.Is(err, ErrAlreadyConnected):
		metrics.Metrics.ConnectAttemptsTotal.WithLabelValues(request.Transport, connectAlreadyConnected).Inc()
		return "", err
	default:
		metrics.Metrics.ConnectAttemptsTotal.WithLabelValues(request.Transport, connectFailed).Inc()
		return "", err
	}

	if len(device) > 0 {
		device = "/dev/" + device
	} else if device, err = c.DeviceForNQN(ctx, request.Subsysnqn); err != nil {
		// older nvme-cli versions do not print the device
		log.WithError(err).Warn("connected but failed to find the controller device")
		return "", nil
	}
	log.Infof("connected %s", device)
	return device, nil
}

// ConnectAll discovers the subsystems behind the discovery controller of cfg
// and connects to every NVM subsystem it reports. Subsystems that are
// already connected or fail to connect are skipped.
func (c *Client) ConnectAll(ctx context.Context, cfg *clientconfig.ConnectionConfig) ([]string, error) {
	discovery, err := c.Discover(ctx, cfg)
	if err != nil {
		return nil, err
	}
	devices := []string{}
	for _, entry := range collections.Filter(discovery.Records, func(e DiscoveryEntry) bool { return e.IsIOSubsystem() }) {
		target, err := entry.ConnectionConfig(cfg)
		if err != nil {
			logrus.WithError(err).Warnf("skipping discovery log entry %s", entry.Subnqn)
			continue
		}
		device, err := c.Connect(ctx, target)
		if errors.Is(err, ErrAlreadyConnected) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return devices, ctx.Err()
			}
			logrus.WithError(err).Warnf("failed to connect IO controller %s", target.Key())
			continue
		}
		devices = append(devices, device)
	}
	return devices, nil
}

// Disconnect disconnects a subsystem by NQN or a single controller by its
// device path (/dev/nvmeX). It returns the number of controllers nvme-cli
// reported as disconnected.
func (c *Client) Disconnect(ctx context.Context, target string) (int, error) {
	var args []string
	if strings.HasPrefix(target, "/dev/") {
		if !ctrlDeviceRegex.MatchString(target) {
			return 0, errors.Wrapf(ErrInvalidDevice, "cannot disconnect %q", target)
		}
		args = []string{"disconnect", "-d", target}
	} else {
		if len(target) == 0 {
			return 0, errors.New("nothing to disconnect")
		}
		args = []string{"disconnect", "-n", target}
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return 0, err
	}
	if out.ExitCode != 0 {
		return 0, failure(fmt.Sprintf("disconnect %s failed", target), out)
	}
	count := 0
	if value, ok := regexutil.GetParam(disconnectedRegex, string(out.Stdout), "count"); ok {
		count, _ = strconv.Atoi(value)
	}
	logrus.Infof("disconnected %s. controllers: %d", target, count)
	return count, nil
}

// DisconnectAll disconnects every fabrics controller of the host.
func (c *Client) DisconnectAll(ctx context.Context) error {
	out, err := c.run(ctx, "disconnect-all")
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return failure("disconnect-all failed", out)
	}
	return nil
}

// DiscoveryEntry is a discovery log page entry as nvme-cli prints it in
// JSON.
type DiscoveryEntry struct {
	TrType  string `json:"trtype" yaml:"trtype"`
	AdrFam  string `json:"adrfam" yaml:"adrfam"`
	SubType string `json:"subtype" yaml:"subtype"`
	Treq    string `json:"treq" yaml:"treq"`
	PortID  int    `json:"portid" yaml:"portid"`
	Trsvcid string `json:"trsvcid" yaml:"trsvcid"`
	Subnqn  string `json:"subnqn" yaml:"subnqn"`
	Traddr  string `json:"traddr" yaml:"traddr"`
}

// IsIOSubsystem is true for entries of NVM subsystems, as opposed to
// referrals to discovery subsystems.
func (e *DiscoveryEntry) IsIOSubsystem() bool {
	return e.SubType == "nvme subsystem"
}

// ConnectionConfig returns the connection to the subsystem of e made with
// the host identity and options of base.
func (e *DiscoveryEntry) ConnectionConfig(base *clientconfig.ConnectionConfig) (*clientconfig.ConnectionConfig, error) {
	cfg := *base
	cfg.Transport = e.TrType
	cfg.Traddr = e.Traddr
	cfg.Subsysnqn = e.Subnqn
	cfg.Persistent = false
	cfg.Trsvcid = 0
	if trsvcid := strings.TrimSpace(e.Trsvcid); len(trsvcid) > 0 && trsvcid != "none" {
		port, err := strconv.Atoi(trsvcid)
		if err != nil {
			return nil, errors.Wrapf(err, "bad trsvcid %q", e.Trsvcid)
		}
		cfg.Trsvcid = port
	}
	return &cfg, cfg.Validate()
}

// DiscoveryResult is the discovery log page nvme-cli fetched.
type DiscoveryResult struct {
	Device  string           `json:"device" yaml:"device"`
	GenCtr  uint64           `json:"genctr" yaml:"genctr"`
	Records []DiscoveryEntry `json:"records" yaml:"records"`
}

// ParseDiscoveryJSON decodes the output of `nvme discover -o json`.
func ParseDiscoveryJSON(data []byte) (*DiscoveryResult, error) {
	res := &DiscoveryResult{}
	if err := json.Unmarshal(data, res); err != nil {
		return nil, errors.Wrap(err, "bad discover output")
	}
	if res.Records == nil {
		res.Records = []DiscoveryEntry{}
	}
	return res, nil
}

// Discover fetches the discovery log page of the discovery controller cfg
// points at.
func (c *Client) Discover(ctx context.Context, cfg *clientconfig.ConnectionConfig) (*DiscoveryResult, error) {
	traddr, err := nvme.AdjustTraddr(cfg.Traddr)
	if err != nil {
		return nil, &NvmeClientError{Msg: fmt.Sprintf("invalid traddr %s", cfg.Traddr), Err: err}
	}
	request := *cfg
	request.Traddr = traddr
	args := append([]string{"discover"}, request.DiscoverArgs()...)
	args = append(args, "-o", "json")
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if out.ExitCode != 0 {
		return nil, failure("discover failed", out)
	}
	res, err := ParseDiscoveryJSON(out.Stdout)
	if err != nil {
		return nil, err
	}
	logrus.WithField("target", request.Key()).Debugf("discovered %d records. genctr: %d", len(res.Records), res.GenCtr)
	return res, nil
}

// SubsystemPath is a controller of a subsystem.
type SubsystemPath struct {
	Name      string `json:"Name" yaml:"name"`
	Transport string `json:"Transport" yaml:"transport"`
	Address   string `json:"Address" yaml:"address"`
	State     string `json:"State" yaml:"state"`
}

// Subsystem as listed by `nvme list-subsys -o json`.
type Subsystem struct {
	HostNQN string          `json:"-" yaml:"hostnqn"`
	Name    string          `json:"Name" yaml:"name"`
	NQN     string          `json:"NQN" yaml:"nqn"`
	Paths   []SubsystemPath `json:"Paths" yaml:"paths"`
}

type subsystemsHost struct {
	HostNQN    string      `json:"HostNQN"`
	HostID     string      `json:"HostID"`
	Subsystems []Subsystem `json:"Subsystems"`
}

// ParseSubsystemsJSON decodes the output of `nvme list-subsys -o json`. Both
// the per host array of nvme-cli 2.x and the single object of older
// versions are accepted.
func ParseSubsystemsJSON(data []byte) ([]Subsystem, error) {
	var hosts []subsystemsHost
	if err := json.Unmarshal(data, &hosts); err != nil {
		var host subsystemsHost
		if err := json.Unmarshal(data, &host); err != nil {
			return nil, errors.Wrap(err, "bad list-subsys output")
		}
		hosts = []subsystemsHost{host}
	}
	res := []Subsystem{}
	for _, host := range hosts {
		for _, subsys := range host.Subsystems {
			// older versions split a subsystem and its paths in two objects
			if len(subsys.NQN) == 0 && len(res) > 0 && len(subsys.Paths) > 0 {
				res[len(res)-1].Paths = append(res[len(res)-1].Paths, subsys.Paths...)
				continue
			}
			subsys.HostNQN = host.HostNQN
			res = append(res, subsys)
		}
	}
	return res, nil
}

func (c *Client) ListSubsystems(ctx context.Context) ([]Subsystem, error) {
	out, err := c.run(ctx, "list-subsys", "-o", "json")
	if err != nil {
		return nil, err
	}
	if out.ExitCode != 0 {
		return nil, failure("list-subsys failed", out)
	}
	if len(strings.TrimSpace(string(out.Stdout))) == 0 {
		return []Subsystem{}, nil
	}
	return ParseSubsystemsJSON(out.Stdout)
}

// DeviceForNQN returns the controller device of the first live path to the
// subsystem nqn.
func (c *Client) DeviceForNQN(ctx context.Context, nqn string) (string, error) {
	subsystems, err := c.ListSubsystems(ctx)
	if err != nil {
		return "", err
	}
	for _, subsys := range subsystems {
		if subsys.NQN != nqn {
			continue
		}
		for _, p := range subsys.Paths {
			if len(p.State) > 0 && p.State != "live" {
				continue
			}
			return filepath.Join("/dev", p.Name), nil
		}
	}
	return "", errors.Wrap(ErrNotConnected, nqn)
}

// FindConnected returns the controllers in sysfs that connect to the same
// target as cfg.
func (c *Client) FindConnected(cfg *clientconfig.ConnectionConfig) ([]*clientconfig.Controller, error) {
	controllers, err := clientconfig.DetectControllers(c.SysfsGlob)
	if err != nil {
		return nil, err
	}
	request := *cfg
	if traddr, err := nvme.AdjustTraddr(cfg.Traddr); err == nil {
		request.Traddr = traddr
	}
	if len(request.Hostnqn) == 0 {
		// any host
		return collections.Filter(controllers, func(ctrl *clientconfig.Controller) bool {
			peer := *ctrl.Config
			peer.Hostnqn = ""
			return peer.Key() == request.Key()
		}), nil
	}
	return collections.Filter(controllers, func(ctrl *clientconfig.Controller) bool {
		return ctrl.Config.Key() == request.Key()
	}), nil
}
