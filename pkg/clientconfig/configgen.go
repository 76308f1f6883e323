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
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/lightbitslabs/nvmf-compliance/pkg/regexutil"
	"github.com/sirupsen/logrus"
)

const reservedPrefix = ".nvmf-compliance-"

var (
	// format: traddr=10.20.58.40,trsvcid=4420[,src_addr=...]
	addressRegex = regexp.MustCompile(`^traddr=(?P<traddr>[^,]+)(?:,trsvcid=(?P<trsvcid>\d+))?(?:,host_traddr=(?P<hosttraddr>[^,]+))?(?:,.*)?$`)
	NvmeCtrlPath = filepath.Join("/sys/class/nvme", "nvme[0-9]*")
)

// Controller is a fabrics controller the kernel host is connected to.
type Controller struct {
	Device string
	State  string
	Config *ConnectionConfig
}

func writeFileAtomic(filename string, content []byte) error {
	folder := path.Dir(filename)
	tmpfile, err := os.CreateTemp(folder, reservedPrefix)
	if err != nil {
		return err
	}
	defer os.Remove(tmpfile.Name()) // clean up

	if _, err := tmpfile.Write(content); err != nil {
		tmpfile.Close()
		return err
	}
	if err := tmpfile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpfile.Name(), filename)
}

// WriteConfFile stores configs as conf file lines.
func WriteConfFile(filename string, configs []*ConnectionConfig) error {
	if err := writeFileAtomic(filename, []byte(ConfigsToString(configs))); err != nil {
		return fmt.Errorf("failed to write to file. error: %v", err)
	}
	return nil
}

// DetectControllers lists the fabrics controllers found under nvmeCtrlPath,
// a glob of sysfs controller directories. Controllers with missing or
// unparsable attributes are skipped.
func DetectControllers(nvmeCtrlPath string) ([]*Controller, error) {
	devices, err := filepath.Glob(nvmeCtrlPath)
	if err != nil {
		return nil, err
	}
	controllers := []*Controller{}
	for _, d := range devices {
		log := logrus.WithField("device", d)
		transport, err := valueFromFile(filepath.Join(d, "transport"))
		if err != nil {
			continue
		}
		switch transport {
		case "tcp", "rdma", "fc":
		default:
			// pcie and loop controllers are not fabrics controllers
			log.Debugf("skipping transport %q", transport)
			continue
		}
		subsysNqn, err := valueFromFile(filepath.Join(d, "subsysnqn"))
		if err != nil {
			continue
		}
		hostNqn, err := valueFromFile(filepath.Join(d, "hostnqn"))
		if err != nil {
			log.WithError(err).Warnf("failed to read hostnqn")
			continue
		}
		address, err := valueFromFile(filepath.Join(d, "address"))
		if err != nil {
			log.WithError(err).Warn("failed to read address")
			continue
		}
		cfg, err := parseAddress(address)
		if err != nil {
			log.WithError(err).Warnf("failed to parse address")
			continue
		}
		cfg.Transport = transport
		cfg.Subsysnqn = subsysNqn
		cfg.Hostnqn = hostNqn
		// optional attributes
		cfg.Hostid, _ = valueFromFile(filepath.Join(d, "hostid"))
		state, _ := valueFromFile(filepath.Join(d, "state"))

		controllers = append(controllers, &Controller{
			Device: "/dev/" + filepath.Base(d),
			State:  state,
			Config: cfg,
		})
	}
	return controllers, nil
}

func parseAddress(address string) (*ConnectionConfig, error) {
	params := regexutil.GetParams(addressRegex, address)
	traddr, ok := params["traddr"]
	if !ok {
		return nil, fmt.Errorf("failed extracting traddr from address: %q", address)
	}
	cfg := &ConnectionConfig{Traddr: traddr, HostTraddr: params["hosttraddr"]}
	if trsvcid := params["trsvcid"]; trsvcid != "" {
		port, err := strconv.Atoi(trsvcid)
		if err != nil {
			return nil, fmt.Errorf("failed parsing trsvcid of address: %q: %w", address, err)
		}
		cfg.Trsvcid = port
	}
	return cfg, nil
}

func valueFromFile(filename string) (string, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
