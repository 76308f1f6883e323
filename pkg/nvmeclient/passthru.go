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
	"fmt"
	"regexp"

	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
)

var (
	// controller character devices and namespace block devices
	passthruDeviceRegex = regexp.MustCompile(`^/dev/nvme[0-9]+(n[0-9]+)?$`)
	// only controllers can be disconnected
	ctrlDeviceRegex = regexp.MustCompile(`^/dev/nvme[0-9]+$`)
)

// stdinFile is where io and admin passthru read the data of writes from.
const stdinFile = "/dev/stdin"

func dataLen(req *nvme.Request) uint32 {
	if req.Data != nil {
		return uint32(len(req.Data))
	}
	return req.Command.Dptr.DataLen()
}

// PassthruArgs renders req as the arguments of an nvme-cli admin-passthru
// or io-passthru invocation on device. Fabrics commands go through
// admin-passthru with the fabrics opcode, the fctype riding in the nsid
// dword position is passed as is.
func PassthruArgs(device string, req *nvme.Request) ([]string, error) {
	if !passthruDeviceRegex.MatchString(device) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDevice, device)
	}
	cmd := &req.Command

	verb := "admin-passthru"
	if req.CommandSet == nvme.IOCommandSet {
		verb = "io-passthru"
	}
	args := []string{
		verb,
		device,
		fmt.Sprintf("--opcode=%#x", cmd.Opcode),
		fmt.Sprintf("--namespace-id=%#x", cmd.NSID),
	}
	if cmd.Flags != 0 {
		args = append(args, fmt.Sprintf("--flags=%#x", cmd.Flags))
	}
	for _, cdw := range []struct {
		name  string
		value uint32
	}{
		{"cdw2", cmd.Cdw2},
		{"cdw3", cmd.Cdw3},
		{"cdw10", cmd.Cdw10},
		{"cdw11", cmd.Cdw11},
		{"cdw12", cmd.Cdw12},
		{"cdw13", cmd.Cdw13},
		{"cdw14", cmd.Cdw14},
		{"cdw15", cmd.Cdw15},
	} {
		args = append(args, fmt.Sprintf("--%s=%#x", cdw.name, cdw.value))
	}
	if req.TimeoutMS > 0 {
		args = append(args, fmt.Sprintf("--timeout=%d", req.TimeoutMS))
	}

	length := dataLen(req)
	switch {
	case req.Direction == nvme.DataBidirectional:
		return nil, fmt.Errorf("%w: bidirectional transfer of %s", ErrUnsupported, req)
	case length == 0:
		if req.CommandSet == nvme.FabricsCommandSet {
			// property get values come back in the printed result
			args = append(args, "--read")
		}
	case req.Direction == nvme.DataToController:
		args = append(args, fmt.Sprintf("--data-len=%d", length), "--write", "--input-file="+stdinFile)
	default:
		args = append(args, fmt.Sprintf("--data-len=%d", length), "--read", "--raw-binary")
	}
	return args, nil
}
