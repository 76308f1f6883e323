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

	"github.com/lightbitslabs/nvmf-compliance/pkg/hostapi"
	"github.com/pkg/errors"
)

type NvmeClientError struct {
	Msg    string
	Status int
	Err    error
}

func (e *NvmeClientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s. status: %d", e.Msg, e.Status)
	}
	return fmt.Sprintf("%s. status: %d. err: %v", e.Msg, e.Status, e.Err)
}

func (e *NvmeClientError) Unwrap() error {
	return e.Err
}

var (
	ErrAlreadyConnected = errors.New("controller already connected")
	ErrNotConnected     = errors.New("subsystem not connected")
	ErrInvalidDevice    = errors.New("invalid device")
	ErrUnsupported      = errors.New("unsupported request")
	ErrUnknownHandle    = hostapi.ErrUnknownHandle
)

// failure turns the output of a failed nvme-cli invocation into an error.
func failure(msg string, out *Output) error {
	return &NvmeClientError{
		Msg:    msg,
		Status: out.ExitCode,
		Err:    errors.New(out.diagnostic()),
	}
}
