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

package nvme

import (
	"errors"
	"fmt"
)

var (
	ErrShortCompletion = errors.New("completion queue entry must be 16 bytes")
	ErrUnknownOpcode   = errors.New("unknown opcode for command set")
	ErrLengthOverflow  = errors.New("transfer length overflow")
)

// StatusError is a completion that carries a non success status. It is an
// expected outcome the caller asserts on, not a failure of the harness.
type StatusError struct {
	Status StatusField
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nvme status: %s", e.Status)
}

// Is matches any StatusError with the same SCT and SC, CRD, M and DNR are
// ignored.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return t.Status.SCT() == e.Status.SCT() && t.Status.SC() == e.Status.SC()
}

// UnparseableError is returned when a textual status could not be decoded.
// It must never be mistaken for a successful execution.
type UnparseableError struct {
	Text   string
	Reason string
	Err    error
}

func (e *UnparseableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unparseable response %q: %s: %v", e.Text, e.Reason, e.Err)
	}
	return fmt.Sprintf("unparseable response %q: %s", e.Text, e.Reason)
}

func (e *UnparseableError) Unwrap() error {
	return e.Err
}

// DecodeError reports a command that cannot be mapped back to an intent. Err
// defaults to ErrUnknownOpcode.
type DecodeError struct {
	Set    CommandSet
	Opcode uint8
	Msg    string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s command opcode %#02x: %s", e.Set, e.Opcode, e.Msg)
}

func (e *DecodeError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnknownOpcode
}
