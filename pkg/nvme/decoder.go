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
	"regexp"
	"strconv"
	"strings"

	"github.com/lightbitslabs/nvmf-compliance/pkg/regexutil"
)

// ResultKind tells apart the three ways a command can come back.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultProtocolError
	ResultUnparseable
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultProtocolError:
		return "protocol-error"
	case ResultUnparseable:
		return "unparseable"
	default:
		return "unknown"
	}
}

// DecodeResult is the outcome of decoding a completion, from binary or from
// text. Status is only meaningful for ResultProtocolError.
type DecodeResult struct {
	Kind   ResultKind
	Status StatusField
	// Cause is set for ResultUnparseable.
	Cause *UnparseableError
}

// Err returns nil on success, a *StatusError on protocol errors and an
// *UnparseableError when the response could not be decoded.
func (r DecodeResult) Err() error {
	switch r.Kind {
	case ResultSuccess:
		return nil
	case ResultProtocolError:
		return &StatusError{Status: r.Status}
	default:
		if r.Cause == nil {
			return &UnparseableError{Reason: "no cause recorded"}
		}
		return r.Cause
	}
}

// StatusUnparseable is the vendor specific status placed in a completion that
// is synthesized for an unparseable response. It is never a success.
var StatusUnparseable = NewStatusField(SCTVendorSpecific, 0xff, true)

// CompletionStatus returns the status a completion synthesized from r
// carries.
func (r DecodeResult) CompletionStatus() StatusField {
	switch r.Kind {
	case ResultSuccess:
		return 0
	case ResultProtocolError:
		return r.Status
	default:
		return StatusUnparseable
	}
}

func ResultFromStatus(status StatusField) DecodeResult {
	if status.IsSuccess() {
		return DecodeResult{Kind: ResultSuccess}
	}
	return DecodeResult{Kind: ResultProtocolError, Status: status}
}

// Response is a decoded completion with the data the command returned.
type Response struct {
	DecodeResult
	Completion Completion
	Data       []byte
}

// Result returns the command specific dword 0.
func (r *Response) Result() uint32 {
	return r.Completion.Result.U32()
}

// DecodeCompletion decodes a raw 16 bytes completion queue entry. The status
// is taken as is, it is already bit exact.
func DecodeCompletion(raw []byte) (*Response, error) {
	rsp := &Response{}
	if err := rsp.Completion.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	rsp.DecodeResult = ResultFromStatus(rsp.Completion.StatusField())
	return rsp, nil
}

var statusTokenRegex = regexp.MustCompile(`\((?P<status>[^()]*)\)`)

// DecodeStatusText decodes the status of a command from the diagnostic text
// a tool printed. A zero exit code is a success and the text is ignored.
// Otherwise the first parenthesized token after the last ':' is parsed as a
// hexadecimal status word, e.g. "... Invalid Field in Command(0x4002)".
func DecodeStatusText(exitCode int, text string) DecodeResult {
	if exitCode == 0 {
		return DecodeResult{Kind: ResultSuccess}
	}

	unparseable := func(reason string, err error) DecodeResult {
		return DecodeResult{
			Kind:  ResultUnparseable,
			Cause: &UnparseableError{Text: strings.TrimSpace(text), Reason: reason, Err: err},
		}
	}

	tail := text
	if idx := strings.LastIndex(text, ":"); idx != -1 {
		tail = text[idx+1:]
	}
	params := regexutil.GetParams(statusTokenRegex, tail)
	token, ok := params["status"]
	if !ok {
		return unparseable("no status token", nil)
	}
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(strings.TrimPrefix(token, "0x"), "0X")
	if token == "" {
		return unparseable("empty status token", nil)
	}
	value, err := strconv.ParseUint(token, 16, 16)
	if err != nil {
		return unparseable("invalid status token", err)
	}
	status := StatusField(value)
	if status.IsSuccess() {
		return unparseable("failed execution reported a success status", nil)
	}
	return DecodeResult{Kind: ResultProtocolError, Status: status}
}

var commandResultRegex = regexp.MustCompile(`NVMe command result:\s*(?P<result>[0-9a-fA-F]+)`)

// ParseCommandResult extracts dword 0 from the "NVMe command result:%08x"
// line passthru tools print on success.
func ParseCommandResult(text string) (uint64, bool) {
	params := regexutil.GetParams(commandResultRegex, text)
	token, ok := params["result"]
	if !ok {
		return 0, false
	}
	value, err := strconv.ParseUint(token, 16, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
