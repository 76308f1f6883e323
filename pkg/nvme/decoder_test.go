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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStatusText(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		text     string
		kind     ResultKind
		status   StatusField
	}{
		{
			name:     "zero exit is success whatever the text says",
			exitCode: 0,
			text:     "NVMe status: INVALID_FIELD(0x4002)",
			kind:     ResultSuccess,
		},
		{
			name:     "nvme-cli admin passthru failure",
			exitCode: 1,
			text:     "NVMe status: Invalid Field in Command: A reserved coded value or an unsupported value in a defined field(0x4002)\n",
			kind:     ResultProtocolError,
			status:   0x4002,
		},
		{
			name:     "token without 0x prefix",
			exitCode: 1,
			text:     "NVME IO command error:INVALID_FIELD: A reserved coded value(4002)",
			kind:     ResultProtocolError,
			status:   0x4002,
		},
		{
			name:     "connect failure",
			exitCode: 1,
			text:     "NVMe status: CONNECT_INVALID_PARAM: The connect command contains an invalid parameter(0x4182)",
			kind:     ResultProtocolError,
			status:   0x4182,
		},
		{
			name:     "only the text after the last colon is looked at",
			exitCode: 1,
			text:     "status(0x4002): connection reset by peer",
			kind:     ResultUnparseable,
		},
		{
			name:     "no status token",
			exitCode: 1,
			text:     "failed to open /dev/nvme0: No such file or directory",
			kind:     ResultUnparseable,
		},
		{
			name:     "not hexadecimal",
			exitCode: 1,
			text:     "NVMe status: broken(zz)",
			kind:     ResultUnparseable,
		},
		{
			name:     "empty token",
			exitCode: 1,
			text:     "NVMe status: ()",
			kind:     ResultUnparseable,
		},
		{
			name:     "wider than 16 bits",
			exitCode: 1,
			text:     "NVMe status: weird(0x14002)",
			kind:     ResultUnparseable,
		},
		{
			name:     "failed execution with success status",
			exitCode: 1,
			text:     "NVMe status: SUCCESS: The command completed successfully(0)",
			kind:     ResultUnparseable,
		},
		{
			name:     "first token after the colon wins",
			exitCode: 22,
			text:     "error: LBA_RANGE(0x80) (0x4002)",
			kind:     ResultProtocolError,
			status:   0x0080,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DecodeStatusText(tt.exitCode, tt.text)
			assert.Equal(t, tt.kind, result.Kind)
			switch tt.kind {
			case ResultSuccess:
				assert.NoError(t, result.Err())
			case ResultProtocolError:
				assert.Equal(t, tt.status, result.Status)
				var statusErr *StatusError
				require.True(t, errors.As(result.Err(), &statusErr))
				assert.Equal(t, tt.status, statusErr.Status)
			case ResultUnparseable:
				require.NotNil(t, result.Cause)
				var unparseable *UnparseableError
				require.True(t, errors.As(result.Err(), &unparseable))
				assert.NotEmpty(t, unparseable.Reason)
			}
		})
	}
}

func TestUnparseableWithoutCause(t *testing.T) {
	result := DecodeResult{Kind: ResultUnparseable}
	var unparseable *UnparseableError
	assert.True(t, errors.As(result.Err(), &unparseable))
}

func TestResultFromStatus(t *testing.T) {
	assert.Equal(t, ResultSuccess, ResultFromStatus(0).Kind)
	assert.Equal(t, ResultSuccess, ResultFromStatus(0x4000).Kind)
	assert.Equal(t, ResultProtocolError, ResultFromStatus(0x0002).Kind)
}

func TestParseCommandResult(t *testing.T) {
	value, ok := ParseCommandResult("NVMe command result:00070003\n")
	assert.True(t, ok)
	assert.Equal(t, uint64(0x00070003), value)

	value, ok = ParseCommandResult("NVMe command result: 1")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), value)

	_, ok = ParseCommandResult("Admin Command Identify is Success and result: 0x00000000")
	assert.False(t, ok)
}

func TestResultKindString(t *testing.T) {
	assert.Equal(t, "success", ResultSuccess.String())
	assert.Equal(t, "protocol-error", ResultProtocolError.String())
	assert.Equal(t, "unparseable", ResultUnparseable.String())
}

func TestCompletionStatus(t *testing.T) {
	tests := []struct {
		name    string
		result  DecodeResult
		status  StatusField
		success bool
	}{
		{name: "success", result: DecodeStatusText(0, ""), status: 0, success: true},
		{name: "protocol error", result: DecodeStatusText(1, "NVMe status: INVALID_FIELD(0x4002)"), status: 0x4002},
		{name: "unparseable", result: DecodeStatusText(1, "open: No such file or directory"), status: StatusUnparseable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := tt.result.CompletionStatus()
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.success, status.IsSuccess())
			assert.Equal(t, tt.success, NewCompletion(1, 0, status).StatusField().IsSuccess())
		})
	}
	assert.True(t, StatusUnparseable.DNR())
	assert.Equal(t, SCTVendorSpecific, StatusUnparseable.SCT())
}
