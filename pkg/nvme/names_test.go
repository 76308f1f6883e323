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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpcodeName(t *testing.T) {
	tests := []struct {
		set    CommandSet
		opcode uint8
		nsid   uint32
		want   string
	}{
		{AdminCommandSet, AdminGetLogPage, 0, "nvme_admin_get_log_page"},
		{IOCommandSet, IORead, 1, "nvme_cmd_read"},
		{AdminCommandSet, AdminKeepAlive, 0, "nvme_admin_keep_alive"},
		{FabricsCommandSet, FabricsCommand, uint32(FabricsTypeConnect), "nvme_fabrics_type_connect"},
		{FabricsCommandSet, FabricsCommand, uint32(FabricsTypePropertySet), "nvme_fabrics_type_property_set"},
		{FabricsCommandSet, AdminIdentify, 0, "UNKNOWN"},
		{IOCommandSet, 0x99, 0, "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, OpcodeName(tt.set, tt.opcode, tt.nsid))
		})
	}
}

func TestStatusName(t *testing.T) {
	assert.Equal(t, "INVALID_FIELD", StatusName(0x4002))
	assert.Equal(t, "CONNECT_INVALID_HOST", StatusName(0x0184))
	assert.Equal(t, "UNKNOWN", StatusName(0x00ee))
	assert.Equal(t, "PATH_ERROR", StatusName(0x0300))
}

func TestLogAndFeatureNames(t *testing.T) {
	assert.Equal(t, "Discovery", LogPageName(LogDiscovery))
	assert.Equal(t, "UNKNOWN", LogPageName(0x42))
	assert.Equal(t, "Keep Alive Timer", FeatureName(FeatKATO))
	assert.Equal(t, "UNKNOWN", FeatureName(0x7e))
}
