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

package regexutil

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var kvRegex = regexp.MustCompile(`(?P<key>[a-z]+)=(?P<value>[^,\s]+)`)

func TestGetParams(t *testing.T) {
	params := GetParams(kvRegex, "traddr=10.0.0.1,trsvcid=4420")
	assert.Equal(t, ParamsMap{"key": "traddr", "value": "10.0.0.1"}, params)

	assert.Empty(t, GetParams(kvRegex, "no pairs here"))
}

func TestGetRepeatedParams(t *testing.T) {
	params := GetRepeatedParams(kvRegex, "traddr=10.0.0.1,trsvcid=4420")
	assert.Len(t, params, 2)
	assert.Equal(t, "trsvcid", params[1]["key"])
	assert.Equal(t, "4420", params[1]["value"])
}

func TestGetParam(t *testing.T) {
	value, ok := GetParam(kvRegex, "host_traddr=192.168.1.1", "value")
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.1", value)

	_, ok = GetParam(kvRegex, "192.168.1.1", "value")
	assert.False(t, ok)

	_, ok = GetParam(kvRegex, "a=b", "missing")
	assert.False(t, ok)
}
