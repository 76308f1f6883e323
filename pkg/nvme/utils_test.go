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
	"github.com/stretchr/testify/require"
)

func TestAdjustTraddrLiterals(t *testing.T) {
	for _, traddr := range []string{"10.0.0.1", "fe80::1", "::ffff:10.0.0.1"} {
		adjusted, err := AdjustTraddr(traddr)
		require.NoError(t, err)
		assert.Equal(t, traddr, adjusted)
	}
}

func TestAddressFamily(t *testing.T) {
	fam, err := AddressFamily("192.168.1.1")
	require.NoError(t, err)
	assert.Equal(t, AdrFamIPv4, fam)

	fam, err = AddressFamily("2001:db8::1")
	require.NoError(t, err)
	assert.Equal(t, AdrFamIPv6, fam)

	_, err = AddressFamily("storage.local")
	assert.Error(t, err)
}
