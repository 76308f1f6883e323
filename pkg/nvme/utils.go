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
	"fmt"
	"net"
)

func minInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}

// AdjustTraddr resolves a host name to its first address, IP literals are
// returned unchanged.
func AdjustTraddr(traddr string) (string, error) {
	if ip := net.ParseIP(traddr); ip != nil {
		return traddr, nil
	}
	addrs, err := net.LookupIP(traddr)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no address found for %q", traddr)
	}
	// traddr is hostname - adjust to the first ip
	return addrs[0].String(), nil
}

// AddressFamily returns the ADRFAM of an IP literal traddr.
func AddressFamily(traddr string) (uint8, error) {
	ip := net.ParseIP(traddr)
	switch {
	case ip == nil:
		return 0, fmt.Errorf("%q is not an ip address", traddr)
	case ip.To4() != nil:
		return AdrFamIPv4, nil
	default:
		return AdrFamIPv6, nil
	}
}
