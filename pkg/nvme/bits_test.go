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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name       string
		value      uint32
		start, end uint
		want       uint32
	}{
		{name: "low byte", value: 0xabcd1234, start: 0, end: 8, want: 0x34},
		{name: "second byte", value: 0xabcd1234, start: 8, end: 16, want: 0x12},
		{name: "upper half", value: 0xabcd1234, start: 16, end: 32, want: 0xabcd},
		{name: "single bit", value: 0x00008000, start: 15, end: 16, want: 1},
		{name: "whole dword", value: 0xdeadbeef, start: 0, end: 32, want: 0xdeadbeef},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.value, tt.start, tt.end))
		})
	}
}

func TestInject(t *testing.T) {
	tests := []struct {
		name       string
		value      uint32
		start, end uint
		field      uint32
		want       uint32
	}{
		{name: "clear byte", value: 0xffffffff, start: 8, end: 16, field: 0, want: 0xffff00ff},
		{name: "set nibble", value: 0, start: 8, end: 12, field: 0xa, want: 0x00000a00},
		{name: "field overflow is dropped", value: 0, start: 0, end: 4, field: 0x1f, want: 0xf},
		{name: "upper half", value: 0x0000ffff, start: 16, end: 32, field: 0x1234, want: 0x1234ffff},
		{name: "whole dword", value: 0x1, start: 0, end: 32, field: 0xcafe, want: 0xcafe},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Inject(tt.value, tt.start, tt.end, tt.field)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.field&fieldMask(tt.start, tt.end), Extract(got, tt.start, tt.end))
		})
	}
}

func TestBitRangePanics(t *testing.T) {
	assert.Panics(t, func() { Extract(0, 8, 8) })
	assert.Panics(t, func() { Extract(0, 9, 8) })
	assert.Panics(t, func() { Inject(0, 0, 33, 1) })
}

func TestDword0(t *testing.T) {
	d := Dword0(0).WithOpcode(AdminGetLogPage).WithCommandID(0x1234).WithFuse(1).WithPSDT(PSDTSGLSegments)
	assert.Equal(t, Dword0(0x12348102), d)
	assert.Equal(t, AdminGetLogPage, d.Opcode())
	assert.Equal(t, uint16(0x1234), d.CommandID())
	assert.Equal(t, uint8(1), d.Fuse())
	assert.Equal(t, PSDTSGLSegments, d.PSDT())
	assert.Equal(t, uint8(0x81), d.Flags())

	d = d.WithFuse(0)
	assert.Equal(t, uint8(0), d.Fuse())
	assert.Equal(t, PSDTSGLSegments, d.PSDT())
}

func TestSplit64(t *testing.T) {
	v := uint64(0x0123456789abcdef)
	assert.Equal(t, uint32(0x89abcdef), lower32Bits(v))
	assert.Equal(t, uint32(0x01234567), upper32Bits(v))
	assert.Equal(t, v, join32Bits(lower32Bits(v), upper32Bits(v)))
}

func TestInjectExtractAllRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	edges := []uint32{0, 1, 0x80000000, 0xffffffff, 0xaaaaaaaa, 0x55555555}
	for start := uint(0); start < 32; start++ {
		for end := start + 1; end <= 32; end++ {
			t.Run(fmt.Sprintf("%d-%d", start, end), func(t *testing.T) {
				width := end - start
				outside := ^(fieldMask(start, end) << start)
				values := append([]uint32{}, edges...)
				for i := 0; i < 16; i++ {
					values = append(values, rng.Uint32())
				}
				for _, value := range values {
					for _, field := range values {
						got := Inject(value, start, end, field)
						want := uint32(uint64(field) % (uint64(1) << width))
						if Extract(got, start, end) != want {
							t.Fatalf("Extract(Inject(%#x, %d, %d, %#x)) = %#x, want %#x",
								value, start, end, field, Extract(got, start, end), want)
						}
						if got&outside != value&outside {
							t.Fatalf("Inject(%#x, %d, %d, %#x) = %#x changed bits outside the range",
								value, start, end, field, got)
						}
					}
				}
			})
		}
	}
}
