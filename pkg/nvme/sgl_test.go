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
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSglWriter(t *testing.T) {
	sgl := NewScatterList(100, 10)
	assert.Equal(t, 100, sgl.capacity)
	assert.Equal(t, 0, sgl.len)
	assert.Equal(t, 10, sgl.Segments())

	writer := NewScatterListWriter(sgl)
	buffer := make([]uint8, 90)
	rand.Read(buffer)
	count, err := writer.Write(buffer)
	require.NoError(t, err)
	assert.Equal(t, 90, count)
	assert.Equal(t, 90, sgl.len)
	assert.Equal(t, 10, sgl.Len())
	assert.Equal(t, 10, writer.Len())

	for i := 0; i < 9; i++ {
		assert.Equal(t, buffer[10*i:10*(i+1)], sgl.buffers[i])
	}

	// now write 11 more bytes, only 10 fit
	buffer2 := make([]uint8, 11)
	rand.Read(buffer2)
	count, err = writer.Write(buffer2)
	assert.Equal(t, 10, count)
	assert.Equal(t, io.ErrShortBuffer, err)
	assert.Equal(t, 100, sgl.len)

	// Check original buffers that they are not overwritten
	for i := 0; i < 9; i++ {
		assert.Equal(t, buffer[10*i:10*(i+1)], sgl.buffers[i])
	}
	assert.Equal(t, buffer2[:10], sgl.buffers[sgl.Segments()-1])
}

func TestSglWriterOverwriteBuffer(t *testing.T) {
	sgl := NewScatterList(100, 100)
	assert.Equal(t, 1, sgl.Segments())

	writer := NewScatterListWriter(sgl)
	buffer := make([]uint8, 101)
	rand.Read(buffer)
	count, err := writer.Write(buffer)
	assert.Equal(t, 100, count)
	assert.Equal(t, io.ErrShortBuffer, err)
	assert.Equal(t, 100, sgl.len)
	assert.Equal(t, buffer[:100], sgl.Bytes())

	count, err = writer.Write(make([]uint8, 1))
	assert.Equal(t, 0, count)
	assert.Equal(t, io.ErrShortBuffer, err)
	assert.Equal(t, 100, sgl.len)
}

func TestSglWriterSmallBuffers(t *testing.T) {
	sgl := NewScatterList(20, 20)

	var buffer1 [10]uint8
	var buffer2 [9]uint8
	rand.Read(buffer1[:])
	rand.Read(buffer2[:])

	writer := NewScatterListWriter(sgl)
	count, err := writer.Write(buffer1[:])
	require.NoError(t, err)
	assert.Equal(t, 10, count)
	assert.Equal(t, 10, writer.Offset())
	assert.Equal(t, 0, writer.Index())

	count, err = writer.Write(buffer2[:])
	require.NoError(t, err)
	assert.Equal(t, 9, count)
	assert.Equal(t, 19, sgl.len)

	assert.Equal(t, buffer1[:], sgl.buffers[0][:10])
	assert.Equal(t, buffer2[:], sgl.buffers[0][10:19])
}

func TestSglReader(t *testing.T) {
	tests := []struct {
		name      string
		bufferLen int
	}{
		{name: "single buffer", bufferLen: 100},
		{name: "multiple buffers", bufferLen: 10},
		{name: "uneven buffers", bufferLen: 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sgl := NewScatterList(100, tt.bufferLen)
			buffer := make([]uint8, 100)
			rand.Read(buffer)
			_, err := NewScatterListWriter(sgl).Write(buffer)
			require.NoError(t, err)

			outBuffer := make([]uint8, 100)
			reader := NewScatterListReader(sgl)
			count, err := reader.Read(outBuffer)
			require.NoError(t, err)
			assert.Equal(t, 100, count)
			assert.Equal(t, buffer, outBuffer)
			assert.Equal(t, 0, reader.Len())

			count, err = reader.Read(make([]uint8, 1))
			assert.Equal(t, 0, count)
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestSglFromSharesMemory(t *testing.T) {
	data := make([]byte, 25)
	sgl := NewScatterListFrom(data, 10)
	assert.Equal(t, 3, sgl.Segments())
	assert.Equal(t, 25, sgl.Size())

	payload := make([]byte, 25)
	rand.Read(payload)
	count, err := NewScatterListWriter(sgl).Write(payload)
	require.NoError(t, err)
	assert.Equal(t, 25, count)
	assert.Equal(t, payload, data)
	assert.Equal(t, payload, sgl.Bytes())
}
