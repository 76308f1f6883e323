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
	"io"
)

// ScatterList is a data buffer made of fixed size segments, the way a
// controller sees host memory it transfers command data to and from.
type ScatterList struct {
	buffers  [][]byte
	len      int
	capacity int
}

func NewScatterList(datalen, bufferLen int) *ScatterList {
	buffers := make([][]byte, 0)

	for left := datalen; left > 0; {
		bufferSize := minInt(left, bufferLen)
		buffers = append(buffers, make([]byte, bufferSize))
		left -= bufferSize
	}

	return &ScatterList{buffers: buffers, len: 0, capacity: datalen}
}

// NewScatterListFrom splits data in segments of bufferLen bytes. The segments
// share memory with data, a write through the list is visible in data.
func NewScatterListFrom(data []byte, bufferLen int) *ScatterList {
	buffers := make([][]byte, 0)
	for start := 0; start < len(data); start += bufferLen {
		end := minInt(start+bufferLen, len(data))
		buffers = append(buffers, data[start:end:end])
	}
	return &ScatterList{buffers: buffers, len: 0, capacity: len(data)}
}

// Len is the amount of data we can write before filling the sgl
func (sgl *ScatterList) Len() int {
	return sgl.capacity - sgl.len
}

func (sgl *ScatterList) Size() int {
	return sgl.capacity
}

// Segments returns the number of buffers the list is made of.
func (sgl *ScatterList) Segments() int {
	return len(sgl.buffers)
}

// Bytes returns the content of the list as one contiguous buffer.
func (sgl *ScatterList) Bytes() []byte {
	data := make([]byte, 0, sgl.capacity)
	for _, buffer := range sgl.buffers {
		data = append(data, buffer...)
	}
	return data
}

func (sgl *ScatterList) String() string {
	return fmt.Sprintf("sgl segments: %d. size: %d. written: %d", len(sgl.buffers), sgl.capacity, sgl.len)
}

// cursor is a position inside a ScatterList shared by readers and writers.
type cursor struct {
	sgl    *ScatterList
	offset int
	index  int
}

// Len is the number of bytes after the cursor.
func (c *cursor) Len() int {
	sum := 0
	for i := 0; i < c.index; i++ {
		sum += len(c.sgl.buffers[i])
	}
	return c.sgl.Size() - (sum + c.offset)
}

func (c *cursor) Size() int {
	return c.sgl.Size()
}

// Offset offset in bytes from the begining of buffers[index]
func (c *cursor) Offset() int {
	return c.offset
}

// Index the buffer number currently in use
func (c *cursor) Index() int {
	return c.index
}

// advance moves the cursor by n bytes inside the current buffer and returns
// the bytes it moved over.
func (c *cursor) advance(n int) []byte {
	buffer := c.sgl.buffers[c.index]
	step := minInt(len(buffer)-c.offset, n)
	segment := buffer[c.offset : c.offset+step]
	c.offset += step
	if c.offset == len(buffer) {
		c.offset = 0
		c.index++
	}
	return segment
}

type scatterListReader struct {
	cursor
}

// Read sgl into buffer p
// Return amount of bytes read,  error if SGL is too short
func (reader *scatterListReader) Read(p []byte) (n int, err error) {
	for n < len(p) && reader.index < len(reader.sgl.buffers) {
		n += copy(p[n:], reader.advance(len(p)-n))
	}

	// our SGL is too short to serve the read
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

type scatterListWriter struct {
	cursor
}

// Writes continious buffer p into sgl
func (writer *scatterListWriter) Write(p []byte) (n int, err error) {
	for n < len(p) && writer.index < len(writer.sgl.buffers) {
		copied := copy(writer.advance(len(p)-n), p[n:])
		writer.sgl.len += copied
		n += copied
	}

	if n < len(p) {
		return n, io.ErrShortBuffer
	}
	return n, nil
}

func NewScatterListWriter(sgl *ScatterList) *scatterListWriter {
	return &scatterListWriter{cursor{sgl: sgl}}
}

func NewScatterListReader(sgl *ScatterList) *scatterListReader {
	return &scatterListReader{cursor{sgl: sgl}}
}
