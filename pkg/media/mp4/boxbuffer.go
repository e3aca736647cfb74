/*
Copyright 2022-2025 The nagare media authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mp4

import (
	"encoding/binary"
	"fmt"

	mp4ff "github.com/edgeware/mp4ff/mp4"
)

// minPendingMdatLen is the number of buffered bytes from which on a pending mdat box carries payload.
const minPendingMdatLen = boxHeaderLen + 1

// BoxBuffer reassembles complete boxes from chunks of arbitrary size and alignment.
//
// Extracted boxes reference the internal buffer. Bytes handed out are never written again, so callers may keep them
// around without copying.
type BoxBuffer struct {
	buf        []byte
	maxBoxSize uint64

	// stream positions of buf[0] and of the byte after the last appended one
	consumed uint64
	appended uint64
}

// NewBoxBuffer creates a new box buffer. A maxBoxSize of 0 disables the size limit.
func NewBoxBuffer(maxBoxSize uint64) *BoxBuffer {
	return &BoxBuffer{
		maxBoxSize: maxBoxSize,
	}
}

// Append p to the buffer. p is copied.
func (b *BoxBuffer) Append(p []byte) {
	b.buf = append(b.buf, p...)
	b.appended += uint64(len(p))
}

// Len returns the number of buffered bytes not yet extracted.
func (b *BoxBuffer) Len() int {
	return len(b.buf)
}

// Position returns the stream position of the next byte that will be appended.
func (b *BoxBuffer) Position() uint64 {
	return b.appended
}

// HasPendingMdat reports whether the buffered bytes start with an mdat box that already carries payload bytes.
func (b *BoxBuffer) HasPendingMdat() bool {
	return len(b.buf) >= minPendingMdatLen &&
		binary.BigEndian.Uint32(b.buf[boxSizeLen:boxHeaderLen]) == MdatFourCC
}

// Next extracts the next complete box. It returns false if more data needs to be appended first. Bytes buffered
// beyond the extracted box are kept for the next call.
func (b *BoxBuffer) Next() (Box, bool, error) {
	hdr := mp4ff.BoxHeader{}
	ok, err := ParseHeader(&hdr, b.buf)
	if err != nil {
		return Box{}, false, fmt.Errorf("box at offset %d: %w", b.consumed, err)
	}
	if !ok {
		return Box{}, false, nil
	}
	if b.maxBoxSize > 0 && hdr.Size > b.maxBoxSize {
		return Box{}, false, fmt.Errorf("%s box at offset %d with size %d: %w", hdr.Name, b.consumed, hdr.Size, ErrBoxTooLarge)
	}
	if uint64(len(b.buf)) < hdr.Size {
		return Box{}, false, nil
	}

	box := Box{
		Type:   BoxTypeOf(binary.BigEndian.Uint32(b.buf[boxSizeLen:boxHeaderLen])),
		Name:   hdr.Name,
		Offset: b.consumed,
		Data:   b.buf[:hdr.Size:hdr.Size],
	}

	if rest := b.buf[hdr.Size:]; len(rest) > 0 {
		b.buf = rest
	} else {
		// start over with a new array; the old one is still referenced by box
		b.buf = nil
	}
	b.consumed += hdr.Size

	return box, true, nil
}

// Reset discards all buffered bytes. Stream positions keep counting.
func (b *BoxBuffer) Reset() {
	b.consumed += uint64(len(b.buf))
	b.buf = nil
}
