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
	"errors"
	"io"

	mp4ff "github.com/edgeware/mp4ff/mp4"
)

var (
	ErrMalformedBox = errors.New("malformed box")
	ErrBoxTooLarge  = errors.New("box too large")
)

const (
	boxSizeLen   = 4
	boxNameLen   = 4
	boxHeaderLen = boxSizeLen + boxNameLen
	largeSizeLen = 8
)

const (
	EmsgBoxStr = "emsg"
	FreeBoxStr = "free"
	FtypBoxStr = "ftyp"
	MdatBoxStr = "mdat"
	MoofBoxStr = "moof"
	MoovBoxStr = "moov"
	PrftBoxStr = "prft"
	SidxBoxStr = "sidx"
	SkipBoxStr = "skip"
	StypBoxStr = "styp"
)

// BoxType is the closed set of boxes a fragment is assembled from.
type BoxType uint8

const (
	BoxTypeUnknown BoxType = iota
	BoxTypeFtyp
	BoxTypeMoov
	BoxTypeMoof
	BoxTypeMdat
)

// FourCC tags as big-endian uint32.
const (
	FtypFourCC uint32 = 1718909296
	MoovFourCC uint32 = 1836019574
	MoofFourCC uint32 = 1836019558
	MdatFourCC uint32 = 1835295092
)

func BoxTypeOf(fourCC uint32) BoxType {
	switch fourCC {
	case FtypFourCC:
		return BoxTypeFtyp
	case MoovFourCC:
		return BoxTypeMoov
	case MoofFourCC:
		return BoxTypeMoof
	case MdatFourCC:
		return BoxTypeMdat
	}
	return BoxTypeUnknown
}

func (t BoxType) String() string {
	switch t {
	case BoxTypeFtyp:
		return FtypBoxStr
	case BoxTypeMoov:
		return MoovBoxStr
	case BoxTypeMoof:
		return MoofBoxStr
	case BoxTypeMdat:
		return MdatBoxStr
	}
	return "unknown"
}

// Box is one complete box including its header.
type Box struct {
	Type BoxType
	// Name is the FourCC as string, also set for unknown boxes.
	Name string
	// Offset is the position of the first header byte in the stream.
	Offset uint64
	// Data holds the encoded box. len(Data) equals the size declared in its header.
	Data []byte
}

func (b Box) Size() uint64 {
	return uint64(len(b.Data))
}

// ParseHeader reads a box header from the start of p. It returns false if p is too short to hold the complete header.
//
// adopted from mp4ff box.go
func ParseHeader(hdr *mp4ff.BoxHeader, p []byte) (bool, error) {
	if len(p) < boxHeaderLen {
		return false, nil
	}
	size := uint64(binary.BigEndian.Uint32(p[0:boxSizeLen]))
	headerLen := boxHeaderLen
	switch {
	case size == 1:
		if len(p) < boxHeaderLen+largeSizeLen {
			return false, nil
		}
		size = binary.BigEndian.Uint64(p[boxHeaderLen : boxHeaderLen+largeSizeLen])
		headerLen += largeSizeLen
	case size == 0:
		// size 0 means "to end of file" which has no meaning in an unbounded stream
		return false, ErrMalformedBox
	}
	if size < uint64(headerLen) {
		return false, ErrMalformedBox
	}
	hdr.Name = string(p[boxSizeLen:boxHeaderLen])
	hdr.Size = size
	hdr.Hdrlen = headerLen
	return true, nil
}

func EncodeHeader(hdr *mp4ff.BoxHeader, buf []byte) (n int, err error) {
	largeSize := (hdr.Size >= 1<<32)
	if (largeSize && len(buf) < boxHeaderLen+largeSizeLen) || len(buf) < boxHeaderLen {
		return 0, io.ErrShortBuffer
	}
	if len(hdr.Name) != boxNameLen {
		return 0, ErrMalformedBox
	}

	// box size + name
	if largeSize {
		binary.BigEndian.PutUint32(buf[0:boxSizeLen], 1) // signals large size
	} else {
		binary.BigEndian.PutUint32(buf[0:boxSizeLen], uint32(hdr.Size))
	}
	n = boxSizeLen
	n += copy(buf[boxSizeLen:boxHeaderLen], hdr.Name)

	// box large size
	if largeSize {
		binary.BigEndian.PutUint64(buf[n:n+largeSizeLen], hdr.Size)
		n += largeSizeLen
	}

	return n, nil
}

// NewBox encodes a box with the given name around payload.
func NewBox(name string, payload []byte) ([]byte, error) {
	hdr := &mp4ff.BoxHeader{
		Name: name,
		Size: uint64(boxHeaderLen + len(payload)),
	}
	if hdr.Size >= 1<<32 {
		hdr.Size += largeSizeLen
	}
	buf := make([]byte, int(hdr.Size))
	n, err := EncodeHeader(hdr, buf)
	if err != nil {
		return nil, err
	}
	copy(buf[n:], payload)
	return buf, nil
}
