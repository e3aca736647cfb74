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

package media

import (
	"fmt"
	"strings"
	"time"
)

// ClockTime is a time value in nanoseconds. ClockTimeNone marks an absent value.
type ClockTime uint64

const (
	ClockTimeNone ClockTime = ^ClockTime(0)

	Nanosecond  ClockTime = 1
	Microsecond           = 1000 * Nanosecond
	Millisecond           = 1000 * Microsecond
	Second                = 1000 * Millisecond
)

// OffsetNone marks an absent byte offset.
const OffsetNone uint64 = ^uint64(0)

func (t ClockTime) IsValid() bool {
	return t != ClockTimeNone
}

// Or returns t if valid and def otherwise.
func (t ClockTime) Or(def ClockTime) ClockTime {
	if t.IsValid() {
		return t
	}
	return def
}

func (t ClockTime) Duration() time.Duration {
	return time.Duration(t)
}

func (t ClockTime) String() string {
	if !t.IsValid() {
		return "none"
	}
	return time.Duration(t).String()
}

// IsValidOffset reports whether off is a byte offset and not the OffsetNone sentinel.
func IsValidOffset(off uint64) bool {
	return off != OffsetNone
}

type BufferFlags uint32

const (
	// FlagDiscontinuity marks a break in stream continuity, e.g. after a seek.
	FlagDiscontinuity BufferFlags = 1 << iota
	// FlagDeltaUnit marks data that cannot be decoded on its own (no sync point).
	FlagDeltaUnit
)

func (f BufferFlags) Has(flag BufferFlags) bool {
	return f&flag == flag
}

func (f BufferFlags) String() string {
	if f == 0 {
		return "none"
	}
	s := make([]string, 0, 2)
	if f.Has(FlagDiscontinuity) {
		s = append(s, "discont")
	}
	if f.Has(FlagDeltaUnit) {
		s = append(s, "delta-unit")
	}
	return strings.Join(s, "+")
}

// Buffer is a chunk of bytes travelling through a pipeline together with its transport metadata.
type Buffer struct {
	Data []byte

	PTS       ClockTime
	DTS       ClockTime
	Duration  ClockTime
	Offset    uint64
	OffsetEnd uint64
	Flags     BufferFlags
}

// NewBuffer wraps data into a buffer with all metadata unset.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{
		Data:      data,
		PTS:       ClockTimeNone,
		DTS:       ClockTimeNone,
		Duration:  ClockTimeNone,
		Offset:    OffsetNone,
		OffsetEnd: OffsetNone,
	}
}

func (b *Buffer) Size() int {
	return len(b.Data)
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer{size: %d, pts: %s, dts: %s, duration: %s, offset: %s, offsetEnd: %s, flags: %s}",
		len(b.Data), b.PTS, b.DTS, b.Duration, offsetString(b.Offset), offsetString(b.OffsetEnd), b.Flags)
}

func offsetString(off uint64) string {
	if !IsValidOffset(off) {
		return "none"
	}
	return fmt.Sprintf("%d", off)
}
