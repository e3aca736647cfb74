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

package payloader

import (
	"errors"

	"github.com/nagare-media/payloader/pkg/media"
)

var ErrMissingPTS = errors.New("mdat chunk without PTS")

// Metadata aggregated over all chunks that contribute to one mdat box.
type Metadata struct {
	PTS       media.ClockTime
	DTS       media.ClockTime
	Duration  media.ClockTime
	Offset    uint64
	OffsetEnd uint64
	Flags     media.BufferFlags
}

// NewMetadata returns empty metadata. The delta unit flag is set until a contributing chunk is a sync point.
func NewMetadata() Metadata {
	return Metadata{
		PTS:       media.ClockTimeNone,
		DTS:       media.ClockTimeNone,
		Duration:  media.ClockTimeNone,
		Offset:    media.OffsetNone,
		OffsetEnd: media.OffsetNone,
		Flags:     media.FlagDeltaUnit,
	}
}

// Merge the metadata of a contributing chunk.
//
//	PTS, DTS, Offset: first valid value wins
//	OffsetEnd:        last valid value wins
//	Duration:         sum of valid values, chunks without a duration contribute zero
//	delta unit:       cleared by the first chunk that is not a delta unit
//	discontinuity:    set by the first chunk that carries it
//
// Duration stays ClockTimeNone if no contributing chunk carries a duration, so an unknown duration is not reported as
// zero.
func (m *Metadata) Merge(buf *media.Buffer) error {
	if !buf.PTS.IsValid() {
		return ErrMissingPTS
	}

	if !m.PTS.IsValid() {
		m.PTS = buf.PTS
	}
	if !m.DTS.IsValid() {
		m.DTS = buf.DTS
	}
	if buf.Duration.IsValid() {
		m.Duration = m.Duration.Or(0) + buf.Duration
	}
	if !media.IsValidOffset(m.Offset) && media.IsValidOffset(buf.Offset) {
		m.Offset = buf.Offset
	}
	if media.IsValidOffset(buf.OffsetEnd) {
		m.OffsetEnd = buf.OffsetEnd
	}
	if !buf.Flags.Has(media.FlagDeltaUnit) {
		m.Flags &^= media.FlagDeltaUnit
	}
	if buf.Flags.Has(media.FlagDiscontinuity) {
		m.Flags |= media.FlagDiscontinuity
	}

	return nil
}

// Apply copies m onto buf.
func (m Metadata) Apply(buf *media.Buffer) *media.Buffer {
	buf.PTS = m.PTS
	buf.DTS = m.DTS
	buf.Duration = m.Duration
	buf.Offset = m.Offset
	buf.OffsetEnd = m.OffsetEnd
	buf.Flags = m.Flags
	return buf
}
