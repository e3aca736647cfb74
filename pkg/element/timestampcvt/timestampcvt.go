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

// Package timestampcvt converts buffer timestamps from nanoseconds since the NTP epoch 1900-01-01 00:00:00 UTC (not
// including leap seconds) to nanoseconds since 1970-01-01 00:00:00 TAI (including leap seconds).
package timestampcvt

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nagare-media/payloader/pkg/element"
	"github.com/nagare-media/payloader/pkg/media"
	"github.com/nagare-media/payloader/pkg/timestamp"
)

type TimestampCvt struct {
	element.Base
	log *zap.SugaredLogger

	dropped atomic.Uint64
}

func New(log *zap.SugaredLogger) *TimestampCvt {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &TimestampCvt{
		Base: element.NewBase("timestampcvt"),
		log:  log,
	}
}

// Chain converts PTS and DTS of buf. Buffers without PTS or with a PTS out of range are dropped. A DTS that cannot be
// converted is cleared.
func (e *TimestampCvt) Chain(buf *media.Buffer) error {
	if !buf.PTS.IsValid() {
		e.dropped.Add(1)
		e.log.Warn("dropping buffer because PTS is none")
		return nil
	}

	pts, ok := timestamp.FromNTP(uint64(buf.PTS))
	if !ok {
		e.dropped.Add(1)
		e.log.Warnw("dropping buffer because PTS is out of range",
			"pts", uint64(buf.PTS),
			"min", timestamp.MinTimestamp,
			"max", timestamp.MaxTimestamp,
		)
		return nil
	}

	dts := media.ClockTimeNone
	if buf.DTS.IsValid() {
		if ts, ok := timestamp.FromNTP(uint64(buf.DTS)); ok {
			dts = media.ClockTime(ts)
		}
	}

	e.log.Debugw("convert timestamps", "inputPTS", uint64(buf.PTS), "outputPTS", pts, "inputDTS", uint64(buf.DTS), "outputDTS", uint64(dts))
	buf.PTS = media.ClockTime(pts)
	buf.DTS = dts
	return e.Push(buf)
}

// Dropped returns the number of dropped buffers.
func (e *TimestampCvt) Dropped() uint64 {
	return e.dropped.Load()
}
