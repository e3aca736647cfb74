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

// Package timestamp converts wall clock times into nanoseconds since 1970-01-01 00:00:00 TAI.
package timestamp

import (
	"fmt"
	"math"
	"time"
)

// Timestamp is the number of nanoseconds since 1970-01-01 00:00:00 TAI (International Atomic Time), including leap
// seconds.
type Timestamp uint64

const (
	MinTimestamp Timestamp = 0
	MaxTimestamp Timestamp = math.MaxInt64

	// seconds from the NTP epoch 1900-01-01 to the Unix epoch 1970-01-01
	ntpUnixOffset = 2208988800

	nanosPerSecond = uint64(time.Second)
)

type leapSecond struct {
	// unix is the UTC time in seconds since the Unix epoch from which on offset applies.
	unix int64
	// offset is TAI - UTC in seconds.
	offset int64
}

// TAI - UTC since 1972-01-01. Earlier times are treated as having no offset.
var leapSeconds = []leapSecond{
	{63072000, 10},   // 1972-01-01
	{78796800, 11},   // 1972-07-01
	{94694400, 12},   // 1973-01-01
	{126230400, 13},  // 1974-01-01
	{157766400, 14},  // 1975-01-01
	{189302400, 15},  // 1976-01-01
	{220924800, 16},  // 1977-01-01
	{252460800, 17},  // 1978-01-01
	{283996800, 18},  // 1979-01-01
	{315532800, 19},  // 1980-01-01
	{362793600, 20},  // 1981-07-01
	{394329600, 21},  // 1982-07-01
	{425865600, 22},  // 1983-07-01
	{489024000, 23},  // 1985-07-01
	{567993600, 24},  // 1988-01-01
	{631152000, 25},  // 1990-01-01
	{662688000, 26},  // 1991-01-01
	{709948800, 27},  // 1992-07-01
	{741484800, 28},  // 1993-07-01
	{773020800, 29},  // 1994-07-01
	{820454400, 30},  // 1996-01-01
	{867715200, 31},  // 1997-07-01
	{915148800, 32},  // 1999-01-01
	{1136073600, 33}, // 2006-01-01
	{1230768000, 34}, // 2009-01-01
	{1341100800, 35}, // 2012-07-01
	{1435708800, 36}, // 2015-07-01
	{1483228800, 37}, // 2017-01-01
}

// LeapSeconds returns TAI - UTC at the given UTC time in seconds since the Unix epoch.
func LeapSeconds(unixSeconds int64) int64 {
	for i := len(leapSeconds) - 1; i >= 0; i-- {
		if unixSeconds >= leapSeconds[i].unix {
			return leapSeconds[i].offset
		}
	}
	return 0
}

// FromUnix converts nanoseconds since 1970-01-01 00:00:00 UTC, not including leap seconds. It returns false if the
// result is out of range.
func FromUnix(unixNanos uint64) (Timestamp, bool) {
	if unixNanos > uint64(MaxTimestamp) {
		return 0, false
	}
	leap := uint64(LeapSeconds(int64(unixNanos/nanosPerSecond))) * nanosPerSecond
	if unixNanos > uint64(MaxTimestamp)-leap {
		return 0, false
	}
	return Timestamp(unixNanos + leap), true
}

// FromNTP converts nanoseconds since the NTP epoch 1900-01-01 00:00:00 UTC, not including leap seconds. It returns
// false if the result is out of range, i.e. before 1970.
func FromNTP(ntpNanos uint64) (Timestamp, bool) {
	offset := uint64(ntpUnixOffset) * nanosPerSecond
	if ntpNanos < offset {
		return 0, false
	}
	return FromUnix(ntpNanos - offset)
}

// FromTime converts t. It returns false if t is before 1970.
func FromTime(t time.Time) (Timestamp, bool) {
	nanos := t.UnixNano()
	if nanos < 0 {
		return 0, false
	}
	return FromUnix(uint64(nanos))
}

// Unix returns nanoseconds since 1970-01-01 00:00:00 UTC, not including leap seconds.
func (t Timestamp) Unix() uint64 {
	for i := len(leapSeconds) - 1; i >= 0; i-- {
		l := leapSeconds[i]
		if uint64(t) >= uint64(l.unix+l.offset)*nanosPerSecond {
			return uint64(t) - uint64(l.offset)*nanosPerSecond
		}
	}
	return uint64(t)
}

// Time returns t as UTC time.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t.Unix())).UTC()
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%s (%d)", t.Time().Format(time.RFC3339Nano), uint64(t))
}
