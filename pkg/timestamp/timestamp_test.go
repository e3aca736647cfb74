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

package timestamp

import (
	"testing"
	"time"
)

const second = uint64(time.Second)

func TestFromNTP(t *testing.T) {
	tests := []struct {
		name   string
		ntp    uint64
		want   Timestamp
		wantOk bool
	}{
		{
			name:   "before unix epoch",
			ntp:    ntpUnixOffset*second - 1,
			wantOk: false,
		},
		{
			name:   "unix epoch",
			ntp:    ntpUnixOffset * second,
			want:   0,
			wantOk: true,
		},
		{
			name:   "1972",
			ntp:    (ntpUnixOffset + 63072000) * second,
			want:   Timestamp((63072000 + 10) * second),
			wantOk: true,
		},
		{
			name:   "last second before 2017",
			ntp:    (ntpUnixOffset+1483228800-1)*second + 5,
			want:   Timestamp((1483228800-1+36)*second + 5),
			wantOk: true,
		},
		{
			name:   "2017",
			ntp:    3692217600 * second,
			want:   Timestamp((1483228800 + 37) * second),
			wantOk: true,
		},
		{
			name:   "out of range",
			ntp:    ^uint64(0),
			wantOk: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromNTP(tt.ntp)
			if ok != tt.wantOk {
				t.Fatalf("FromNTP() ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && got != tt.want {
				t.Errorf("FromNTP() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTimestampTime(t *testing.T) {
	in := time.Date(2024, 3, 1, 12, 30, 0, 250, time.UTC)
	ts, ok := FromTime(in)
	if !ok {
		t.Fatalf("FromTime() not ok")
	}
	if uint64(ts) != uint64(in.UnixNano())+37*second {
		t.Errorf("FromTime() = %d, want UTC + 37s", ts)
	}
	if got := ts.Time(); !got.Equal(in) {
		t.Errorf("Time() = %s, want %s", got, in)
	}

	if _, ok = FromTime(time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC)); ok {
		t.Errorf("FromTime() before 1970 ok")
	}
}

func TestLeapSeconds(t *testing.T) {
	tests := []struct {
		unix int64
		want int64
	}{
		{0, 0},
		{63072000 - 1, 0},
		{63072000, 10},
		{1435708800 - 1, 35},
		{1435708800, 36},
		{1700000000, 37},
	}

	for _, tt := range tests {
		if got := LeapSeconds(tt.unix); got != tt.want {
			t.Errorf("LeapSeconds(%d) = %d, want %d", tt.unix, got, tt.want)
		}
	}
}
