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

package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/element"
	"github.com/nagare-media/payloader/pkg/media"
)

type collector struct {
	element.Base
	bufs   []*media.Buffer
	events []*element.Event
	err    error
}

func (c *collector) Chain(buf *media.Buffer) error {
	c.bufs = append(c.bufs, buf)
	return c.err
}

func (c *collector) SinkEvent(ev *element.Event) bool {
	c.events = append(c.events, ev)
	return true
}

// chanCollector hands chunks over to the test goroutine.
type chanCollector struct {
	element.Base
	bufs chan *media.Buffer
}

func (c *chanCollector) Chain(buf *media.Buffer) error {
	c.bufs <- buf
	return nil
}

// fakeClock advances by one second on every call.
func fakeClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(time.Second)
		return t
	}
}

func TestSourceRun(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6, 7}, 5)
	s, err := New(v1alpha1.Input{ChunkSize: 10}, bytes.NewReader(data), "session", zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.now = fakeClock(time.Unix(1000, 0))
	c := &collector{Base: element.NewBase("collector")}
	element.Link(s, c)

	if err = s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(c.bufs) != 4 {
		t.Fatalf("got %d chunks, want 4", len(c.bufs))
	}
	var got []byte
	for i, buf := range c.bufs {
		got = append(got, buf.Data...)
		if buf.Offset != uint64(i*10) || buf.OffsetEnd != buf.Offset+uint64(buf.Size()) {
			t.Errorf("chunk %d offsets = %d, %d", i, buf.Offset, buf.OffsetEnd)
		}
		if buf.PTS != media.ClockTime(i+1)*media.Second || buf.DTS != buf.PTS {
			t.Errorf("chunk %d PTS, DTS = %s, %s", i, buf.PTS, buf.DTS)
		}
		if discont := buf.Flags.Has(media.FlagDiscontinuity); discont != (i == 0) {
			t.Errorf("chunk %d flags = %s", i, buf.Flags)
		}
	}
	if !bytes.Equal(got, data) {
		t.Errorf("chunks do not add up to input")
	}

	if len(c.events) != 2 || c.events[0].Type != element.EventStreamStart || c.events[0].Data != "session" || c.events[1].Type != element.EventEOS {
		t.Errorf("events = %v, want stream-start and eos", c.events)
	}

	q := element.NewQuery(element.QueryPosition)
	if !s.SrcQuery(q) || q.Result != uint64(len(data)) {
		t.Errorf("position query result = %v", q.Result)
	}
}

func TestSourceClockNTP(t *testing.T) {
	s, err := New(v1alpha1.Input{Clock: ClockNTP}, bytes.NewReader([]byte{1}), "", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.now = func() time.Time { return time.Unix(1483228800, 0) }
	c := &collector{Base: element.NewBase("collector")}
	element.Link(s, c)

	if err = s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(c.bufs) != 1 || c.bufs[0].PTS != media.ClockTime(3692217600)*media.Second {
		t.Errorf("PTS = %s, want 2017-01-01 in NTP epoch", c.bufs[0].PTS)
	}
}

func TestSourceDownstreamError(t *testing.T) {
	s, err := New(v1alpha1.Input{ChunkSize: 2}, bytes.NewReader([]byte{1, 2, 3}), "", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	wantErr := errors.New("flow error")
	element.Link(s, &collector{Base: element.NewBase("collector"), err: wantErr})

	if err = s.Run(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Run() error = %v, want %v", err, wantErr)
	}
}

func TestSourceCanceled(t *testing.T) {
	s, err := New(v1alpha1.Input{}, bytes.NewReader([]byte{1}), "", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c := &collector{Base: element.NewBase("collector")}
	element.Link(s, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err = s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(c.bufs) != 0 {
		t.Errorf("got %d chunks after cancel", len(c.bufs))
	}
}

func TestNewInvalidClock(t *testing.T) {
	if _, err := New(v1alpha1.Input{Clock: "sundial"}, bytes.NewReader(nil), "", nil); err == nil {
		t.Errorf("New() with invalid clock succeeded")
	}
}

func TestSourcePushesShortReads(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	s, err := New(v1alpha1.Input{}, pr, "", zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c := &chanCollector{Base: element.NewBase("collector"), bufs: make(chan *media.Buffer, 1)}
	element.Link(s, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	if _, err = pw.Write(bytes.Repeat([]byte{1}, 10)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	select {
	case buf := <-c.bufs:
		if buf.Size() != 10 {
			t.Errorf("got chunk of %d bytes, want 10", buf.Size())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no chunk delivered for a short read")
	}

	// the next read blocks until the writer is closed
	cancel()
	select {
	case err = <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() still blocked after cancel")
	}
}

func TestSourceFlushingIsNotFatal(t *testing.T) {
	s, err := New(v1alpha1.Input{ChunkSize: 2}, bytes.NewReader([]byte{1, 2, 3}), "", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c := &collector{Base: element.NewBase("collector"), err: element.ErrFlushing}
	element.Link(s, c)

	if err = s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(c.bufs) != 2 {
		t.Errorf("got %d chunks, want 2", len(c.bufs))
	}
	if n := len(c.events); n == 0 || c.events[n-1].Type != element.EventEOS {
		t.Errorf("events = %v, want eos last", c.events)
	}
}
