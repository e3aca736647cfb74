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

// Package source reads a byte stream in chunks and stamps every chunk with timing and offset metadata.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/inhies/go-bytesize"
	"go.uber.org/zap"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/element"
	"github.com/nagare-media/payloader/pkg/media"
)

const (
	ClockRunning = "running"
	ClockNTP     = "ntp"

	// seconds from the NTP epoch 1900-01-01 to the Unix epoch 1970-01-01
	ntpUnixOffset = 2208988800
)

var (
	DefaultConfig = v1alpha1.Input{
		ChunkSize: 64 * bytesize.KB,
		Clock:     ClockRunning,
	}
)

type Source struct {
	element.Base
	cfg     v1alpha1.Input
	log     *zap.SugaredLogger
	r       io.Reader
	session string
	now     func() time.Time

	position atomic.Uint64
}

// New creates a source reading from r. session is announced with the stream-start event.
func New(cfg v1alpha1.Input, r io.Reader, session string, log *zap.SugaredLogger) (*Source, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultConfig.ChunkSize
	}
	switch cfg.Clock {
	case "":
		cfg.Clock = DefaultConfig.Clock
	case ClockRunning, ClockNTP:
	default:
		return nil, fmt.Errorf("source: Clock '%s' invalid", cfg.Clock)
	}
	if r == nil {
		return nil, errors.New("source: no reader")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Source{
		Base:    element.NewBase("source"),
		cfg:     cfg,
		log:     log,
		r:       r,
		session: session,
		now:     time.Now,
	}, nil
}

type chunk struct {
	data []byte
	err  error
}

// Run reads until r returns EOF or ctx is done. At EOF an end of stream event is sent downstream. Whatever a single
// read returns is pushed as one chunk, so chunks may be shorter than ChunkSize. Run returns as soon as ctx is done even
// if a read is still blocked; closing r unblocks that read.
func (s *Source) Run(ctx context.Context) error {
	s.log.Infow("start reading", "chunkSize", s.cfg.ChunkSize, "clock", s.cfg.Clock)

	start := s.now()
	s.PushEvent(&element.Event{Type: element.EventStreamStart, Data: s.session})

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	chunks := make(chan chunk)
	go s.read(readCtx, chunks)

	first := true
	for {
		select {
		case <-ctx.Done():
			s.log.Infow("stop reading", "position", s.position.Load())
			return nil
		default:
		}

		var c chunk
		select {
		case <-ctx.Done():
			s.log.Infow("stop reading", "position", s.position.Load())
			return nil
		case c = <-chunks:
		}

		if len(c.data) > 0 {
			buf := s.stamp(c.data, start)
			if first {
				buf.Flags |= media.FlagDiscontinuity
				first = false
			}
			switch errPush := s.Push(buf); {
			case errPush == nil:
			case errors.Is(errPush, element.ErrFlushing):
				s.log.Debugw("dropped chunk while flushing", "offset", buf.Offset, "size", buf.Size())
			default:
				return fmt.Errorf("push chunk at offset %d: %w", buf.Offset, errPush)
			}
		}

		switch {
		case c.err == nil:
		case errors.Is(c.err, io.EOF):
			s.log.Infow("end of stream", "position", s.position.Load())
			s.PushEvent(element.NewEvent(element.EventEOS))
			return nil
		default:
			return c.err
		}
	}
}

// read passes the result of every read of r to chunks until r fails or ctx is done.
func (s *Source) read(ctx context.Context, chunks chan<- chunk) {
	for {
		// ownership of data is passed downstream
		data := make([]byte, int(s.cfg.ChunkSize))
		n, err := s.r.Read(data)
		select {
		case chunks <- chunk{data: data[:n], err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Source) stamp(data []byte, start time.Time) *media.Buffer {
	buf := media.NewBuffer(data)

	offset := s.position.Add(uint64(len(data))) - uint64(len(data))
	buf.Offset = offset
	buf.OffsetEnd = offset + uint64(len(data))

	now := s.now()
	switch s.cfg.Clock {
	case ClockRunning:
		buf.PTS = media.ClockTime(now.Sub(start))
	case ClockNTP:
		buf.PTS = media.ClockTime(now.UnixNano()) + ntpUnixOffset*media.Second
	}
	buf.DTS = buf.PTS

	return buf
}

// SrcQuery answers position queries with the number of bytes read so far.
func (s *Source) SrcQuery(q *element.Query) bool {
	if q.Type == element.QueryPosition {
		q.Result = s.position.Load()
		return true
	}
	return false
}

// SrcEvent logs events reaching the start of the pipeline.
func (s *Source) SrcEvent(ev *element.Event) bool {
	s.log.Debugw("unhandled upstream event", "event", ev.Type)
	return false
}

// Position returns the number of bytes read so far.
func (s *Source) Position() uint64 {
	return s.position.Load()
}
