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

// Package fragmp4pay wraps a payloader into a pipeline element. Every emitted buffer is a self-contained fragment
// (ftyp + moov + moof + mdat).
package fragmp4pay

import (
	"go.uber.org/zap"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/element"
	"github.com/nagare-media/payloader/pkg/media"
	"github.com/nagare-media/payloader/pkg/payloader"
)

type FragMP4Pay struct {
	element.Base
	log *zap.SugaredLogger
	pay *payloader.Payloader
}

func New(cfg v1alpha1.Payloader, log *zap.SugaredLogger) (*FragMP4Pay, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	e := &FragMP4Pay{
		Base: element.NewBase("fragmp4pay"),
		log:  log,
	}

	pay, err := payloader.New(cfg, payloader.SinkFunc(e.Push), log)
	if err != nil {
		return nil, err
	}
	e.pay = pay

	return e, nil
}

// Chain feeds buf into the payloader. Fragments are pushed downstream before Chain returns; errors of downstream
// elements are returned unchanged.
func (e *FragMP4Pay) Chain(buf *media.Buffer) error {
	return e.pay.Push(buf)
}

func (e *FragMP4Pay) SinkEvent(ev *element.Event) bool {
	e.log.Debugw("handling event", "event", ev.Type)

	switch ev.Type {
	case element.EventStreamStart:
		e.discard("stream start")
	case element.EventFlushStop:
		e.discard("flush")
	case element.EventEOS:
		if n := e.pay.Buffered(); n > 0 {
			e.log.Warnw("end of stream with incomplete box", "discarded", n)
		}
		e.logStats()
	}

	return e.PushEvent(ev)
}

// Stop discards incomplete boxes, cached boxes and aggregated metadata.
func (e *FragMP4Pay) Stop() {
	e.discard("stop")
}

func (e *FragMP4Pay) Stats() payloader.Stats {
	return e.pay.Stats()
}

func (e *FragMP4Pay) discard(reason string) {
	if n := e.pay.Reset(); n > 0 {
		e.log.Infow("discarding incomplete box", "reason", reason, "discarded", n)
	}
}

func (e *FragMP4Pay) logStats() {
	s := e.pay.Stats()
	e.log.Infow("payloader statistics",
		"chunks", s.Chunks,
		"bytes", s.Bytes,
		"fragments", s.Fragments,
		"droppedMdats", s.DroppedMdats,
		"unknownBoxes", s.UnknownBoxes,
		"anomalies", s.Anomalies,
	)
}
