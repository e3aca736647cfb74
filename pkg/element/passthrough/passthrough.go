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

// Package passthrough forwards buffers, events and queries unchanged. It marks the place where a transaction
// coordinator would sit between the payloader and its source.
package passthrough

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nagare-media/payloader/pkg/element"
	"github.com/nagare-media/payloader/pkg/media"
)

type Passthrough struct {
	element.Base
	log *zap.SugaredLogger

	mtx      sync.Mutex
	flushing bool
	buffers  uint64
	bytes    uint64
}

func New(log *zap.SugaredLogger) *Passthrough {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Passthrough{
		Base: element.NewBase("passthrough"),
		log:  log,
	}
}

func (e *Passthrough) Chain(buf *media.Buffer) error {
	e.mtx.Lock()
	if e.flushing {
		e.mtx.Unlock()
		return element.ErrFlushing
	}
	e.buffers++
	e.bytes += uint64(buf.Size())
	e.mtx.Unlock()

	return e.Push(buf)
}

func (e *Passthrough) SinkEvent(ev *element.Event) bool {
	e.log.Debugw("handling event", "event", ev.Type)
	switch ev.Type {
	case element.EventFlushStart:
		e.setFlushing(true)
	case element.EventFlushStop:
		e.setFlushing(false)
	}
	return e.PushEvent(ev)
}

func (e *Passthrough) SrcEvent(ev *element.Event) bool {
	e.log.Debugw("handling upstream event", "event", ev.Type)
	return e.SendEvent(ev)
}

func (e *Passthrough) setFlushing(flushing bool) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.flushing = flushing
}

// Stats returns the number of forwarded buffers and bytes.
func (e *Passthrough) Stats() (buffers, bytes uint64) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.buffers, e.bytes
}
