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

// Package element links pipeline stages. Buffers, events and queries travel downstream through Chain, SinkEvent and
// SinkQuery; events and queries travel upstream through SrcEvent and SrcQuery.
package element

import (
	"errors"
	"fmt"

	"github.com/nagare-media/payloader/pkg/media"
)

var (
	ErrNotLinked = errors.New("element not linked")
	ErrFlushing  = errors.New("element flushing")
)

type EventType uint8

const (
	EventStreamStart EventType = iota
	EventFlushStart
	EventFlushStop
	EventEOS
	EventCustom
)

func (t EventType) String() string {
	switch t {
	case EventStreamStart:
		return "stream-start"
	case EventFlushStart:
		return "flush-start"
	case EventFlushStop:
		return "flush-stop"
	case EventEOS:
		return "eos"
	case EventCustom:
		return "custom"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Event is a control signal. Elements that do not handle an event forward it unchanged.
type Event struct {
	Type EventType
	// Name identifies custom events.
	Name string
	// Data carries event specific values, e.g. the session ID of stream-start events.
	Data any
}

func NewEvent(t EventType) *Event {
	return &Event{Type: t}
}

type QueryType uint8

const (
	// QueryPosition asks for the number of bytes produced by the source.
	QueryPosition QueryType = iota
	QueryCustom
)

func (t QueryType) String() string {
	switch t {
	case QueryPosition:
		return "position"
	case QueryCustom:
		return "custom"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Query asks an element for information. The answering element sets Result and returns true.
type Query struct {
	Type QueryType
	// Name identifies custom queries.
	Name   string
	Result any
}

func NewQuery(t QueryType) *Query {
	return &Query{Type: t}
}

// SinkPad receives data from upstream.
type SinkPad interface {
	Chain(buf *media.Buffer) error
	SinkEvent(ev *Event) bool
	SinkQuery(q *Query) bool
}

// SrcPad receives signals from downstream.
type SrcPad interface {
	SrcEvent(ev *Event) bool
	SrcQuery(q *Query) bool
}

type Element interface {
	SinkPad
	SrcPad
	Name() string

	linkDownstream(peer SinkPad)
	linkUpstream(peer SrcPad)
}

// Link connects elems in the given order.
func Link(elems ...Element) {
	for i := 1; i < len(elems); i++ {
		elems[i-1].linkDownstream(elems[i])
		elems[i].linkUpstream(elems[i-1])
	}
}

// Base forwards everything unchanged. Elements embed Base and override what they handle.
type Base struct {
	name       string
	downstream SinkPad
	upstream   SrcPad
}

func NewBase(name string) Base {
	return Base{name: name}
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) linkDownstream(peer SinkPad) { b.downstream = peer }
func (b *Base) linkUpstream(peer SrcPad)    { b.upstream = peer }

// Push buf downstream.
func (b *Base) Push(buf *media.Buffer) error {
	if b.downstream == nil {
		return fmt.Errorf("%s: %w", b.name, ErrNotLinked)
	}
	return b.downstream.Chain(buf)
}

// PushEvent sends ev downstream.
func (b *Base) PushEvent(ev *Event) bool {
	if b.downstream == nil {
		return false
	}
	return b.downstream.SinkEvent(ev)
}

// PushQuery sends q downstream.
func (b *Base) PushQuery(q *Query) bool {
	if b.downstream == nil {
		return false
	}
	return b.downstream.SinkQuery(q)
}

// SendEvent sends ev upstream.
func (b *Base) SendEvent(ev *Event) bool {
	if b.upstream == nil {
		return false
	}
	return b.upstream.SrcEvent(ev)
}

// SendQuery sends q upstream.
func (b *Base) SendQuery(q *Query) bool {
	if b.upstream == nil {
		return false
	}
	return b.upstream.SrcQuery(q)
}

func (b *Base) Chain(buf *media.Buffer) error { return b.Push(buf) }
func (b *Base) SinkEvent(ev *Event) bool      { return b.PushEvent(ev) }
func (b *Base) SinkQuery(q *Query) bool       { return b.PushQuery(q) }
func (b *Base) SrcEvent(ev *Event) bool       { return b.SendEvent(ev) }
func (b *Base) SrcQuery(q *Query) bool        { return b.SendQuery(q) }
