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

package event

import (
	"context"
	"sync"
)

const (
	DefaultBufferLen = 32
)

type Stream interface {
	Start(ctx context.Context)
	Pub(e Event)
	Sub() <-chan Event
	SubBuf(n int) <-chan Event
	Desub(ch <-chan Event)
}

type channelStream struct {
	mtx sync.RWMutex

	recvCh chan Event
	done   chan struct{}
	subs   []chan Event
	closed bool
}

func NewStream() Stream {
	return NewStreamBuf(DefaultBufferLen)
}

func NewStreamBuf(n int) Stream {
	return &channelStream{
		recvCh: make(chan Event, n),
		done:   make(chan struct{}),
		subs:   make([]chan Event, 0),
	}
}

// Pub publishes e to all subscribers. Events published after the stream stopped are dropped.
func (cs *channelStream) Pub(e Event) {
	select {
	case cs.recvCh <- e:
	case <-cs.done:
	}
}

func (cs *channelStream) Sub() <-chan Event {
	return cs.SubBuf(DefaultBufferLen)
}

func (cs *channelStream) SubBuf(n int) <-chan Event {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	ch := make(chan Event, n)
	if cs.closed {
		close(ch)
		return ch
	}
	cs.subs = append(cs.subs, ch)
	return ch
}

func (cs *channelStream) Desub(ch <-chan Event) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	for i, subCh := range cs.subs {
		if ch == subCh {
			if !cs.closed {
				close(subCh)
			}
			if i == len(cs.subs)-1 {
				cs.subs[i] = nil
				cs.subs = cs.subs[:i]
			} else {
				cs.subs[i] = cs.subs[len(cs.subs)-1]
				cs.subs[len(cs.subs)-1] = nil
				cs.subs = cs.subs[:len(cs.subs)-1]
			}
			return
		}
	}
}

func (cs *channelStream) Start(ctx context.Context) {
	go cs.start(ctx)
}

func (cs *channelStream) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			cs.drain()
			cs.clean()
			return
		case e := <-cs.recvCh:
			cs.emit(e)
		}
	}
}

// drain emits events that were published before the stream stopped.
func (cs *channelStream) drain() {
	for {
		select {
		case e := <-cs.recvCh:
			cs.emit(e)
		default:
			return
		}
	}
}

// emit delivers e in publishing order. Subscribers whose buffer is full miss the event.
func (cs *channelStream) emit(e Event) {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	for _, ch := range cs.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (cs *channelStream) clean() {
	close(cs.done)
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	cs.closed = true
	for _, ch := range cs.subs {
		close(ch)
	}
	cs.subs = nil
}
