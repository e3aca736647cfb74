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
	"path"
	"time"

	"github.com/nagare-media/payloader/pkg/media"
	"github.com/nagare-media/payloader/pkg/mime"
	"github.com/nagare-media/payloader/pkg/volume"
)

// Event is published on a Stream. Subscribers type switch on the concrete event.
type Event interface {
	EventType() string
}

type Type string

const (
	StreamStartEvent Type = "media.nagare.payloader.stream.start"
	StreamStopEvent  Type = "media.nagare.payloader.stream.stop"

	FragmentCommittedEvent Type = "media.nagare.payloader.fragment.committed"
	FragmentAbortedEvent   Type = "media.nagare.payloader.fragment.aborted"

	FileDeletedEvent Type = "media.nagare.payloader.file.deleted"
)

// StreamStats is a snapshot of the counters of a stream.
type StreamStats struct {
	Chunks       uint64 `json:"chunks"`
	Bytes        uint64 `json:"bytes"`
	Fragments    uint64 `json:"fragments"`
	DroppedMdats uint64 `json:"droppedMdats"`
	UnknownBoxes uint64 `json:"unknownBoxes"`
	Anomalies    uint64 `json:"anomalies"`
}

type StreamEvent struct {
	Type     Type         `json:"-"`
	Pipeline string       `json:"pipeline"`
	Session  string       `json:"session"`
	Time     time.Time    `json:"time"`
	Stats    *StreamStats `json:"stats,omitempty"`
}

func NewStreamEvent(t Type, pipeline, session string) *StreamEvent {
	return &StreamEvent{
		Type:     t,
		Pipeline: pipeline,
		Session:  session,
		Time:     time.Now(),
	}
}

func (e *StreamEvent) EventType() string { return string(e.Type) }

type FragmentEvent struct {
	Type     Type              `json:"-"`
	Pipeline string            `json:"pipeline"`
	Session  string            `json:"session"`
	Time     time.Time         `json:"time"`
	Index    uint64            `json:"index"`
	FileName string            `json:"fileName"`
	MimeType string            `json:"mimeType"`
	Size     int               `json:"size"`
	PTS      media.ClockTime   `json:"pts"`
	Duration media.ClockTime   `json:"duration"`
	Flags    media.BufferFlags `json:"flags"`

	File volume.File `json:"-"`
}

func NewFragmentEvent(t Type, pipeline, session string, index uint64, file volume.File, buf *media.Buffer) *FragmentEvent {
	e := &FragmentEvent{
		Type:     t,
		Pipeline: pipeline,
		Session:  session,
		Time:     time.Now(),
		Index:    index,
		File:     file,
	}
	if file != nil {
		e.FileName = file.Name()
		e.MimeType = mime.PreferredTypeExt(path.Ext(e.FileName))
	}
	if buf != nil {
		e.Size = buf.Size()
		e.PTS = buf.PTS
		e.Duration = buf.Duration
		e.Flags = buf.Flags
	}
	return e
}

func (e *FragmentEvent) EventType() string { return string(e.Type) }

type FileEvent struct {
	Type     Type      `json:"-"`
	Time     time.Time `json:"time"`
	Volume   string    `json:"volume"`
	FileName string    `json:"fileName"`
}

func NewFileEvent(t Type, volume, fileName string) *FileEvent {
	return &FileEvent{
		Type:     t,
		Time:     time.Now(),
		Volume:   volume,
		FileName: fileName,
	}
}

func (e *FileEvent) EventType() string { return string(e.Type) }
