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

// Package sink writes every buffer into its own file on a volume.
package sink

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"go.uber.org/zap"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/element"
	"github.com/nagare-media/payloader/pkg/event"
	"github.com/nagare-media/payloader/pkg/media"
	"github.com/nagare-media/payloader/pkg/volume"
)

var (
	DefaultConfig = v1alpha1.Output{
		FileNameTemplate: `{{.Pipeline}}/{{.Session}}/{{printf "%08d" .Index}}.mp4`,
	}
)

// FileNameData is passed to the file name template.
type FileNameData struct {
	Pipeline string
	Session  string
	Index    uint64
	// PTS in nanoseconds; 0 if not set.
	PTS uint64
}

type Sink struct {
	element.Base
	cfg      v1alpha1.Output
	log      *zap.SugaredLogger
	vol      volume.Volume
	events   event.Stream
	pipeline string
	tmpl     *template.Template

	mtx     sync.Mutex
	session string
	index   uint64
	eos     chan struct{}
	eosOnce sync.Once
}

// New creates a sink writing to vol. Events are published on events if not nil.
func New(cfg v1alpha1.Output, pipeline string, vol volume.Volume, events event.Stream, log *zap.SugaredLogger) (*Sink, error) {
	if cfg.FileNameTemplate == "" {
		cfg.FileNameTemplate = DefaultConfig.FileNameTemplate
	}
	if vol == nil {
		return nil, errors.New("sink: no volume")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	tmpl, err := template.New("fileName").Option("missingkey=error").Parse(cfg.FileNameTemplate)
	if err != nil {
		return nil, fmt.Errorf("sink: FileNameTemplate invalid: %w", err)
	}
	if err = checkTemplate(tmpl); err != nil {
		return nil, fmt.Errorf("sink: FileNameTemplate invalid: %w", err)
	}

	return &Sink{
		Base:     element.NewBase("sink"),
		cfg:      cfg,
		log:      log,
		vol:      vol,
		events:   events,
		pipeline: pipeline,
		tmpl:     tmpl,
		eos:      make(chan struct{}),
	}, nil
}

// Chain writes buf into a new file and commits it.
func (s *Sink) Chain(buf *media.Buffer) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	index := s.index
	s.index++

	name, err := s.fileName(index, buf)
	if err != nil {
		return err
	}
	log := s.log.With("file", name, "index", index)

	file, err := s.vol.OpenCreate(name)
	if err != nil {
		return fmt.Errorf("open file %s: %w", name, err)
	}
	fw, err := file.AcquireWriter()
	if err != nil {
		return fmt.Errorf("acquire writer for %s: %w", name, err)
	}

	if _, err = fw.Write(buf.Data); err != nil {
		if errAbort := fw.Abort(); errAbort != nil {
			log.Errorw("failed to abort file", "error", errAbort)
		}
		s.publish(event.NewFragmentEvent(event.FragmentAbortedEvent, s.pipeline, s.session, index, file, buf))
		return fmt.Errorf("write file %s: %w", name, err)
	}
	if err = fw.Commit(); err != nil {
		s.publish(event.NewFragmentEvent(event.FragmentAbortedEvent, s.pipeline, s.session, index, file, buf))
		return fmt.Errorf("commit file %s: %w", name, err)
	}

	log.Debugw("fragment committed", "size", buf.Size(), "pts", buf.PTS, "flags", buf.Flags)
	s.publish(event.NewFragmentEvent(event.FragmentCommittedEvent, s.pipeline, s.session, index, file, buf))
	return nil
}

func (s *Sink) fileName(index uint64, buf *media.Buffer) (string, error) {
	data := FileNameData{
		Pipeline: s.pipeline,
		Session:  s.session,
		Index:    index,
	}
	if buf.PTS.IsValid() {
		data.PTS = uint64(buf.PTS)
	}

	var b strings.Builder
	if err := s.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("file name: %w", err)
	}
	return b.String(), nil
}

// SinkEvent picks up the session of stream-start events and signals end of stream.
func (s *Sink) SinkEvent(ev *element.Event) bool {
	switch ev.Type {
	case element.EventStreamStart:
		if session, ok := ev.Data.(string); ok {
			s.mtx.Lock()
			s.session = session
			s.index = 0
			s.mtx.Unlock()
		}
	case element.EventEOS:
		s.log.Infow("end of stream", "fragments", s.Fragments())
		s.eosOnce.Do(func() { close(s.eos) })
	}
	return true
}

// SinkQuery answers nothing; queries end here.
func (s *Sink) SinkQuery(q *element.Query) bool {
	return false
}

// EOS is closed once the end of stream reached the sink.
func (s *Sink) EOS() <-chan struct{} {
	return s.eos
}

// Fragments returns the number of fragments written in the current session.
func (s *Sink) Fragments() uint64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.index
}

func (s *Sink) publish(e event.Event) {
	if s.events != nil {
		s.events.Pub(e)
	}
}

// checkTemplate rejects templates producing the same name for consecutive fragments.
func checkTemplate(tmpl *template.Template) error {
	var a, b bytes.Buffer
	if err := tmpl.Execute(&a, FileNameData{Index: 0}); err != nil {
		return err
	}
	if err := tmpl.Execute(&b, FileNameData{Index: 1}); err != nil {
		return err
	}
	if a.String() == b.String() {
		return errors.New("file names do not depend on the fragment index")
	}
	return nil
}
