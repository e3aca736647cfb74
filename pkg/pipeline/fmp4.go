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

package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/nagare-media/payloader/internal/uuid"
	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/element"
	"github.com/nagare-media/payloader/pkg/element/fragmp4pay"
	"github.com/nagare-media/payloader/pkg/element/passthrough"
	"github.com/nagare-media/payloader/pkg/element/sink"
	"github.com/nagare-media/payloader/pkg/element/source"
	"github.com/nagare-media/payloader/pkg/element/timestampcvt"
	"github.com/nagare-media/payloader/pkg/event"
)

type fmp4Pipeline struct {
	cfg         v1alpha1.Pipeline
	eventStream event.Stream
	ctx         context.Context
	execCtx     ExecCtx

	openInput func(cfg v1alpha1.Input) (io.ReadCloser, []string, error)
}

// New creates a pipeline reading ISO BMFF boxes from the configured input and writing self-contained fragments to the
// output volume: source → [timestampcvt] → passthrough → fragmp4pay → sink.
func New(cfg v1alpha1.Pipeline) (Pipeline, error) {
	if err := CheckAndSetDefaults(&cfg); err != nil {
		return nil, err
	}

	return &fmp4Pipeline{
		cfg:         cfg,
		eventStream: event.NewStream(),
		openInput:   source.OpenInput,
	}, nil
}

func (p *fmp4Pipeline) Config() v1alpha1.Pipeline {
	return p.cfg
}

func (p *fmp4Pipeline) EventStream() event.Stream {
	return p.eventStream
}

func (p *fmp4Pipeline) SetCtx(ctx context.Context) {
	p.ctx = ctx
	p.eventStream.Start(ctx)
}

func (p *fmp4Pipeline) SetExecCtx(execCtx ExecCtx) {
	p.execCtx = execCtx
}

func (p *fmp4Pipeline) Run(ctx context.Context) error {
	log := p.execCtx.Logger()

	vol, ok := p.execCtx.VolumeRegistry().Get(p.cfg.Output.VolumeRef.Name)
	if !ok {
		return fmt.Errorf("volume '%s' not found", p.cfg.Output.VolumeRef.Name)
	}

	r, files, err := p.openInput(p.cfg.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer r.Close()
	stopClose := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stopClose()

	session := uuid.New()
	log = log.With("session", uuid.Short(session))
	log.Infow("opened input", "path", p.cfg.Input.Path, "files", len(files))

	src, err := source.New(p.cfg.Input, r, session, log.Named("source"))
	if err != nil {
		return err
	}
	pay, err := fragmp4pay.New(p.cfg.Payloader, log.Named("fragmp4pay"))
	if err != nil {
		return err
	}
	defer pay.Stop()
	snk, err := sink.New(p.cfg.Output, p.cfg.Name, vol, p.eventStream, log.Named("sink"))
	if err != nil {
		return err
	}

	elems := []element.Element{src}
	if p.cfg.TimestampCvt != nil {
		elems = append(elems, timestampcvt.New(log.Named("timestampcvt")))
	}
	elems = append(elems, passthrough.New(log.Named("passthrough")), pay, snk)
	element.Link(elems...)

	p.eventStream.Pub(event.NewStreamEvent(event.StreamStartEvent, p.cfg.Name, session))
	err = src.Run(ctx)

	stats := pay.Stats()
	e := event.NewStreamEvent(event.StreamStopEvent, p.cfg.Name, session)
	e.Stats = &event.StreamStats{
		Chunks:       stats.Chunks,
		Bytes:        stats.Bytes,
		Fragments:    stats.Fragments,
		DroppedMdats: stats.DroppedMdats,
		UnknownBoxes: stats.UnknownBoxes,
		Anomalies:    stats.Anomalies,
	}
	p.eventStream.Pub(e)

	if err != nil {
		return err
	}

	select {
	case <-snk.EOS():
		log.Infow("pipeline finished", "fragments", snk.Fragments())
	default:
		log.Info("pipeline stopped before end of stream")
	}
	return nil
}
