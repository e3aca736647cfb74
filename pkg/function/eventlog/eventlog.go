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

package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/nagare-media/payloader/internal/uuid"
	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/event"
	"github.com/nagare-media/payloader/pkg/function"
	"github.com/nagare-media/payloader/pkg/volume"
)

const sourcePrefix = "/payloader.nagare.media/pipeline"

var (
	DefaultConfig = v1alpha1.EventLogFunction{
		FileName: "events.jsonl",
	}
)

type eventLog struct {
	cfg v1alpha1.Function
}

// New creates a function writing the events of a pipeline as CloudEvents in JSON format to a file, one event per
// line. The file is committed once the pipeline stopped.
func New(cfg v1alpha1.Function) (function.Function, error) {
	if err := function.CheckAndSetDefaults(&cfg); err != nil {
		return nil, err
	}
	if cfg.EventLog == nil || cfg.EventLog.VolumeRef.Name == "" {
		return nil, errors.New("eventlog: VolumeRef invalid")
	}
	c := *cfg.EventLog
	if c.FileName == "" {
		c.FileName = DefaultConfig.FileName
	}
	if _, err := volume.CleanName(c.FileName); err != nil {
		return nil, errors.New("eventlog: FileName invalid")
	}
	cfg.EventLog = &c

	return &eventLog{cfg: cfg}, nil
}

func (fn *eventLog) Config() v1alpha1.Function {
	return fn.cfg
}

func (fn *eventLog) Exec(ctx context.Context, execCtx function.ExecCtx) error {
	log := execCtx.Logger()

	vol, ok := execCtx.VolumeRegistry().Get(fn.cfg.EventLog.VolumeRef.Name)
	if !ok {
		return fmt.Errorf("volume '%s' not found", fn.cfg.EventLog.VolumeRef.Name)
	}

	pipelineName := ""
	if p := execCtx.Pipeline(); p != nil {
		pipelineName = p.Config().Name
	}

	file, err := vol.OpenCreate(fn.cfg.EventLog.FileName)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	fw, err := file.AcquireWriter()
	if err != nil {
		return fmt.Errorf("failed to acquire event log writer: %w", err)
	}
	defer func() {
		if err := fw.Commit(); err != nil {
			log.Errorw("failed to commit event log", "error", err)
			return
		}
		log.Infow("event log committed", "file", file.Name())
	}()

	enc := json.NewEncoder(fw)
	source := path.Join(sourcePrefix, pipelineName)
	events := execCtx.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-events:
			if !ok {
				return nil
			}
			ce, err := toCloudEvent(source, e)
			if err != nil {
				log.Errorw("failed to convert event", "event", e.EventType(), "error", err)
				continue
			}
			if err = enc.Encode(ce); err != nil {
				return fmt.Errorf("failed to write event log: %w", err)
			}
		}
	}
}

func toCloudEvent(source string, e event.Event) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(uuid.New())
	ce.SetSource(source)
	ce.SetType(e.EventType())

	var subject string
	switch e := e.(type) {
	case *event.StreamEvent:
		ce.SetTime(e.Time)
		subject = e.Session
	case *event.FragmentEvent:
		ce.SetTime(e.Time)
		subject = e.FileName
	case *event.FileEvent:
		ce.SetTime(e.Time)
		subject = e.FileName
	}
	// subject must not be empty if set
	if subject != "" {
		ce.SetSubject(subject)
	}

	if err := ce.SetData(cloudevents.ApplicationJSON, e); err != nil {
		return ce, err
	}
	return ce, ce.Validate()
}
