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

// Package functiontest provides an execution context and volume helpers for testing functions.
package functiontest

import (
	"context"
	"io"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/event"
	"github.com/nagare-media/payloader/pkg/pipeline"
	"github.com/nagare-media/payloader/pkg/volume"
	"github.com/nagare-media/payloader/pkg/volume/mem"
)

// ExecCtx feeds events from In to the function under test. Events published by the function go to Stream.
type ExecCtx struct {
	Log     *zap.SugaredLogger
	Volumes map[string]volume.Volume
	In      chan event.Event
	Stream  event.Stream
}

// NewExecCtx returns an execution context with the given volumes. Stream is stopped when the test ends.
func NewExecCtx(t testing.TB, vols ...volume.Volume) *ExecCtx {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c := &ExecCtx{
		Log:     zaptest.NewLogger(t).Sugar(),
		Volumes: make(map[string]volume.Volume, len(vols)),
		In:      make(chan event.Event, event.DefaultBufferLen),
		Stream:  event.NewStream(),
	}
	c.Stream.Start(ctx)
	for _, vol := range vols {
		c.Volumes[vol.Config().Name] = vol
	}
	return c
}

func (c *ExecCtx) Logger() *zap.SugaredLogger      { return c.Log }
func (c *ExecCtx) VolumeRegistry() volume.Registry { return c }
func (c *ExecCtx) Events() <-chan event.Event      { return c.In }
func (c *ExecCtx) Pipeline() pipeline.Pipeline     { return &testPipeline{stream: c.Stream} }

func (c *ExecCtx) Get(name string) (volume.Volume, bool) {
	vol, ok := c.Volumes[name]
	return vol, ok
}

type testPipeline struct {
	stream event.Stream
}

func (p *testPipeline) Config() v1alpha1.Pipeline           { return v1alpha1.Pipeline{Name: "test"} }
func (p *testPipeline) EventStream() event.Stream           { return p.stream }
func (p *testPipeline) SetCtx(ctx context.Context)          {}
func (p *testPipeline) SetExecCtx(execCtx pipeline.ExecCtx) {}
func (p *testPipeline) Run(ctx context.Context) error       { return nil }

// NewMemVolume returns an initialized mem volume.
func NewMemVolume(t testing.TB, name string) volume.Volume {
	t.Helper()
	vol, err := mem.New(v1alpha1.Volume{Name: name, Memory: &v1alpha1.MemoryVolume{}})
	if err != nil {
		t.Fatalf("mem.New() error = %v", err)
	}
	if err = vol.Init(&volumeExecCtx{log: zaptest.NewLogger(t).Sugar()}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return vol
}

type volumeExecCtx struct {
	log *zap.SugaredLogger
}

func (c *volumeExecCtx) Logger() *zap.SugaredLogger { return c.log }

// WriteFile writes and commits a file.
func WriteFile(t testing.TB, vol volume.Volume, name string, data []byte) volume.File {
	t.Helper()
	f, err := vol.OpenCreate(name)
	if err != nil {
		t.Fatalf("OpenCreate(%s) error = %v", name, err)
	}
	fw, err := f.AcquireWriter()
	if err != nil {
		t.Fatalf("AcquireWriter() error = %v", err)
	}
	if _, err = fw.Write(data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err = fw.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return f
}

// ReadFile returns the committed content of a file.
func ReadFile(vol volume.Volume, name string) ([]byte, error) {
	f, err := vol.Open(name)
	if err != nil {
		return nil, err
	}
	fr, err := f.AcquireReader()
	if err != nil {
		return nil, err
	}
	defer fr.Close()
	return io.ReadAll(fr)
}
