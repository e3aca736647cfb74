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

package controllers

import (
	"context"

	"go.uber.org/zap"

	"github.com/nagare-media/payloader/pkg/event"
	"github.com/nagare-media/payloader/pkg/function"
	"github.com/nagare-media/payloader/pkg/pipeline"
	"github.com/nagare-media/payloader/pkg/volume"
)

type Controller interface {
	Exec(ctx context.Context, execCtx *ExecCtx) error
}

type ControllerFunc func(ctx context.Context, execCtx *ExecCtx) error

func (f ControllerFunc) Exec(ctx context.Context, execCtx *ExecCtx) error {
	return f(ctx, execCtx)
}

type ExecCtx struct {
	log           *zap.SugaredLogger
	payloaderCtrl *payloaderController
	pipelineCtrl  *pipelineController
	functionCtrl  *functionController
	events        <-chan event.Event
}

func NewExecCtx(log *zap.SugaredLogger) *ExecCtx {
	return &ExecCtx{log: log}
}

func (c *ExecCtx) Logger() *zap.SugaredLogger          { return c.log }
func (c *ExecCtx) PayloaderCtrl() *payloaderController { return c.payloaderCtrl }
func (c *ExecCtx) PipelineCtrl() *pipelineController   { return c.pipelineCtrl }
func (c *ExecCtx) FunctionCtrl() *functionController   { return c.functionCtrl }
func (c *ExecCtx) Events() <-chan event.Event          { return c.events }

func (c *ExecCtx) Pipeline() pipeline.Pipeline {
	if c.pipelineCtrl != nil {
		return c.pipelineCtrl.Pipeline()
	}
	return nil
}

func (c *ExecCtx) Function() function.Function {
	if c.functionCtrl != nil {
		return c.functionCtrl.Function()
	}
	return nil
}

func (c *ExecCtx) VolumeRegistry() volume.Registry {
	return &volumeRegistry{
		payloaderCtrl: c.payloaderCtrl,
	}
}

func (c *ExecCtx) WithLogger(l *zap.SugaredLogger) *ExecCtx {
	copy := *c
	copy.log = l
	return &copy
}

func (c *ExecCtx) WithPayloaderCtrl(payloaderCtrl *payloaderController) *ExecCtx {
	copy := *c
	copy.payloaderCtrl = payloaderCtrl
	return &copy
}

func (c *ExecCtx) WithPipelineCtrl(pipelineCtrl *pipelineController) *ExecCtx {
	copy := *c
	copy.pipelineCtrl = pipelineCtrl
	return &copy
}

func (c *ExecCtx) WithFunctionCtrl(functionCtrl *functionController) *ExecCtx {
	copy := *c
	copy.functionCtrl = functionCtrl
	return &copy
}

func (c *ExecCtx) WithEvents(events <-chan event.Event) *ExecCtx {
	copy := *c
	copy.events = events
	return &copy
}

type volumeRegistry struct {
	payloaderCtrl *payloaderController
}

func (reg *volumeRegistry) Get(name string) (volume.Volume, bool) {
	if reg.payloaderCtrl == nil {
		return nil, false
	}
	vol, ok := reg.payloaderCtrl.volumes[name]
	return vol, ok
}
