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
	"fmt"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/pipeline"
)

// FunctionEventBufferLen is the number of events buffered for each function. Events are dropped for functions that
// fall further behind.
const FunctionEventBufferLen = 1024

type PipelineController interface {
	Controller
	Pipeline() pipeline.Pipeline
}

type pipelineController struct {
	pipeline            pipeline.Pipeline
	functionControllers []*functionController
}

var _ PipelineController = &pipelineController{}

func NewPipelineController(cfg v1alpha1.Pipeline) (*pipelineController, error) {
	// create pipeline
	p, err := pipeline.New(cfg)
	if err != nil {
		return nil, err
	}

	// create function controllers
	functionCtrl := make([]*functionController, len(cfg.Functions))
	functionNameExists := make(map[string]bool)
	for i, functionCfg := range cfg.Functions {
		name := functionCfg.Name
		if functionNameExists[name] {
			return nil, fmt.Errorf("NewPipelineController: multiple functions with the same name '%s' configured", name)
		}

		ctrl, err := NewFunctionController(functionCfg)
		if err != nil {
			return nil, err
		}
		functionCtrl[i] = ctrl
		functionNameExists[name] = true
	}

	return &pipelineController{
		pipeline:            p,
		functionControllers: functionCtrl,
	}, nil
}

func (c *pipelineController) Pipeline() pipeline.Pipeline {
	return c.pipeline
}

func (c *pipelineController) Exec(ctx context.Context, execCtx *ExecCtx) error {
	log := execCtx.Logger().
		Named(c.pipeline.Config().Name).
		With("pipeline", c.pipeline.Config().Name)
	execCtx = execCtx.
		WithPipelineCtrl(c).
		WithLogger(log)

	log.Info("start pipeline controller")

	// stopped after the pipeline run; pending events are still delivered
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	c.pipeline.SetCtx(streamCtx)
	c.pipeline.SetExecCtx(execCtx)

	ctrls := make([]Controller, 0, len(c.functionControllers)+1)
	for _, fc := range c.functionControllers {
		// subscribe before the first event is published
		events := c.pipeline.EventStream().SubBuf(FunctionEventBufferLen)
		fnExecCtx := execCtx.WithEvents(events)
		ctrls = append(ctrls, ControllerFunc(func(ctx context.Context, _ *ExecCtx) error {
			defer c.pipeline.EventStream().Desub(events)
			return fc.Exec(ctx, fnExecCtx)
		}))
	}
	ctrls = append(ctrls, ControllerFunc(func(ctx context.Context, execCtx *ExecCtx) error {
		// functions return once the stopped stream closed their event channels
		defer stopStream()
		return c.pipeline.Run(ctx)
	}))

	log.Info("start sub-controllers")
	opts := GroupControllerOpts{
		// functions could depend upon each other => stop all if one dies
		StopAllOnError: true,
	}
	err := NewGroupController(opts, ctrls...).Exec(ctx, execCtx)

	log.Info("shutdown pipeline controller")
	return err
}
