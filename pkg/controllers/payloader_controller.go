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
	"errors"
	"fmt"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/volume"
	"github.com/nagare-media/payloader/pkg/volume/fs"
	"github.com/nagare-media/payloader/pkg/volume/mem"
	"github.com/nagare-media/payloader/pkg/volume/null"
)

type payloaderController struct {
	volumes             map[string]volume.Volume
	pipelineControllers []Controller
}

func NewPayloaderController(cfg v1alpha1.Config) (*payloaderController, error) {
	// create volumes
	volumes := make(map[string]volume.Volume)
	for _, volCfg := range cfg.Volumes {
		name := volCfg.Name
		if _, ok := volumes[name]; ok {
			return nil, fmt.Errorf("NewPayloaderController: multiple volumes with the same name '%s' configured", name)
		}

		vol, err := newVolume(volCfg)
		if err != nil {
			return nil, err
		}
		volumes[name] = vol
	}

	// create pipeline controllers
	pipelineCtrl := make([]Controller, len(cfg.Pipelines))
	pipelineNameExists := make(map[string]bool)
	for i, pipelineCfg := range cfg.Pipelines {
		name := pipelineCfg.Name
		if pipelineNameExists[name] {
			return nil, fmt.Errorf("NewPayloaderController: multiple pipelines with the same name '%s' configured", name)
		}
		if _, ok := volumes[pipelineCfg.Output.VolumeRef.Name]; !ok {
			return nil, fmt.Errorf("NewPayloaderController: pipeline '%s' references unknown volume '%s'", name, pipelineCfg.Output.VolumeRef.Name)
		}

		ctrl, err := NewPipelineController(pipelineCfg)
		if err != nil {
			return nil, err
		}
		pipelineCtrl[i] = ctrl
		pipelineNameExists[name] = true
	}

	return &payloaderController{
		volumes:             volumes,
		pipelineControllers: pipelineCtrl,
	}, nil
}

func (c *payloaderController) Exec(ctx context.Context, execCtx *ExecCtx) error {
	log := execCtx.Logger().Named("payloader")
	execCtx = execCtx.
		WithPayloaderCtrl(c).
		WithLogger(log)

	log.Info("start payloader controller")
	if len(c.pipelineControllers) == 0 {
		log.Warn("no pipeline configured; nothing to do")
		return nil
	}

	log.Info("initialize volumes")
	for _, vol := range c.volumes {
		err := vol.Init(execCtx)
		if err != nil {
			log.Errorw("payloaderController: initializing volume failed", "error", err)
			return err
		}
	}

	log.Info("start sub-controllers")
	// a failing pipeline does not stop the others
	subControllerGroup := NewGroupController(GroupControllerOpts{}, c.pipelineControllers...)
	err := subControllerGroup.Exec(ctx, execCtx)

	log.Info("deinitialize volumes")
	for _, vol := range c.volumes {
		errvol := vol.Deinit(execCtx)
		if errvol != nil {
			log.Errorw("payloaderController: deinitializing volume failed", "error", errvol)
			err = errvol
		}
	}

	log.Info("shutdown payloader controller")
	return err
}

func newVolume(cfg v1alpha1.Volume) (volume.Volume, error) {
	configuredTypes := make([]string, 0, 1)
	var createFunc func(cfg v1alpha1.Volume) (volume.Volume, error)

	if cfg.Null != nil {
		configuredTypes = append(configuredTypes, "null")
		createFunc = null.New
	}
	if cfg.Memory != nil {
		configuredTypes = append(configuredTypes, "mem")
		createFunc = mem.New
	}
	if cfg.FileSystem != nil {
		configuredTypes = append(configuredTypes, "fs")
		createFunc = fs.New
	}
	if len(configuredTypes) == 0 {
		return nil, errors.New("newVolume: no volume type configured")
	} else if len(configuredTypes) > 1 {
		return nil, fmt.Errorf("newVolume: multiple volume types configured: %s", configuredTypes)
	}

	return createFunc(cfg)
}
