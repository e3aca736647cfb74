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
	"errors"
	"regexp"

	"go.uber.org/zap"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/event"
	"github.com/nagare-media/payloader/pkg/volume"
)

var NameRegex = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)

type Pipeline interface {
	Config() v1alpha1.Pipeline
	EventStream() event.Stream
	SetCtx(ctx context.Context)
	SetExecCtx(execCtx ExecCtx)
	// Run reads the input until the end of stream or until ctx is done.
	Run(ctx context.Context) error
}

type ExecCtx interface {
	Logger() *zap.SugaredLogger
	VolumeRegistry() volume.Registry
}

func CheckAndSetDefaults(cfg *v1alpha1.Pipeline) error {
	if !NameRegex.Match([]byte(cfg.Name)) {
		return errors.New("pipeline: Name invalid")
	}
	if cfg.Input.Path == "" {
		return errors.New("pipeline: Input.Path invalid")
	}
	if cfg.Output.VolumeRef.Name == "" {
		return errors.New("pipeline: Output.VolumeRef invalid")
	}
	return nil
}
