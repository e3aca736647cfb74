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

package copy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/nagare-media/payloader/internal/pool"
	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/event"
	"github.com/nagare-media/payloader/pkg/function"
	"github.com/nagare-media/payloader/pkg/volume"
)

type copy struct {
	cfg v1alpha1.Function
	vol volume.Volume
	log *zap.SugaredLogger
	wg  sync.WaitGroup
}

// New creates a function copying every committed fragment to another volume under the same name.
func New(cfg v1alpha1.Function) (function.Function, error) {
	if err := function.CheckAndSetDefaults(&cfg); err != nil {
		return nil, err
	}
	if cfg.Copy == nil || cfg.Copy.VolumeRef.Name == "" {
		return nil, errors.New("copy: VolumeRef invalid")
	}

	return &copy{cfg: cfg}, nil
}

func (fn *copy) Config() v1alpha1.Function {
	return fn.cfg
}

func (fn *copy) Exec(ctx context.Context, execCtx function.ExecCtx) error {
	fn.log = execCtx.Logger()

	vol, ok := execCtx.VolumeRegistry().Get(fn.cfg.Copy.VolumeRef.Name)
	if !ok {
		return fmt.Errorf("volume '%s' not found", fn.cfg.Copy.VolumeRef.Name)
	}
	fn.vol = vol

	// wait for running copies
	defer fn.wg.Wait()

	events := execCtx.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case es, ok := <-events:
			if !ok {
				return nil
			}
			if e, ok := es.(*event.FragmentEvent); ok && e.Type == event.FragmentCommittedEvent && e.File != nil {
				fn.wg.Add(1)
				go func() {
					defer fn.wg.Done()
					fn.handleCopy(e.File)
				}()
			}
		}
	}
}

func (fn *copy) handleCopy(file volume.File) {
	log := fn.log.With("file", file.Name())

	fr, err := file.AcquireReader()
	if err != nil {
		log.Errorw("failed to acquire file reader", "error", err)
		return
	}
	defer fr.Close()

	newFile, err := fn.vol.OpenCreate(file.Name())
	if err != nil {
		log.Errorw("failed to open file", "error", err)
		return
	}

	fw, err := newFile.AcquireWriter()
	if err != nil {
		log.Errorw("failed to acquire file writer", "error", err)
		return
	}

	copyBuf := pool.CopyBuf.Get().(*[]byte)
	defer pool.CopyBuf.Put(copyBuf)

	if _, err = io.CopyBuffer(fw, fr, *copyBuf); err != nil {
		log.Errorw("failed to copy file", "error", err)
		if err = fw.Abort(); err != nil {
			log.Errorw("failed to abort file", "error", err)
		}
		return
	}

	if err = fw.Commit(); err != nil {
		log.Errorw("failed to commit file", "error", err)
		return
	}
	log.Debugw("copied file", "volume", fn.vol.Config().Name)
}
