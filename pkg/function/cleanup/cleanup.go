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

package cleanup

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gobwas/glob/compiler"
	"github.com/gobwas/glob/match"
	"github.com/gobwas/glob/syntax"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/event"
	"github.com/nagare-media/payloader/pkg/function"
	"github.com/nagare-media/payloader/pkg/volume"
)

const defaultWakeAfter = 10 * time.Second

var (
	DefaultConfig = v1alpha1.CleanupFunction{
		Age: 5 * time.Minute,
	}
)

type pendingFile struct {
	name    string
	expires time.Time
}

type cleanup struct {
	cfg         v1alpha1.Function
	fileMatcher match.Matchers
	now         func() time.Time
	wake        chan struct{}

	mtx          sync.Mutex
	pendingFiles *list.List // protected by mtx
}

// New creates a function deleting committed fragments once they are older than the configured age.
func New(cfg v1alpha1.Function) (function.Function, error) {
	if err := function.CheckAndSetDefaults(&cfg); err != nil {
		return nil, err
	}
	if cfg.Cleanup == nil {
		return nil, errors.New("cleanup: no config")
	}
	c := *cfg.Cleanup
	if len(c.VolumeRefs) == 0 {
		return nil, errors.New("cleanup: VolumeRefs invalid")
	}
	if c.Age <= 0 {
		c.Age = DefaultConfig.Age
	}
	cfg.Cleanup = &c

	fn := &cleanup{
		cfg:          cfg,
		fileMatcher:  make(match.Matchers, 0, len(c.Files)),
		now:          time.Now,
		wake:         make(chan struct{}, 1),
		pendingFiles: list.New(),
	}

	for _, fp := range c.Files {
		ast, err := syntax.Parse(fp)
		if err != nil {
			return nil, fmt.Errorf("cleanup: file pattern '%s' invalid: %w", fp, err)
		}
		matcher, err := compiler.Compile(ast, []rune{'/'})
		if err != nil {
			return nil, fmt.Errorf("cleanup: file pattern '%s' invalid: %w", fp, err)
		}
		fn.fileMatcher = append(fn.fileMatcher, matcher)
	}

	return fn, nil
}

func (fn *cleanup) Config() v1alpha1.Function {
	return fn.cfg
}

func (fn *cleanup) Exec(ctx context.Context, execCtx function.ExecCtx) error {
	vols := make([]volume.Volume, 0, len(fn.cfg.Cleanup.VolumeRefs))
	for _, vref := range fn.cfg.Cleanup.VolumeRefs {
		vol, ok := execCtx.VolumeRegistry().Get(vref.Name)
		if !ok {
			return fmt.Errorf("volume '%s' not found", vref.Name)
		}
		vols = append(vols, vol)
	}

	ctx, cancel := context.WithCancel(ctx)
	gcDone := make(chan struct{})
	go func() {
		fn.runGC(ctx, execCtx, vols)
		close(gcDone)
	}()
	defer func() {
		cancel()
		<-gcDone
	}()

	events := execCtx.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case es, ok := <-events:
			if !ok {
				return nil
			}
			e, ok := es.(*event.FragmentEvent)
			if !ok || e.Type != event.FragmentCommittedEvent || !fn.matches(e.FileName) {
				continue
			}

			fn.mtx.Lock()
			fn.pendingFiles.PushBack(pendingFile{
				name:    e.FileName,
				expires: e.Time.Add(fn.cfg.Cleanup.Age),
			})
			first := fn.pendingFiles.Len() == 1
			fn.mtx.Unlock()

			if first {
				select {
				case fn.wake <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (fn *cleanup) matches(fileName string) bool {
	if len(fn.fileMatcher) == 0 {
		return true
	}
	for _, matcher := range fn.fileMatcher {
		if matcher.Match(fileName) {
			return true
		}
	}
	return false
}

func (fn *cleanup) runGC(ctx context.Context, execCtx function.ExecCtx, vols []volume.Volume) {
	t := time.NewTimer(fn.wakeAfter())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fn.wake:
		case <-t.C:
		}

		fn.collect(execCtx, vols)

		// determine when to wake up again
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(fn.wakeAfter())
	}
}

// collect deletes all expired files from vols.
func (fn *cleanup) collect(execCtx function.ExecCtx, vols []volume.Volume) {
	log := execCtx.Logger()
	now := fn.now()

	for {
		fn.mtx.Lock()
		front := fn.pendingFiles.Front()
		if front == nil || front.Value.(pendingFile).expires.After(now) {
			fn.mtx.Unlock()
			return
		}
		fn.pendingFiles.Remove(front)
		fn.mtx.Unlock()

		pf := front.Value.(pendingFile)
		for _, vol := range vols {
			volName := vol.Config().Name
			if err := vol.Delete(pf.name); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					log.Debugw("file already deleted", "file", pf.name, "volume", volName)
				} else {
					log.Errorw("failed to delete file", "file", pf.name, "volume", volName, "error", err)
				}
				continue
			}
			log.Debugw("deleted file", "file", pf.name, "volume", volName)
			publish(execCtx, event.NewFileEvent(event.FileDeletedEvent, volName, pf.name))
		}
	}
}

func (fn *cleanup) wakeAfter() time.Duration {
	fn.mtx.Lock()
	defer fn.mtx.Unlock()

	oldest := fn.pendingFiles.Front()
	if oldest == nil {
		return defaultWakeAfter
	}
	d := oldest.Value.(pendingFile).expires.Sub(fn.now())
	if d < 0 {
		return 0
	}
	return d
}

func publish(execCtx function.ExecCtx, e event.Event) {
	if p := execCtx.Pipeline(); p != nil {
		p.EventStream().Pub(e)
	}
}

