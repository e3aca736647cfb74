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
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/event"
	"github.com/nagare-media/payloader/pkg/function/functiontest"
)

func committed(name string, t time.Time) *event.FragmentEvent {
	e := event.NewFragmentEvent(event.FragmentCommittedEvent, "test", "s1", 0, nil, nil)
	e.FileName = name
	e.Time = t
	return e
}

func TestCleanupDeletesExpiredFiles(t *testing.T) {
	vol := functiontest.NewMemVolume(t, "out")
	execCtx := functiontest.NewExecCtx(t, vol)
	deleted := execCtx.Stream.Sub()

	fn, err := New(v1alpha1.Function{
		Name: "gc",
		Cleanup: &v1alpha1.CleanupFunction{
			VolumeRefs: []v1alpha1.Reference{{Name: "out"}},
			Files:      []string{"**.mp4"},
			Age:        20 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	functiontest.WriteFile(t, vol, "a/0.mp4", []byte{1})
	functiontest.WriteFile(t, vol, "a/1.mp4", []byte{2})
	functiontest.WriteFile(t, vol, "a/events.jsonl", []byte{3})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error)
	go func() { done <- fn.Exec(ctx, execCtx) }()

	now := time.Now()
	execCtx.In <- committed("a/0.mp4", now)
	execCtx.In <- committed("a/events.jsonl", now)
	execCtx.In <- committed("a/1.mp4", now.Add(time.Hour))

	select {
	case e := <-deleted:
		fe, ok := e.(*event.FileEvent)
		if !ok || fe.Type != event.FileDeletedEvent || fe.FileName != "a/0.mp4" || fe.Volume != "out" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for deletion")
	}

	if _, err = functiontest.ReadFile(vol, "a/0.mp4"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expired file still exists: %v", err)
	}
	for _, name := range []string{"a/1.mp4", "a/events.jsonl"} {
		if _, err = functiontest.ReadFile(vol, name); err != nil {
			t.Errorf("ReadFile(%s) error = %v", name, err)
		}
	}

	close(execCtx.In)
	select {
	case err = <-done:
		if err != nil {
			t.Errorf("Exec() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Exec() did not return after the event channel was closed")
	}
}

func TestCleanupMissingVolume(t *testing.T) {
	execCtx := functiontest.NewExecCtx(t)
	fn, err := New(v1alpha1.Function{
		Name:    "gc",
		Cleanup: &v1alpha1.CleanupFunction{VolumeRefs: []v1alpha1.Reference{{Name: "out"}}},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err = fn.Exec(context.Background(), execCtx); err == nil {
		t.Errorf("Exec() succeeded without volume")
	}
}

func TestNew(t *testing.T) {
	refs := []v1alpha1.Reference{{Name: "out"}}
	tests := []struct {
		name    string
		cfg     v1alpha1.Function
		wantErr bool
		wantAge time.Duration
	}{
		{"default age", v1alpha1.Function{Name: "gc", Cleanup: &v1alpha1.CleanupFunction{VolumeRefs: refs}}, false, DefaultConfig.Age},
		{"age", v1alpha1.Function{Name: "gc", Cleanup: &v1alpha1.CleanupFunction{VolumeRefs: refs, Age: time.Second}}, false, time.Second},
		{"invalid name", v1alpha1.Function{Name: "g c", Cleanup: &v1alpha1.CleanupFunction{VolumeRefs: refs}}, true, 0},
		{"no config", v1alpha1.Function{Name: "gc"}, true, 0},
		{"no volumes", v1alpha1.Function{Name: "gc", Cleanup: &v1alpha1.CleanupFunction{}}, true, 0},
		{"invalid pattern", v1alpha1.Function{Name: "gc", Cleanup: &v1alpha1.CleanupFunction{VolumeRefs: refs, Files: []string{"[a"}}}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && fn.Config().Cleanup.Age != tt.wantAge {
				t.Errorf("Age = %s, want %s", fn.Config().Cleanup.Age, tt.wantAge)
			}
		})
	}
}
