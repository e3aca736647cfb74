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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/event"
	"github.com/nagare-media/payloader/pkg/function/functiontest"
	"github.com/nagare-media/payloader/pkg/media"
)

func TestEventLog(t *testing.T) {
	vol := functiontest.NewMemVolume(t, "logs")
	execCtx := functiontest.NewExecCtx(t, vol)

	fn, err := New(v1alpha1.Function{Name: "log", EventLog: &v1alpha1.EventLogFunction{VolumeRef: v1alpha1.Reference{Name: "logs"}}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	buf := media.NewBuffer(make([]byte, 100))
	buf.PTS = 2 * media.Second
	stop := event.NewStreamEvent(event.StreamStopEvent, "test", "s1")
	stop.Stats = &event.StreamStats{Fragments: 1, Bytes: 100}

	execCtx.In <- event.NewStreamEvent(event.StreamStartEvent, "test", "s1")
	execCtx.In <- event.NewFragmentEvent(event.FragmentCommittedEvent, "test", "s1", 0, nil, buf)
	execCtx.In <- event.NewFileEvent(event.FileDeletedEvent, "out", "test/s1/00000000.mp4")
	execCtx.In <- stop
	close(execCtx.In)

	done := make(chan error)
	go func() { done <- fn.Exec(context.Background(), execCtx) }()
	select {
	case err = <-done:
		if err != nil {
			t.Fatalf("Exec() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Exec() did not return after the event channel was closed")
	}

	data, err := functiontest.ReadFile(vol, DefaultConfig.FileName)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	var got []cloudevents.Event
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var ce cloudevents.Event
		if err = json.Unmarshal(sc.Bytes(), &ce); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		got = append(got, ce)
	}

	want := []struct {
		typ     event.Type
		subject string
	}{
		{event.StreamStartEvent, "s1"},
		{event.FragmentCommittedEvent, ""},
		{event.FileDeletedEvent, "test/s1/00000000.mp4"},
		{event.StreamStopEvent, "s1"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Type() != string(w.typ) {
			t.Errorf("event %d: Type() = %s, want %s", i, got[i].Type(), w.typ)
		}
		if got[i].Subject() != w.subject {
			t.Errorf("event %d: Subject() = %s, want %s", i, got[i].Subject(), w.subject)
		}
		if got[i].Source() != "/payloader.nagare.media/pipeline/test" {
			t.Errorf("event %d: Source() = %s", i, got[i].Source())
		}
		if got[i].ID() == "" {
			t.Errorf("event %d: empty ID", i)
		}
	}

	var stats event.StreamEvent
	if err = got[3].DataAs(&stats); err != nil {
		t.Fatalf("DataAs() error = %v", err)
	}
	if stats.Stats == nil || stats.Stats.Fragments != 1 || stats.Stats.Bytes != 100 {
		t.Errorf("Stats = %+v", stats.Stats)
	}

	var frag event.FragmentEvent
	if err = got[1].DataAs(&frag); err != nil {
		t.Fatalf("DataAs() error = %v", err)
	}
	if frag.Size != 100 || frag.PTS != 2*media.Second {
		t.Errorf("fragment = %+v", frag)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *v1alpha1.EventLogFunction
		wantErr bool
	}{
		{"default file name", &v1alpha1.EventLogFunction{VolumeRef: v1alpha1.Reference{Name: "logs"}}, false},
		{"file name", &v1alpha1.EventLogFunction{VolumeRef: v1alpha1.Reference{Name: "logs"}, FileName: "a/b.jsonl"}, false},
		{"no config", nil, true},
		{"no volume", &v1alpha1.EventLogFunction{}, true},
		{"invalid file name", &v1alpha1.EventLogFunction{VolumeRef: v1alpha1.Reference{Name: "logs"}, FileName: "/"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(v1alpha1.Function{Name: "log", EventLog: tt.cfg})
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
