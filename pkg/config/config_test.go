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

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/inhies/go-bytesize"
	"github.com/spf13/viper"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
)

const testConfig = `
volumes:
  - name: out
    fs:
      path: /var/lib/payloader
      fileMode: 420
  - name: scratch
    mem:
      blockSize: 1MB
pipelines:
  - name: cam1
    input:
      path: /srv/cam1
      pattern: "**.m4s"
      chunkSize: 16KB
      clock: ntp
    timestampCvt: {}
    payloader:
      maxBoxSize: 4096
      initMode: syncPoints
      validate: true
    output:
      volumeRef:
        name: out
      fileNameTemplate: "{{.Pipeline}}/{{.Index}}.mp4"
    functions:
      - name: gc
        cleanup:
          volumeRefs:
            - name: out
          files:
            - "**.mp4"
          age: 90s
      - name: log
        eventLog:
          volumeRef:
            name: scratch
`

func readConfig(t *testing.T, data string) (*v1alpha1.Config, error) {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(data)); err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}
	cfg := &v1alpha1.Config{}
	return cfg, UnmarshalExact(v, cfg)
}

func TestUnmarshalExact(t *testing.T) {
	cfg, err := readConfig(t, testConfig)
	if err != nil {
		t.Fatalf("UnmarshalExact() error = %v", err)
	}

	if len(cfg.Volumes) != 2 || cfg.Volumes[0].FileSystem == nil || cfg.Volumes[1].Memory == nil {
		t.Fatalf("Volumes = %+v", cfg.Volumes)
	}
	if cfg.Volumes[0].FileSystem.FileMode != 0644 {
		t.Errorf("FileMode = %o, want 644", cfg.Volumes[0].FileSystem.FileMode)
	}
	if cfg.Volumes[1].Memory.BlockSize != bytesize.MB {
		t.Errorf("BlockSize = %s, want 1MB", cfg.Volumes[1].Memory.BlockSize)
	}

	if len(cfg.Pipelines) != 1 {
		t.Fatalf("got %d pipelines, want 1", len(cfg.Pipelines))
	}
	p := cfg.Pipelines[0]
	if p.Input.ChunkSize != 16*bytesize.KB || p.Input.Clock != "ntp" || p.Input.Pattern != "**.m4s" {
		t.Errorf("Input = %+v", p.Input)
	}
	if p.TimestampCvt == nil {
		t.Errorf("TimestampCvt = nil")
	}
	if p.Payloader.MaxBoxSize != 4096 || p.Payloader.InitMode != "syncPoints" || !p.Payloader.Validate {
		t.Errorf("Payloader = %+v", p.Payloader)
	}
	if p.Output.VolumeRef.Name != "out" || p.Output.FileNameTemplate != "{{.Pipeline}}/{{.Index}}.mp4" {
		t.Errorf("Output = %+v", p.Output)
	}

	if len(p.Functions) != 2 || p.Functions[0].Cleanup == nil || p.Functions[1].EventLog == nil {
		t.Fatalf("Functions = %+v", p.Functions)
	}
	if c := p.Functions[0].Cleanup; c.Age != 90*time.Second || len(c.Files) != 1 || c.VolumeRefs[0].Name != "out" {
		t.Errorf("Cleanup = %+v", c)
	}
}

func TestUnmarshalExactUnknownKey(t *testing.T) {
	if _, err := readConfig(t, "pipelines:\n  - name: cam1\n    unknown: true\n"); err == nil {
		t.Errorf("UnmarshalExact() accepted unknown key")
	}
}
