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

package v1alpha1

import (
	"github.com/inhies/go-bytesize"
)

type Pipeline struct {
	Name string `mapstructure:"name"`

	Input        Input         `mapstructure:"input"`
	TimestampCvt *TimestampCvt `mapstructure:"timestampCvt,omitempty"`
	Payloader    Payloader     `mapstructure:"payloader,omitempty"`
	Output       Output        `mapstructure:"output"`
	Functions    []Function    `mapstructure:"functions,omitempty"`
}

type Input struct {
	// Path is a file, a directory or "-" for stdin.
	Path string `mapstructure:"path"`
	// Pattern selects files below Path if Path is a directory. Supports "**".
	Pattern   string            `mapstructure:"pattern,omitempty"`
	ChunkSize bytesize.ByteSize `mapstructure:"chunkSize,omitempty"`
	// Clock stamps chunks with the time since the start ("running") or the wall clock in the NTP epoch ("ntp").
	Clock string `mapstructure:"clock,omitempty"`
}

type TimestampCvt struct{}

type Payloader struct {
	MaxBoxSize bytesize.ByteSize `mapstructure:"maxBoxSize,omitempty"`
	// InitMode is either "always" or "syncPoints".
	InitMode string `mapstructure:"initMode,omitempty"`
	Validate bool   `mapstructure:"validate,omitempty"`
}

type Output struct {
	VolumeRef Reference `mapstructure:"volumeRef"`
	// FileNameTemplate is a text/template executed with the pipeline name, session ID, fragment index and PTS.
	FileNameTemplate string `mapstructure:"fileNameTemplate,omitempty"`
}
