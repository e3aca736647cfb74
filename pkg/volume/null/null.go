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

package null

import (
	"io"
	"os"
	"time"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/volume"
)

// null discards everything written to it. Useful for dry runs.
type null struct {
	cfg v1alpha1.Volume
}

func New(cfg v1alpha1.Volume) (volume.Volume, error) {
	if err := volume.CheckAndSetDefaults(&cfg); err != nil {
		return nil, err
	}
	return &null{cfg: cfg}, nil
}

func (v *null) Config() v1alpha1.Volume {
	return v.cfg
}

func (v *null) Init(execCtx volume.ExecCtx) error {
	execCtx.Logger().Info("null volume initialized")
	return nil
}

func (v *null) Deinit(execCtx volume.ExecCtx) error {
	execCtx.Logger().Info("null volume deinitialized")
	return nil
}

func (v *null) Open(name string) (volume.File, error) {
	return nil, os.ErrNotExist
}

func (v *null) OpenCreate(name string) (volume.File, error) {
	name, err := volume.CleanName(name)
	if err != nil {
		return nil, err
	}
	return &file{name: name}, nil
}

func (v *null) Delete(name string) error {
	return nil
}

type file struct {
	name string
}

func (f *file) Name() string {
	return f.name
}

func (f *file) AcquireReader() (volume.FileReader, error) {
	return nullFileReader, nil
}

func (f *file) AcquireWriter() (volume.FileWriter, error) {
	return &fileWriter{}, nil
}

type fileReader struct{}

var nullFileReader = &fileReader{}

func (fr *fileReader) ModTime() time.Time {
	return volume.UnixEpoch
}

func (fr *fileReader) Read(p []byte) (n int, err error) {
	return 0, io.EOF
}

func (fr *fileReader) Close() error {
	return nil
}

func (fr *fileReader) Size() int64 {
	return 0
}

type fileWriter struct {
	done bool
}

func (fw *fileWriter) Write(p []byte) (n int, err error) {
	if fw.done {
		return 0, volume.ErrAlreadyCommitted
	}
	return len(p), nil
}

func (fw *fileWriter) Commit() error {
	if fw.done {
		return volume.ErrAlreadyCommitted
	}
	fw.done = true
	return nil
}

func (fw *fileWriter) Abort() error {
	if fw.done {
		return volume.ErrAlreadyCommitted
	}
	fw.done = true
	return nil
}
