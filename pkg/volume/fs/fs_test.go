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

package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/volume"
)

type execCtx struct {
	log *zap.SugaredLogger
}

func (c *execCtx) Logger() *zap.SugaredLogger { return c.log }

func newTestVolume(t *testing.T) (volume.Volume, string) {
	t.Helper()
	dir := t.TempDir()
	vol, err := New(v1alpha1.Volume{
		Name:       "fs",
		FileSystem: &v1alpha1.FileSystemVolume{Path: dir},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err = vol.Init(&execCtx{log: zaptest.NewLogger(t).Sugar()}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return vol, dir
}

func TestFSCommit(t *testing.T) {
	vol, dir := newTestVolume(t)

	f, err := vol.OpenCreate("stream/00000001.mp4")
	if err != nil {
		t.Fatalf("OpenCreate() error = %v", err)
	}
	fw, err := f.AcquireWriter()
	if err != nil {
		t.Fatalf("AcquireWriter() error = %v", err)
	}
	if _, err = fw.Write([]byte("fragment")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// not visible before commit
	path := filepath.Join(dir, "stream", "00000001.mp4")
	if _, err = os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file visible before commit: %v", err)
	}

	if err = fw.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err = fw.Commit(); !errors.Is(err, volume.ErrAlreadyCommitted) {
		t.Errorf("second Commit() error = %v", err)
	}

	s, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if s.Mode().Perm() != 0644 {
		t.Errorf("mode = %s, want 0644", s.Mode().Perm())
	}

	f, err = vol.Open("stream/00000001.mp4")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	fr, err := f.AcquireReader()
	if err != nil {
		t.Fatalf("AcquireReader() error = %v", err)
	}
	defer fr.Close()
	data, err := io.ReadAll(fr)
	if err != nil || string(data) != "fragment" || fr.Size() != 8 {
		t.Errorf("read %q (size %d), %v", data, fr.Size(), err)
	}
}

func TestFSAbortAndDelete(t *testing.T) {
	vol, dir := newTestVolume(t)

	f, err := vol.OpenCreate("a.mp4")
	if err != nil {
		t.Fatalf("OpenCreate() error = %v", err)
	}
	fw, err := f.AcquireWriter()
	if err != nil {
		t.Fatalf("AcquireWriter() error = %v", err)
	}
	_, _ = fw.Write([]byte("partial"))
	if err = fw.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("directory not empty after Abort(): %v", entries)
	}

	if _, err = vol.Open("a.mp4"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open() of aborted file error = %v", err)
	}

	fw, _ = f.AcquireWriter()
	_, _ = fw.Write([]byte("data"))
	if err = fw.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err = vol.Delete("a.mp4"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err = os.Stat(filepath.Join(dir, "a.mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file exists after Delete()")
	}
}

func TestFSNameEscapingRoot(t *testing.T) {
	vol, dir := newTestVolume(t)

	f, err := vol.OpenCreate("../../escape.mp4")
	if err != nil {
		t.Fatalf("OpenCreate() error = %v", err)
	}
	if f.Name() != "escape.mp4" {
		t.Errorf("Name() = %s, want escape.mp4", f.Name())
	}
	fw, err := f.AcquireWriter()
	if err != nil {
		t.Fatalf("AcquireWriter() error = %v", err)
	}
	if err = fw.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if _, err = os.Stat(filepath.Join(dir, "escape.mp4")); err != nil {
		t.Errorf("file not written below volume root: %v", err)
	}
}
