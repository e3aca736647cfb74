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

package mem

import (
	"bytes"
	"errors"
	"io"
	"os"
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

func newTestVolume(t *testing.T) volume.Volume {
	t.Helper()
	vol, err := New(v1alpha1.Volume{
		Name:   "mem",
		Memory: &v1alpha1.MemoryVolume{BlockSize: 8},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err = vol.Init(&execCtx{log: zaptest.NewLogger(t).Sugar()}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return vol
}

func writeFile(t *testing.T, vol volume.Volume, name string, data []byte) volume.File {
	t.Helper()
	f, err := vol.OpenCreate(name)
	if err != nil {
		t.Fatalf("OpenCreate() error = %v", err)
	}
	fw, err := f.AcquireWriter()
	if err != nil {
		t.Fatalf("AcquireWriter() error = %v", err)
	}
	// uneven writes spanning blocks
	for len(data) > 0 {
		n := min(5, len(data))
		if _, err = fw.Write(data[:n]); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		data = data[n:]
	}
	if err = fw.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return f
}

func readFile(t *testing.T, f volume.File) []byte {
	t.Helper()
	fr, err := f.AcquireReader()
	if err != nil {
		t.Fatalf("AcquireReader() error = %v", err)
	}
	defer fr.Close()
	data, err := io.ReadAll(fr)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if int64(len(data)) != fr.Size() {
		t.Errorf("Size() = %d, read %d bytes", fr.Size(), len(data))
	}
	return data
}

func TestMemWriteRead(t *testing.T) {
	vol := newTestVolume(t)
	data := []byte("fragment data spanning multiple blocks")

	if _, err := vol.Open("a/b.mp4"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open() of missing file error = %v", err)
	}

	writeFile(t, vol, "/a/b.mp4", data)

	f, err := vol.Open("a/b.mp4")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if f.Name() != "a/b.mp4" {
		t.Errorf("Name() = %s, want a/b.mp4", f.Name())
	}
	if got := readFile(t, f); !bytes.Equal(got, data) {
		t.Errorf("read %q, want %q", got, data)
	}
}

func TestMemReplaceKeepsOpenReaders(t *testing.T) {
	vol := newTestVolume(t)
	old := []byte("old content of the file")
	f := writeFile(t, vol, "x", old)

	fr, err := f.AcquireReader()
	if err != nil {
		t.Fatalf("AcquireReader() error = %v", err)
	}

	writeFile(t, vol, "x", []byte("new"))

	got, err := io.ReadAll(fr)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, old) {
		t.Errorf("open reader read %q, want %q", got, old)
	}
	_ = fr.Close()

	f, err = vol.Open("x")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got = readFile(t, f); string(got) != "new" {
		t.Errorf("read %q, want %q", got, "new")
	}
}

func TestMemAbortAndDelete(t *testing.T) {
	vol := newTestVolume(t)

	f, err := vol.OpenCreate("aborted")
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
	if err = fw.Commit(); !errors.Is(err, volume.ErrAlreadyCommitted) {
		t.Errorf("Commit() after Abort() error = %v", err)
	}
	if _, err = vol.Open("aborted"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open() of aborted file error = %v", err)
	}

	writeFile(t, vol, "deleted", []byte("data"))
	if err = vol.Delete("deleted"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err = vol.Open("deleted"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open() of deleted file error = %v", err)
	}
	if err = vol.Delete("deleted"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("second Delete() error = %v", err)
	}
}
