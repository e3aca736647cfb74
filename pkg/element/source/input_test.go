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

package source

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"testing/fstest"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
)

func TestSelectFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"a/seg-0002.m4s": {},
		"a/seg-0001.m4s": {},
		"a/video.init":   {},
		"b/seg-0001.m4s": {},
		"b/manifest.mpd": {},
		"notes.txt":      {},
	}

	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		{
			name: "segment extensions",
			want: []string{"a/video.init", "a/seg-0001.m4s", "a/seg-0002.m4s", "b/seg-0001.m4s"},
		},
		{
			name:    "pattern",
			pattern: "a/*",
			want:    []string{"a/video.init", "a/seg-0001.m4s", "a/seg-0002.m4s"},
		},
		{
			name:    "super-asterisk",
			pattern: "**.m4s",
			want:    []string{"a/seg-0001.m4s", "a/seg-0002.m4s", "b/seg-0001.m4s"},
		},
		{
			name:    "single asterisk does not cross separators",
			pattern: "*.txt",
			want:    []string{"notes.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectFiles(fsys, tt.pattern)
			if err != nil {
				t.Fatalf("SelectFiles() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SelectFiles() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpenInputConcatenatesFiles(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{
		"seg-1.m4s": "bb",
		"seg-2.m4s": "ccc",
		"x.init":    "a",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	r, files, err := OpenInput(v1alpha1.Input{Path: dir})
	if err != nil {
		t.Fatalf("OpenInput() error = %v", err)
	}
	defer r.Close()

	if len(files) != 3 {
		t.Errorf("got %d files, want 3", len(files))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "abbccc" {
		t.Errorf("read %q, want %q", data, "abbccc")
	}

	if _, _, err = OpenInput(v1alpha1.Input{Path: t.TempDir()}); err == nil {
		t.Errorf("OpenInput() of empty directory succeeded")
	}
}

func TestMultiFileReaderClose(t *testing.T) {
	dir := t.TempDir()
	names := []string{filepath.Join(dir, "a.m4s"), filepath.Join(dir, "b.m4s")}
	for _, name := range names {
		if err := os.WriteFile(name, []byte("data"), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	r := newMultiFileReader(names)
	p := make([]byte, 2)
	if n, err := r.Read(p); n != 2 || err != nil {
		t.Fatalf("Read() = %d, %v", n, err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n, err := r.Read(p); n != 0 || err != io.EOF {
		t.Errorf("Read() after Close = %d, %v, want 0, EOF", n, err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
