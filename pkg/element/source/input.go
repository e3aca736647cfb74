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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gobwas/glob"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/media"
)

const Stdin = "-"

// OpenInput opens the input described by cfg: stdin, a single file or the files below a directory. Files of a
// directory are selected by Pattern, or by a segment file extension if no pattern is set, and read one after another
// with initialization segments first.
func OpenInput(cfg v1alpha1.Input) (io.ReadCloser, []string, error) {
	if cfg.Path == "" {
		return nil, nil, errors.New("source: Path not set")
	}
	if cfg.Path == Stdin {
		return io.NopCloser(os.Stdin), []string{Stdin}, nil
	}

	s, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	if !s.IsDir() {
		return newMultiFileReader([]string{cfg.Path}), []string{cfg.Path}, nil
	}

	files, err := SelectFiles(os.DirFS(cfg.Path), cfg.Pattern)
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("source: no input files in %s", cfg.Path)
	}
	for i := range files {
		files[i] = filepath.Join(cfg.Path, filepath.FromSlash(files[i]))
	}
	return newMultiFileReader(files), files, nil
}

// SelectFiles returns the slash separated paths of all regular files in fsys matching pattern. Initialization
// segments are sorted first, everything else in lexical order.
func SelectFiles(fsys fs.FS, pattern string) ([]string, error) {
	var g glob.Glob
	if pattern != "" {
		var err error
		if g, err = glob.Compile(pattern, '/'); err != nil {
			return nil, err
		}
	}

	files := make([]string, 0)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if g != nil {
			if g.Match(p) {
				files = append(files, p)
			}
			return nil
		}
		if media.IsSegment(media.FileTypeExt(path.Ext(p))) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool {
		initI := media.FileTypeExt(path.Ext(files[i])) == media.InitializationSegmentFileType
		initJ := media.FileTypeExt(path.Ext(files[j])) == media.InitializationSegmentFileType
		if initI != initJ {
			return initI
		}
		return files[i] < files[j]
	})
	return files, nil
}

// multiFileReader reads files one after another. Only one file is open at a time. Close may be called concurrently
// with Read; reads after Close return EOF.
type multiFileReader struct {
	mtx   sync.Mutex
	files []string
	cur   *os.File
}

func newMultiFileReader(files []string) *multiFileReader {
	return &multiFileReader{files: files}
}

func (r *multiFileReader) Read(p []byte) (int, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for {
		if r.cur == nil {
			if len(r.files) == 0 {
				return 0, io.EOF
			}
			f, err := os.Open(r.files[0])
			if err != nil {
				return 0, err
			}
			r.cur = f
			r.files = r.files[1:]
		}

		n, err := r.cur.Read(p)
		if errors.Is(err, io.EOF) {
			errClose := r.cur.Close()
			r.cur = nil
			if errClose != nil {
				return n, errClose
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *multiFileReader) Close() error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.files = nil
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}
