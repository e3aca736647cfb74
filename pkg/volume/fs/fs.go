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
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/volume"
)

var (
	DefaultConfig = v1alpha1.FileSystemVolume{
		FileMode: 0644,
	}
)

type fs struct {
	cfg v1alpha1.Volume

	filesMtx sync.Mutex
	files    map[string]*file
}

// New creates a volume backed by a directory. Writers write to a temporary file in the target directory that is
// renamed on commit, so readers never observe partial files.
func New(cfg v1alpha1.Volume) (volume.Volume, error) {
	var err error
	if err = volume.CheckAndSetDefaults(&cfg); err != nil {
		return nil, err
	}
	if cfg.FileSystem == nil || cfg.FileSystem.Path == "" {
		return nil, errors.New("fs.New: Path not set")
	}
	if cfg.FileSystem.FileMode == 0 {
		cfg.FileSystem.FileMode = DefaultConfig.FileMode
	}

	cfg.FileSystem.Path, err = filepath.Abs(cfg.FileSystem.Path)
	if err != nil {
		return nil, err
	}

	return &fs{
		cfg:   cfg,
		files: make(map[string]*file),
	}, nil
}

func (fs *fs) Config() v1alpha1.Volume {
	return fs.cfg
}

func (fs *fs) Init(execCtx volume.ExecCtx) error {
	log := execCtx.Logger()

	err := os.MkdirAll(fs.cfg.FileSystem.Path, 0755)
	if err != nil {
		return err
	}

	log.Infow("fs volume initialized", "path", fs.cfg.FileSystem.Path)
	return nil
}

func (fs *fs) Deinit(execCtx volume.ExecCtx) error {
	fs.filesMtx.Lock()
	fs.files = make(map[string]*file)
	fs.filesMtx.Unlock()

	execCtx.Logger().Info("fs volume deinitialized")
	return nil
}

func (fs *fs) Open(name string) (volume.File, error) {
	f, err := fs.file(name)
	if err != nil {
		return nil, err
	}
	if _, err = os.Stat(f.absPath); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenCreate opens the file with the given name. It is created by the first committed writer.
func (fs *fs) OpenCreate(name string) (volume.File, error) {
	return fs.file(name)
}

// Delete file if it exists.
func (fs *fs) Delete(name string) error {
	f, err := fs.file(name)
	if err != nil {
		return err
	}

	fs.filesMtx.Lock()
	delete(fs.files, f.name)
	fs.filesMtx.Unlock()

	return os.Remove(f.absPath)
}

func (fs *fs) file(name string) (*file, error) {
	name, err := volume.CleanName(name)
	if err != nil {
		return nil, err
	}

	fs.filesMtx.Lock()
	defer fs.filesMtx.Unlock()

	if f, ok := fs.files[name]; ok {
		return f, nil
	}

	f := &file{
		fs:      fs,
		name:    name,
		absPath: filepath.Join(fs.cfg.FileSystem.Path, filepath.FromSlash(name)),
	}
	fs.files[name] = f
	return f, nil
}

type file struct {
	fs      *fs
	name    string
	absPath string

	// serializes commits
	writeMtx sync.Mutex
}

func (f *file) Name() string {
	return f.name
}

func (f *file) AcquireReader() (volume.FileReader, error) {
	fd, err := os.Open(f.absPath)
	if err != nil {
		return nil, err
	}
	return &fileReader{File: fd}, nil
}

func (f *file) AcquireWriter() (volume.FileWriter, error) {
	base := filepath.Dir(f.absPath)
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, err
	}

	fd, err := os.CreateTemp(base, ".payloader-*.tmp")
	if err != nil {
		return nil, err
	}

	return &fileWriter{
		file: f,
		fd:   fd,
	}, nil
}

type fileReader struct {
	*os.File
}

func (fr *fileReader) ModTime() time.Time {
	s, err := fr.Stat()
	if err != nil {
		return volume.UnixEpoch
	}
	return s.ModTime()
}

func (fr *fileReader) Size() int64 {
	s, err := fr.Stat()
	if err != nil {
		return -1
	}
	return s.Size()
}

type fileWriter struct {
	file *file
	fd   *os.File
}

func (fw *fileWriter) Write(p []byte) (n int, err error) {
	if fw.fd == nil {
		return 0, volume.ErrAlreadyCommitted
	}
	return fw.fd.Write(p)
}

func (fw *fileWriter) Commit() error {
	if fw.fd == nil {
		return volume.ErrAlreadyCommitted
	}
	fd := fw.fd
	fw.fd = nil

	err := fd.Chmod(os.FileMode(fw.file.fs.cfg.FileSystem.FileMode))
	if err != nil {
		_ = fd.Close()
		_ = os.Remove(fd.Name())
		return err
	}

	err = fd.Close()
	if err != nil {
		_ = os.Remove(fd.Name())
		return err
	}

	// move tmp file to correct location
	fw.file.writeMtx.Lock()
	defer fw.file.writeMtx.Unlock()
	err = os.Rename(fd.Name(), fw.file.absPath)
	if err != nil {
		_ = os.Remove(fd.Name())
		return err
	}

	return nil
}

func (fw *fileWriter) Abort() error {
	if fw.fd == nil {
		return volume.ErrAlreadyCommitted
	}
	fd := fw.fd
	fw.fd = nil

	errClose := fd.Close()
	if err := os.Remove(fd.Name()); err != nil {
		return err
	}
	return errClose
}
