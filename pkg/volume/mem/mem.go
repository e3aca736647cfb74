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
	"io"
	"os"
	"sync"
	"time"

	"github.com/inhies/go-bytesize"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/volume"
)

var (
	DefaultConfig = v1alpha1.MemoryVolume{
		BlockSize: 64 * bytesize.KB,
	}
)

type mem struct {
	cfg       v1alpha1.Volume
	blockPool sync.Pool

	filesMtx sync.RWMutex
	files    map[string]*file
}

// New creates a new memory volume. File content is stored in blocks of a fixed size that are recycled once a file is
// replaced or deleted and no reader references it anymore.
func New(cfg v1alpha1.Volume) (volume.Volume, error) {
	if err := volume.CheckAndSetDefaults(&cfg); err != nil {
		return nil, err
	}
	if cfg.Memory == nil {
		cfg.Memory = &v1alpha1.MemoryVolume{}
	}
	if cfg.Memory.BlockSize == 0 {
		cfg.Memory.BlockSize = DefaultConfig.BlockSize
	}

	blockSize := int(cfg.Memory.BlockSize)
	m := &mem{
		cfg:   cfg,
		files: make(map[string]*file),
		blockPool: sync.Pool{
			New: func() any {
				return &block{
					data: make([]byte, 0, blockSize),
				}
			},
		},
	}

	return m, nil
}

// Config returns the configuration of this volume.
func (m *mem) Config() v1alpha1.Volume {
	return m.cfg
}

// Init volume.
func (m *mem) Init(execCtx volume.ExecCtx) error {
	execCtx.Logger().Infow("mem volume initialized", "blockSize", m.cfg.Memory.BlockSize)
	return nil
}

// Deinit volume. All files are released.
func (m *mem) Deinit(execCtx volume.ExecCtx) error {
	m.filesMtx.Lock()
	defer m.filesMtx.Unlock()

	for name, f := range m.files {
		f.replace(nil)
		delete(m.files, name)
	}

	execCtx.Logger().Info("mem volume deinitialized")
	return nil
}

func (m *mem) Open(name string) (volume.File, error) {
	name, err := volume.CleanName(name)
	if err != nil {
		return nil, err
	}

	m.filesMtx.RLock()
	defer m.filesMtx.RUnlock()
	f, ok := m.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return f, nil
}

func (m *mem) OpenCreate(name string) (volume.File, error) {
	name, err := volume.CleanName(name)
	if err != nil {
		return nil, err
	}

	m.filesMtx.RLock()
	if f, ok := m.files[name]; ok {
		defer m.filesMtx.RUnlock()
		return f, nil
	}
	m.filesMtx.RUnlock()

	// registered on first commit
	return &file{vol: m, name: name}, nil
}

func (m *mem) Delete(name string) error {
	name, err := volume.CleanName(name)
	if err != nil {
		return err
	}

	m.filesMtx.Lock()
	defer m.filesMtx.Unlock()

	f, ok := m.files[name]
	if !ok {
		return os.ErrNotExist
	}
	delete(m.files, name)
	f.replace(nil)
	return nil
}

func (m *mem) register(f *file) {
	m.filesMtx.Lock()
	defer m.filesMtx.Unlock()
	if existing, ok := m.files[f.name]; ok && existing != f {
		existing.replace(nil)
	}
	m.files[f.name] = f
}

func (m *mem) getBlock() *block {
	return m.blockPool.Get().(*block)
}

func (m *mem) putBlocks(blks []*block) {
	for _, blk := range blks {
		blk.reset()
		m.blockPool.Put(blk)
	}
}

type file struct {
	vol  *mem
	name string

	mtx     sync.RWMutex
	content *content // nil until first commit
}

func (f *file) Name() string {
	return f.name
}

func (f *file) AcquireReader() (volume.FileReader, error) {
	f.mtx.RLock()
	defer f.mtx.RUnlock()

	c := f.content
	if c == nil || !c.acquire() {
		return nil, os.ErrNotExist
	}
	return &fileReader{vol: f.vol, content: c}, nil
}

func (f *file) AcquireWriter() (volume.FileWriter, error) {
	return &fileWriter{
		file: f,
		content: &content{
			blocks: make([]*block, 0, 1),
		},
	}, nil
}

// replace the content of f. The old content is recycled once all its readers are closed.
func (f *file) replace(c *content) {
	f.mtx.Lock()
	old := f.content
	f.content = c
	f.mtx.Unlock()

	if old != nil {
		old.release(f.vol)
	}
}

type content struct {
	blocks  []*block
	size    int64
	modTime time.Time

	mtx      sync.Mutex
	readers  int
	released bool
}

func (c *content) acquire() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.released {
		return false
	}
	c.readers++
	return true
}

func (c *content) releaseReader(m *mem) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.readers--
	if c.released && c.readers == 0 {
		m.putBlocks(c.blocks)
		c.blocks = nil
	}
}

func (c *content) release(m *mem) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.released = true
	if c.readers == 0 {
		m.putBlocks(c.blocks)
		c.blocks = nil
	}
}

type fileReader struct {
	vol     *mem
	content *content
	blk     int
	pos     int
}

func (fr *fileReader) ModTime() time.Time {
	return fr.content.modTime
}

func (fr *fileReader) Size() int64 {
	return fr.content.size
}

func (fr *fileReader) Read(p []byte) (n int, err error) {
	if fr.content == nil {
		return 0, os.ErrClosed
	}

	for n < len(p) && fr.blk < len(fr.content.blocks) {
		data := fr.content.blocks[fr.blk].data
		c := copy(p[n:], data[fr.pos:])
		n += c
		fr.pos += c
		if fr.pos == len(data) {
			fr.blk++
			fr.pos = 0
		}
	}

	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (fr *fileReader) Close() error {
	if fr.content == nil {
		return os.ErrClosed
	}
	fr.content.releaseReader(fr.vol)
	fr.content = nil
	return nil
}

type fileWriter struct {
	file    *file
	content *content
}

func (fw *fileWriter) Write(p []byte) (n int, err error) {
	if fw.content == nil {
		return 0, volume.ErrAlreadyCommitted
	}

	c := fw.content
	for len(p) > 0 {
		if len(c.blocks) == 0 || c.blocks[len(c.blocks)-1].full() {
			c.blocks = append(c.blocks, fw.file.vol.getBlock())
		}
		rest := c.blocks[len(c.blocks)-1].write(p)
		n += len(p) - len(rest)
		p = rest
	}
	c.size += int64(n)

	return n, nil
}

func (fw *fileWriter) Commit() error {
	if fw.content == nil {
		return volume.ErrAlreadyCommitted
	}

	fw.content.modTime = time.Now()
	fw.file.replace(fw.content)
	fw.file.vol.register(fw.file)

	fw.file = nil
	fw.content = nil
	return nil
}

func (fw *fileWriter) Abort() error {
	if fw.content == nil {
		return volume.ErrAlreadyCommitted
	}

	fw.file.vol.putBlocks(fw.content.blocks)

	fw.file = nil
	fw.content = nil
	return nil
}

type block struct {
	data []byte
}

func (blk *block) full() bool {
	return len(blk.data) == cap(blk.data)
}

func (blk *block) reset() {
	blk.data = blk.data[:0]
}

// write as much of p as fits into blk and return the rest.
func (blk *block) write(p []byte) []byte {
	n := copy(blk.data[len(blk.data):cap(blk.data)], p)
	blk.data = blk.data[:len(blk.data)+n]
	return p[n:]
}
