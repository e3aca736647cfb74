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

package payloader

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	mp4ff "github.com/edgeware/mp4ff/mp4"
	"github.com/inhies/go-bytesize"
	"go.uber.org/zap"

	"github.com/nagare-media/payloader/pkg/config/v1alpha1"
	"github.com/nagare-media/payloader/pkg/media"
	"github.com/nagare-media/payloader/pkg/media/mp4"
)

const (
	// InitModeAlways prepends ftyp and moov to every fragment.
	InitModeAlways = "always"
	// InitModeSyncPoints prepends ftyp and moov to sync point fragments and to the first fragment after they changed.
	InitModeSyncPoints = "syncPoints"
)

// an mdat chunk carries payload once it reaches past the box header
const mdatHeaderLen = 8

var (
	DefaultConfig = v1alpha1.Payloader{
		MaxBoxSize: 64 * bytesize.MB,
		InitMode:   InitModeAlways,
	}
)

// Sink receives assembled fragments. Push is called synchronously while processing the chunk that completed the
// fragment; blocking in Push blocks the upstream producer.
type Sink interface {
	Push(buf *media.Buffer) error
}

type SinkFunc func(buf *media.Buffer) error

func (f SinkFunc) Push(buf *media.Buffer) error {
	return f(buf)
}

// Stats counts what a payloader has processed so far.
type Stats struct {
	Chunks       uint64
	Bytes        uint64
	Fragments    uint64
	DroppedMdats uint64
	UnknownBoxes uint64
	Anomalies    uint64
}

// Payloader reassembles fragments (ftyp + moov + moof + mdat) from a stream of boxes delivered in arbitrary chunks.
type Payloader struct {
	cfg  v1alpha1.Payloader
	log  *zap.SugaredLogger
	sink Sink

	mtx   sync.Mutex
	boxes *mp4.BoxBuffer
	state fragmentState
	stats Stats
}

type fragmentState struct {
	ftyp *mp4.Box
	moov *mp4.Box
	moof *mp4.Box
	meta Metadata

	initSent bool

	// only maintained if validation is enabled
	moovBox       *mp4ff.MoovBox
	fragInfo      *mp4.FragmentInfo
	lastSeqNumber uint32
}

func newFragmentState() fragmentState {
	return fragmentState{
		meta: NewMetadata(),
	}
}

// New creates a payloader that pushes assembled fragments to sink. log may be nil.
func New(cfg v1alpha1.Payloader, sink Sink, log *zap.SugaredLogger) (*Payloader, error) {
	if cfg.MaxBoxSize == 0 {
		cfg.MaxBoxSize = DefaultConfig.MaxBoxSize
	}
	if cfg.MaxBoxSize < mdatHeaderLen {
		return nil, errors.New("payloader: MaxBoxSize invalid")
	}
	switch cfg.InitMode {
	case "":
		cfg.InitMode = DefaultConfig.InitMode
	case InitModeAlways, InitModeSyncPoints:
	default:
		return nil, fmt.Errorf("payloader: InitMode '%s' invalid", cfg.InitMode)
	}
	if sink == nil {
		return nil, errors.New("payloader: no sink")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Payloader{
		cfg:   cfg,
		log:   log,
		sink:  sink,
		boxes: mp4.NewBoxBuffer(uint64(cfg.MaxBoxSize)),
		state: newFragmentState(),
	}, nil
}

func (p *Payloader) Config() v1alpha1.Payloader {
	return p.cfg
}

// Push processes one chunk. At most one fragment per completed mdat box is pushed to the sink before Push returns.
// Errors are fatal for the stream: malformed box framing, an mdat chunk without PTS or an error of the sink.
func (p *Payloader) Push(buf *media.Buffer) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	chunkStart := p.boxes.Position()
	p.boxes.Append(buf.Data)
	chunkEnd := p.boxes.Position()
	p.stats.Chunks++
	p.stats.Bytes += uint64(len(buf.Data))

	for {
		box, ok, err := p.boxes.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		// chunk contributed to the payload of this mdat
		if box.Type == mp4.BoxTypeMdat && chunkStart < box.Offset+box.Size() && chunkEnd > box.Offset+mdatHeaderLen {
			if err = p.mergeMetadata(buf); err != nil {
				return err
			}
		}

		if err = p.handleBox(box); err != nil {
			return err
		}
	}

	// chunk contributed to the payload of an incomplete mdat
	if p.boxes.HasPendingMdat() {
		if err := p.mergeMetadata(buf); err != nil {
			return err
		}
		p.log.Debugw("incomplete mdat box", "buffered", p.boxes.Len(), "pts", p.state.meta.PTS)
	}

	return nil
}

func (p *Payloader) mergeMetadata(buf *media.Buffer) error {
	if err := p.state.meta.Merge(buf); err != nil {
		return fmt.Errorf("chunk at offset %d: %w", buf.Offset, err)
	}
	return nil
}

func (p *Payloader) handleBox(box mp4.Box) error {
	p.log.Debugw("box", "type", box.Name, "size", box.Size(), "offset", box.Offset)

	switch box.Type {
	case mp4.BoxTypeFtyp:
		p.state.ftyp = cache(box)
		p.state.initSent = false

	case mp4.BoxTypeMoov:
		p.state.moov = cache(box)
		p.state.initSent = false
		if p.cfg.Validate {
			p.validateMoov(box)
		}

	case mp4.BoxTypeMoof:
		p.state.moof = cache(box)
		if p.cfg.Validate {
			p.validateMoof(box)
		}

	case mp4.BoxTypeMdat:
		return p.emit(box)

	case mp4.BoxTypeUnknown:
		p.stats.UnknownBoxes++
		p.log.Warnw("dropping unexpected box", "type", box.Name, "size", box.Size(), "offset", box.Offset)
	}

	return nil
}

// cache copies box so that a kept init box does not hold on to the chunk it was extracted from.
func cache(box mp4.Box) *mp4.Box {
	box.Data = bytes.Clone(box.Data)
	return &box
}

func (p *Payloader) emit(mdat mp4.Box) error {
	meta := p.state.meta
	p.state.meta = NewMetadata()

	s := &p.state
	if s.ftyp == nil || s.moov == nil || s.moof == nil {
		p.stats.DroppedMdats++
		p.log.Warnw("dropping mdat box without preceding ftyp, moov and moof boxes",
			"size", mdat.Size(),
			"offset", mdat.Offset,
			"hasFtyp", s.ftyp != nil,
			"hasMoov", s.moov != nil,
			"hasMoof", s.moof != nil,
		)
		return nil
	}

	withInit := p.cfg.InitMode == InitModeAlways || !s.initSent || !meta.Flags.Has(media.FlagDeltaUnit)
	size := len(s.moof.Data) + len(mdat.Data)
	if withInit {
		size += len(s.ftyp.Data) + len(s.moov.Data)
	}

	data := make([]byte, 0, size)
	if withInit {
		data = append(data, s.ftyp.Data...)
		data = append(data, s.moov.Data...)
		s.initSent = true
	}
	data = append(data, s.moof.Data...)
	data = append(data, mdat.Data...)
	out := meta.Apply(media.NewBuffer(data))

	if s.fragInfo != nil && s.fragInfo.Sync == out.Flags.Has(media.FlagDeltaUnit) {
		p.stats.Anomalies++
		p.log.Debugw("sync sample flags of moof disagree with buffer flags",
			"sequenceNumber", s.fragInfo.SequenceNumber,
			"flags", out.Flags,
		)
	}

	p.stats.Fragments++
	p.log.Debugw("push fragment",
		"size", len(out.Data),
		"withInit", withInit,
		"pts", out.PTS,
		"dts", out.DTS,
		"duration", out.Duration,
		"flags", out.Flags,
	)
	return p.sink.Push(out)
}

func (p *Payloader) validateMoov(box mp4.Box) {
	p.state.moovBox = nil
	moov, err := mp4.DecodeMoov(box)
	if err == nil {
		err = mp4.CheckMoovCMAF(moov)
	}
	if err != nil {
		p.stats.Anomalies++
		p.log.Warnw("invalid moov box", "offset", box.Offset, "error", err)
		return
	}
	p.state.moovBox = moov
}

func (p *Payloader) validateMoof(box mp4.Box) {
	p.state.fragInfo = nil
	moof, err := mp4.DecodeMoof(box)
	if err != nil {
		p.stats.Anomalies++
		p.log.Warnw("invalid moof box", "offset", box.Offset, "error", err)
		return
	}
	info, err := mp4.InspectMoof(p.state.moovBox, moof)
	if err != nil {
		p.stats.Anomalies++
		p.log.Warnw("invalid moof box", "offset", box.Offset, "error", err)
		return
	}

	// sequence numbers usually start at 1; lastSeqNumber is 0 initially so we don't report a gap at the beginning
	if p.state.lastSeqNumber != 0 && info.SequenceNumber != p.state.lastSeqNumber+1 {
		p.stats.Anomalies++
		p.log.Warnw("missed fragment", "sequenceNumber", info.SequenceNumber, "lastSequenceNumber", p.state.lastSeqNumber)
	}
	p.state.lastSeqNumber = info.SequenceNumber
	p.state.fragInfo = &info
}

// Buffered returns the number of bytes of incomplete boxes.
func (p *Payloader) Buffered() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.boxes.Len()
}

func (p *Payloader) Stats() Stats {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.stats
}

// Reset discards incomplete boxes, cached boxes and aggregated metadata. It returns the number of discarded bytes.
func (p *Payloader) Reset() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	n := p.boxes.Len()
	p.boxes.Reset()
	p.state = newFragmentState()
	return n
}
