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

package mp4

import (
	"bytes"
	"errors"
	"fmt"

	mp4ff "github.com/edgeware/mp4ff/mp4"
)

var (
	ErrNotACMAFHeader = errors.New("not a CMAF header")
	ErrNotACMAFChunk  = errors.New("not a CMAF chunk")
)

func DecodeMoov(box Box) (*mp4ff.MoovBox, error) {
	if box.Type != BoxTypeMoov {
		return nil, fmt.Errorf("expected moov box, got %s", box.Name)
	}
	b, err := mp4ff.DecodeBox(box.Offset, bytes.NewReader(box.Data))
	if err != nil {
		return nil, err
	}
	moov, ok := b.(*mp4ff.MoovBox)
	if !ok {
		return nil, ErrNotACMAFHeader
	}
	return moov, nil
}

func DecodeMoof(box Box) (*mp4ff.MoofBox, error) {
	if box.Type != BoxTypeMoof {
		return nil, fmt.Errorf("expected moof box, got %s", box.Name)
	}
	b, err := mp4ff.DecodeBox(box.Offset, bytes.NewReader(box.Data))
	if err != nil {
		return nil, err
	}
	moof, ok := b.(*mp4ff.MoofBox)
	if !ok {
		return nil, ErrNotACMAFChunk
	}
	return moof, nil
}

func CheckMoovCMAF(moov *mp4ff.MoovBox) error {
	// TODO: check sample entries once fragments of more than one track are supported
	if moov.Mvhd == nil {
		return ErrNotACMAFHeader
	}
	if len(moov.Traks) != 1 {
		return ErrNotACMAFHeader
	}
	if moov.Mvex == nil {
		return ErrNotACMAFHeader
	}
	return nil
}

func CheckMoofCMAF(moof *mp4ff.MoofBox) error {
	if moof.Mfhd == nil {
		return ErrNotACMAFChunk
	}
	if len(moof.Trafs) != 1 {
		return ErrNotACMAFChunk
	}
	return CheckTrafCMAF(moof.Traf)
}

func CheckTrafCMAF(traf *mp4ff.TrafBox) error {
	if traf.Tfhd == nil {
		return ErrNotACMAFChunk
	}
	if traf.Tfdt == nil {
		return ErrNotACMAFChunk
	}
	if traf.Trun == nil {
		return ErrNotACMAFChunk
	}
	return nil
}

// FragmentInfo summarizes the sample layout of a moof box.
type FragmentInfo struct {
	SequenceNumber      uint32
	BaseMediaDecodeTime uint64
	SampleCount         uint32
	// Duration in track timescale.
	Duration uint64
	Sync     bool
}

// InspectMoof summarizes moof. moov may be nil; it is needed to resolve default sample flags.
func InspectMoof(moov *mp4ff.MoovBox, moof *mp4ff.MoofBox) (FragmentInfo, error) {
	if err := CheckMoofCMAF(moof); err != nil {
		return FragmentInfo{}, err
	}

	info := FragmentInfo{
		SequenceNumber:      moof.Mfhd.SequenceNumber,
		BaseMediaDecodeTime: moof.Traf.Tfdt.BaseMediaDecodeTime,
		SampleCount:         moof.Traf.Trun.SampleCount(),
		Duration:            Duration(moof),
	}

	flags, err := FirstSampleFlags(moov, moof)
	if err != nil {
		return info, err
	}
	info.Sync = mp4ff.IsSyncSampleFlags(flags)

	return info, nil
}

// Duration of all samples in moof in track timescale.
func Duration(moof *mp4ff.MoofBox) uint64 {
	total := uint64(0)

	if traf := moof.Traf; traf != nil {
		if trun := traf.Trun; trun != nil {
			if tfhd := traf.Tfhd; tfhd != nil {

				// default sample duration
				if tfhd.HasDefaultSampleDuration() && !trun.HasSampleDuration() {
					return uint64(tfhd.DefaultSampleDuration) * uint64(trun.SampleCount())
				}

				// add duration of all samples
				for _, s := range trun.Samples {
					total += uint64(s.Dur)
				}
			}
		}
	}

	return total
}
