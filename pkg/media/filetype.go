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

package media

import (
	"strings"
)

type FileType uint16

const (
	UnknownFileType               FileType = iota
	SegmentFileType                        // generic fmp4 segment (can be media or initialization)
	InitializationSegmentFileType          // specific fmp4 segment containing ftyp and moov
	MediaSegmentFileType                   // specific fmp4 segment containing moof and mdat
)

var (
	extToFileType = map[string]FileType{
		".cmfv":   SegmentFileType,
		".cmfa":   SegmentFileType,
		".cmft":   SegmentFileType,
		".cmfm":   SegmentFileType,
		".mp4":    SegmentFileType,
		".m4v":    SegmentFileType,
		".m4a":    SegmentFileType,
		".m4s":    MediaSegmentFileType,
		".init":   InitializationSegmentFileType,
		".header": InitializationSegmentFileType,
		".cmfi":   InitializationSegmentFileType,
	}
)

// FileTypeExt returns the file type for the extension ext including the leading dot. Case is ignored.
func FileTypeExt(ext string) FileType {
	if ft, ok := extToFileType[strings.ToLower(ext)]; ok {
		return ft
	}
	return UnknownFileType
}

func IsSegment(ft FileType) bool {
	switch ft {
	case SegmentFileType, InitializationSegmentFileType, MediaSegmentFileType:
		return true
	}
	return false
}
