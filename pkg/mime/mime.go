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

// Package mime maps file extensions of written files to media types.
package mime

import (
	"strings"
)

const (
	ApplicationJSONLines   = "application/jsonl"
	ApplicationMP4         = "application/mp4"
	ApplicationOctetStream = "application/octet-stream"
	AudioMP4               = "audio/mp4"
	VideoISOSegment        = "video/iso.segment"
	VideoMP4               = "video/mp4"
)

var (
	extToTypes = map[string][]string{
		".cmfa":   {AudioMP4},
		".cmfm":   {ApplicationMP4},
		".cmft":   {ApplicationMP4},
		".cmfv":   {VideoMP4},
		".header": {VideoMP4},
		".init":   {VideoMP4},
		".jsonl":  {ApplicationJSONLines},
		".m4a":    {AudioMP4},
		".m4s":    {VideoISOSegment},
		".m4v":    {VideoMP4},
		".mp4":    {VideoMP4, ApplicationMP4},
	}
)

func TypesExt(ext string) []string {
	return extToTypes[strings.ToLower(ext)]
}

// PreferredTypeExt returns the preferred media type for ext or application/octet-stream if ext is unknown.
func PreferredTypeExt(ext string) string {
	if ts := TypesExt(ext); len(ts) > 0 {
		return ts[0]
	}
	return ApplicationOctetStream
}

func MatchExt(t string, ext string) bool {
	for _, match := range TypesExt(ext) {
		if t == match {
			return true
		}
	}
	return false
}
