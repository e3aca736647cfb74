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

package uuid

import (
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
)

const shortLen = 8

func init() {
	// session IDs are not sensitive
	uuid.EnableRandPool()
}

// New returns a random (version 4) UUID. It falls back to fiber's generator if reading randomness fails.
func New() string {
	token, err := uuid.NewRandom()
	if err != nil {
		return utils.UUID()
	}
	return token.String()
}

// Short returns the first block of id for use in file names and log output.
func Short(id string) string {
	if len(id) < shortLen {
		return id
	}
	return id[:shortLen]
}

// IsValid reports whether s is a UUID in canonical form.
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}
