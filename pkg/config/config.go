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

package config

import (
	"reflect"

	"github.com/inhies/go-bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// UnmarshalExact decodes the configuration read by v into cfg. Unknown keys are rejected.
func UnmarshalExact(v *viper.Viper, cfg any) error {
	return v.UnmarshalExact(cfg, viper.DecodeHook(DecodeHook()))
}

// DecodeHook converts strings to durations, byte sizes and string slices.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		StringToByteSizeHookFunc(),
	)
}

// StringToByteSizeHookFunc converts strings like "4KB" or numbers to bytesize.ByteSize.
func StringToByteSizeHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch f.Kind() {
		case reflect.String:
			return bytesize.Parse(data.(string))
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return bytesize.New(float64(reflect.ValueOf(data).Int())), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return bytesize.New(float64(reflect.ValueOf(data).Uint())), nil
		case reflect.Float32, reflect.Float64:
			return bytesize.New(reflect.ValueOf(data).Float()), nil
		}
		return data, nil
	}
}
