// Copyright 2016--2022 Lightbits Labs Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// you may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigIsValid(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty", cfg: Config{}},
		{name: "debug", cfg: Config{Level: "debug"}},
		{name: "warning", cfg: Config{Level: "warning", MaxSize: 10}},
		{name: "unknown level", cfg: Config{Level: "verbose"}, wantErr: true},
		{name: "negative size", cfg: Config{MaxSize: -1}, wantErr: true},
		{name: "negative age", cfg: Config{MaxAge: -time.Hour}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.IsValid()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMaxAgeDays(t *testing.T) {
	assert.Equal(t, 0, maxAgeDays(0))
	assert.Equal(t, 1, maxAgeDays(time.Hour))
	assert.Equal(t, 7, maxAgeDays(7*24*time.Hour+time.Minute))
}
