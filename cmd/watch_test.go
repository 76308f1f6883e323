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

package cmd

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lightbitslabs/nvmf-compliance/model"
)

func TestDebugServerRoutes(t *testing.T) {
	tests := []struct {
		name    string
		cfg     model.DebugConfig
		metrics int
		pprof   int
	}{
		{name: "all", cfg: model.DebugConfig{Metrics: true, EnablePprof: true}, metrics: http.StatusOK, pprof: http.StatusOK},
		{name: "metrics only", cfg: model.DebugConfig{Metrics: true}, metrics: http.StatusOK, pprof: http.StatusNotFound},
		{name: "none", cfg: model.DebugConfig{}, metrics: http.StatusNotFound, pprof: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := debugServer(tt.cfg)
			for path, want := range map[string]int{"/metrics": tt.metrics, "/debug/pprof/": tt.pprof} {
				rec := httptest.NewRecorder()
				srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
				assert.Equal(t, want, rec.Code, path)
			}
		})
	}
}
