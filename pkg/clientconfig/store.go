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

package clientconfig

import (
	"errors"
	"fmt"
	"os"

	"github.com/lightbitslabs/nvmf-compliance/pkg/collections"
	"gopkg.in/yaml.v3"
)

// Targets is the YAML store of the connections the harness runs against.
type Targets struct {
	Targets []*ConnectionConfig `yaml:"targets"`
}

// LoadTargets reads the store at filename, a missing file is an empty store.
func LoadTargets(filename string) (*Targets, error) {
	targets := &Targets{}
	data, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return targets, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, targets); err != nil {
		return nil, &ParserError{Msg: "bad targets file", Details: filename, Err: err}
	}
	for _, c := range targets.Targets {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return targets, nil
}

// Save writes the store to filename atomically.
func (t *Targets) Save(filename string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filename, data); err != nil {
		return fmt.Errorf("failed to write targets to %s: %w", filename, err)
	}
	return nil
}

// Add appends the configurations not already present and returns how many
// were added.
func (t *Targets) Add(configs ...*ConnectionConfig) (int, error) {
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return 0, err
		}
	}
	added := collections.Difference(collections.Unique(configs, (*ConnectionConfig).Key), t.Targets, (*ConnectionConfig).Key)
	t.Targets = append(t.Targets, added...)
	return len(added), nil
}

// Remove drops every target of subsystem subsysnqn and returns how many were
// removed.
func (t *Targets) Remove(subsysnqn string) int {
	before := len(t.Targets)
	t.Targets = collections.Filter(t.Targets, func(c *ConnectionConfig) bool {
		return c.Subsysnqn != subsysnqn
	})
	return before - len(t.Targets)
}

// Find returns the targets of subsystem subsysnqn, all of them when it is
// empty.
func (t *Targets) Find(subsysnqn string) []*ConnectionConfig {
	if subsysnqn == "" {
		return t.Targets
	}
	return collections.Filter(t.Targets, func(c *ConnectionConfig) bool {
		return c.Subsysnqn == subsysnqn
	})
}
