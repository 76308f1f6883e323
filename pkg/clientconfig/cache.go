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
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lightbitslabs/nvmf-compliance/pkg/collections"
	"github.com/sirupsen/logrus"
)

// Cache keeps the connections described by the conf files of a directory
// and publishes the merged list whenever one of the files changes.
type Cache interface {
	// Run loads the files present now and starts watching the directory.
	Run() error
	// Connections delivers the latest merged list after every change. Only
	// the most recent list is kept when nobody reads.
	Connections() <-chan []*ConnectionConfig
	Entries() []*ConnectionConfig
	Stop()
}

type cache struct {
	ctx             context.Context
	cancel          context.CancelFunc
	dir             string
	mu              sync.Mutex
	files           map[string][]*ConnectionConfig
	connectionsChan chan []*ConnectionConfig
	watcher         FileWatcher
	wg              sync.WaitGroup
}

func NewCache(ctx context.Context, dir string) Cache {
	ctx, cancel := context.WithCancel(ctx)
	return &cache{
		ctx:             ctx,
		cancel:          cancel,
		dir:             dir,
		files:           make(map[string][]*ConnectionConfig),
		connectionsChan: make(chan []*ConnectionConfig, 1),
	}
}

func (c *cache) Connections() <-chan []*ConnectionConfig {
	return c.connectionsChan
}

func ignored(filename string) bool {
	return strings.HasPrefix(filepath.Base(filename), ".")
}

func (c *cache) Run() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || ignored(entry.Name()) {
			continue
		}
		c.fileChanged(filepath.Join(c.dir, entry.Name()))
	}

	events, err := c.watcher.Watch(c.ctx, c.dir)
	if err != nil {
		return err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for event := range events {
			if ignored(event.Name) {
				continue
			}
			changed := false
			switch event.Op {
			case Create, Modify:
				changed = c.fileChanged(event.Name)
			case Remove, Rename:
				changed = c.fileRemoved(event.Name)
			}
			if changed {
				c.notify(c.Entries())
			}
		}
	}()
	return nil
}

func (c *cache) notify(configs []*ConnectionConfig) {
	// drop the list nobody read
	select {
	case <-c.connectionsChan:
	default:
	}
	c.connectionsChan <- configs
}

func (c *cache) fileChanged(filename string) bool {
	configs, err := ParseConfFile(filename)
	if err != nil {
		logrus.WithError(err).Warnf("failed to parse %s, keeping previous entries", filename)
		return false
	}
	c.mu.Lock()
	c.files[filename] = configs
	c.mu.Unlock()
	logrus.Debugf("loaded %d connections from %s", len(configs), filename)
	return true
}

func (c *cache) fileRemoved(filename string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.files[filename]; !ok {
		return false
	}
	delete(c.files, filename)
	return true
}

// Entries returns the connections of all files without duplicates, in file
// name order.
func (c *cache) Entries() []*ConnectionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.files))
	for name := range c.files {
		names = append(names, name)
	}
	sort.Strings(names)
	var all []*ConnectionConfig
	for _, name := range names {
		all = append(all, c.files[name]...)
	}
	return collections.Unique(all, (*ConnectionConfig).Key)
}

func (c *cache) Stop() {
	c.cancel()
	c.wg.Wait()
}
