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

package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lightbitslabs/nvmf-compliance/pkg/clientconfig"
	"github.com/lightbitslabs/nvmf-compliance/pkg/collections"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvmeclient"
)

// Connector is the part of the nvme-cli client the service drives.
type Connector interface {
	Connect(ctx context.Context, cfg *clientconfig.ConnectionConfig) (string, error)
	Disconnect(ctx context.Context, target string) (int, error)
}

type Service interface {
	Start() error
	Stop() error
	// Targets reports the state of every target the service follows.
	Targets() []TargetState
}

// TargetState is a target of the watched directory and its connection.
type TargetState struct {
	Config    *clientconfig.ConnectionConfig
	Device    string
	Connected bool
	LastError error
}

type target struct {
	cfg       *clientconfig.ConnectionConfig
	device    string
	connected bool
	lastErr   error
}

type service struct {
	cache             clientconfig.Cache
	connector         Connector
	ctx               context.Context
	cancel            context.CancelFunc
	log               *logrus.Entry
	wg                *sync.WaitGroup
	reconnectInterval time.Duration

	mu      sync.Mutex
	targets map[string]*target
}

// NewService returns a service that keeps the host connected to the targets
// listed in the conf files the cache watches. Targets that fail to connect
// are retried every reconnectInterval.
func NewService(ctx context.Context, cache clientconfig.Cache, connector Connector, reconnectInterval time.Duration) Service {
	s := &service{
		log:               logrus.WithFields(logrus.Fields{"component": "watch"}),
		cache:             cache,
		connector:         connector,
		reconnectInterval: reconnectInterval,
		targets:           make(map[string]*target),
	}
	var wg sync.WaitGroup
	s.wg = &wg
	s.ctx, s.cancel = context.WithCancel(ctx)
	return s
}

// Start loads the current targets, connects them and follows the cache
// until Stop is called.
func (s *service) Start() error {
	if err := s.cache.Run(); err != nil {
		return err
	}
	s.update(s.cache.Entries())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.reconnectInterval)
		defer ticker.Stop()
		for {
			select {
			case configs := <-s.cache.Connections():
				s.log.Debug("received notification on changes in connections")
				s.update(configs)
			case <-ticker.C:
				s.reconnect()
			case <-s.ctx.Done():
				s.log.Infof("exiting the main func ctx done")
				return
			}
		}
	}()
	return nil
}

func (s *service) current() []*clientconfig.ConnectionConfig {
	configs := make([]*clientconfig.ConnectionConfig, 0, len(s.targets))
	for _, t := range s.targets {
		configs = append(configs, t.cfg)
	}
	return configs
}

// update disconnects the targets missing from configs and connects the new
// ones.
func (s *service) update(configs []*clientconfig.ConnectionConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := (*clientconfig.ConnectionConfig).Key
	removed := collections.Difference(s.current(), configs, key)
	added := collections.Difference(configs, s.current(), key)

	for _, cfg := range removed {
		t := s.targets[cfg.Key()]
		delete(s.targets, cfg.Key())
		s.disconnect(t)
	}
	for _, cfg := range added {
		t := &target{cfg: cfg}
		s.targets[cfg.Key()] = t
		s.log.Debugf("added target: %s", cfg)
		s.connect(t)
	}
}

func (s *service) reconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.targets {
		if !t.connected {
			s.connect(t)
		}
	}
}

func (s *service) connect(t *target) {
	log := s.log.WithField("target", t.cfg.Key())
	device, err := s.connector.Connect(s.ctx, t.cfg)
	switch {
	case err == nil:
		t.device, t.connected, t.lastErr = device, true, nil
		log.Infof("connected %s", device)
	case errors.Is(err, nvmeclient.ErrAlreadyConnected):
		t.connected, t.lastErr = true, nil
		log.Info("already connected")
	default:
		t.connected, t.lastErr = false, err
		log.WithError(err).Warnf("connect failed. schedule reconnect in %s", s.reconnectInterval)
	}
}

// disconnect drops the controller of t. Without a known device the whole
// subsystem is disconnected, unless another target still uses it.
func (s *service) disconnect(t *target) {
	if !t.connected {
		return
	}
	log := s.log.WithField("target", t.cfg.Key())
	name := t.device
	if len(name) == 0 {
		shared := collections.Any(s.current(), func(cfg *clientconfig.ConnectionConfig) bool {
			return cfg.Subsysnqn == t.cfg.Subsysnqn
		})
		if shared {
			log.Infof("subsystem %s is still used by other targets, keeping it", t.cfg.Subsysnqn)
			return
		}
		name = t.cfg.Subsysnqn
	}
	// the service context may be gone already when stopping
	if _, err := s.connector.Disconnect(context.Background(), name); err != nil {
		log.WithError(err).Errorf("failed to disconnect %s", name)
		return
	}
	t.connected = false
	log.Infof("disconnected %s", name)
}

func (s *service) Targets() []TargetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make([]TargetState, 0, len(s.targets))
	for _, t := range s.targets {
		states = append(states, TargetState{
			Config:    t.cfg,
			Device:    t.device,
			Connected: t.connected,
			LastError: t.lastErr,
		})
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Config.Key() < states[j].Config.Key()
	})
	return states
}

// Stop disconnects every target the service connected.
func (s *service) Stop() error {
	s.cancel()
	s.wg.Wait()
	s.cache.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.targets {
		delete(s.targets, key)
		s.disconnect(t)
	}
	return nil
}
