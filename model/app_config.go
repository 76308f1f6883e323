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

package model

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/lightbitslabs/nvmf-compliance/pkg/logging"
	"github.com/lightbitslabs/nvmf-compliance/pkg/mockctrl"
)

// DebugConfig controls the debug HTTP endpoint of long running commands.
type DebugConfig struct {
	// Endpoint is the listen address of the debug server. Empty disables it.
	Endpoint    string `yaml:"endpoint,omitempty" mapstructure:"endpoint" validate:"omitempty,hostname_port"`
	EnablePprof bool   `yaml:"enablepprof" mapstructure:"enablepprof"`
	Metrics     bool   `yaml:"metrics" mapstructure:"metrics"`
}

type AppConfig struct {
	Logging logging.Config `yaml:"logging,omitempty" mapstructure:"logging"`
	Debug   DebugConfig    `yaml:"debug,omitempty" mapstructure:"debug"`
	// Binary is the nvme-cli executable.
	Binary string `yaml:"binary" mapstructure:"binary" validate:"required"`
	// TargetsFile stores the targets managed by the targets commands.
	TargetsFile string `yaml:"targetsFile" mapstructure:"targetsFile" validate:"required"`
	// TargetsDir is the directory of conf files the watch command follows.
	TargetsDir        string        `yaml:"targetsDir" mapstructure:"targetsDir" validate:"required"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	ReconnectInterval time.Duration `yaml:"reconnectInterval" mapstructure:"reconnectInterval" validate:"gt=0"`
	ConnectAttempts   uint          `yaml:"connectAttempts" mapstructure:"connectAttempts" validate:"gte=1"`
	ConnectDelay      time.Duration `yaml:"connectDelay" mapstructure:"connectDelay" validate:"gte=0"`
	// Mock is the controller the selftest command runs against.
	Mock mockctrl.Config `yaml:"mock,omitempty" mapstructure:"mock" validate:"-"`
}

var validate = validator.New()

// SetDefaults registers the defaults of every AppConfig key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("debug.enablepprof", true)
	v.SetDefault("debug.metrics", true)
	v.SetDefault("binary", "nvme")
	v.SetDefault("targetsFile", "/etc/nvmf-compliance/targets.yaml")
	v.SetDefault("targetsDir", "/etc/nvmf-compliance/targets.d")
	v.SetDefault("timeout", "30s")
	v.SetDefault("reconnectInterval", "5s")
	v.SetDefault("connectAttempts", 3)
	v.SetDefault("connectDelay", "500ms")
	v.SetDefault("mock.subsysnqn", "nqn.2016-01.com.lightbitslabs:uuid:selftest")
	v.SetDefault("mock.namespaces", []map[string]interface{}{
		{"id": 1, "blockSize": 512, "blocks": 2048},
	})
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*AppConfig, error) {
	appConfig := &AppConfig{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           appConfig,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	if err := validate.Struct(appConfig); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if err := appConfig.Logging.IsValid(); err != nil {
		return nil, err
	}
	return appConfig, nil
}

// LoadFromViper loads the configuration of the global viper instance.
func LoadFromViper() (*AppConfig, error) {
	SetDefaults(viper.GetViper())
	return Load(viper.GetViper())
}
