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
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// Write to file? if not provided not writing to file
	Filename string `yaml:"filename,omitempty" mapstructure:"filename"`
	// Time to wait until old logs are purged. By default no logs are purged
	MaxAge time.Duration `yaml:"maxAge,omitempty" mapstructure:"maxAge" validate:"gte=0"`
	// MaxSize is the maximum size of the file in MB
	MaxSize int `yaml:"maxSize,omitempty" mapstructure:"maxSize" validate:"gte=0"`
	// Write caller file:line and package.function on log entries
	ReportCaller bool `yaml:"reportCaller,omitempty" mapstructure:"reportCaller"`
	// one of trace, debug, info, warn, warning, error, fatal, panic
	Level string `yaml:"level,omitempty" mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
}

var validate = validator.New()

func (c *Config) IsValid() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	return nil
}

func callerPrettyfier(f *runtime.Frame) (string, string) {
	_, filename := path.Split(f.File)
	return path.Base(f.Function), fmt.Sprintf("%s:%d", filename, f.Line)
}

func setupConsoleLogs(wantedLevel logrus.Level, disableTimeStamp bool) {
	writerMap := lfshook.WriterMap{}
	for level := int(wantedLevel); level > int(logrus.PanicLevel); level-- {
		if logrus.Level(level) > logrus.InfoLevel {
			// debug and trace go to the file only
			continue
		}
		writerMap[logrus.Level(level)] = os.Stdout
	}

	textFormatter := &logrus.TextFormatter{
		DisableColors:    true,
		DisableTimestamp: disableTimeStamp,
		FullTimestamp:    !disableTimeStamp,
		CallerPrettyfier: callerPrettyfier,
	}

	logrus.AddHook(lfshook.NewHook(writerMap, textFormatter))
}

// maxAgeDays converts the retention to the granularity lumberjack works in.
func maxAgeDays(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	days := int(maxAge / (24 * time.Hour))
	if days == 0 {
		return 1
	}
	return days
}

func setupLoggingFile(cfg Config, wantedLevel logrus.Level) {
	if len(cfg.Filename) == 0 {
		return
	}
	textFormatter := &logrus.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		CallerPrettyfier: callerPrettyfier,
	}
	writer := &lumberjack.Logger{
		Filename:  cfg.Filename,
		MaxSize:   cfg.MaxSize,
		Compress:  true,
		MaxAge:    maxAgeDays(cfg.MaxAge),
		LocalTime: false,
	}

	writerMap := lfshook.WriterMap{}
	for level := int(wantedLevel); level > int(logrus.PanicLevel); level-- {
		writerMap[logrus.Level(level)] = writer
	}
	logrus.AddHook(lfshook.NewHook(writerMap, textFormatter))
}

func setup(cfg Config, disableTimeStamp bool) error {
	if err := cfg.IsValid(); err != nil {
		return err
	}
	wantedLevel := logrus.InfoLevel
	if len(cfg.Level) > 0 {
		var err error
		wantedLevel, err = logrus.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
	}

	logrus.SetOutput(io.Discard)
	logrus.SetReportCaller(cfg.ReportCaller)
	logrus.SetLevel(wantedLevel)
	setupConsoleLogs(wantedLevel, disableTimeStamp)
	setupLoggingFile(cfg, wantedLevel)
	return nil
}

func SetupLogging(cfg Config) error {
	return setup(cfg, true)
}

func SetupLoggingWithConsoleTimeStamp(cfg Config) error {
	return setup(cfg, false)
}
