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
	"context"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lightbitslabs/nvmf-compliance/model"
	"github.com/lightbitslabs/nvmf-compliance/pkg/clientconfig"
	"github.com/lightbitslabs/nvmf-compliance/service"
)

func newWatchCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "watch",
		Short: "Keep the host connected to the targets of the conf files directory",
		Long: `Watch the targets directory and connect every target its conf files list.
Targets removed from the files are disconnected, failed connects are retried.`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE:              watchCmdFunc,
	}

	cmd.Flags().String("logging.filename", "", "filename to write log to")
	viper.BindPFlag("logging.filename", cmd.Flags().Lookup("logging.filename"))
	cmd.MarkFlagFilename("logging.filename", "log")

	cmd.Flags().Duration("logging.maxAge", 96*time.Hour, "Time to wait until old logs are purged")
	viper.BindPFlag("logging.maxAge", cmd.Flags().Lookup("logging.maxAge"))

	cmd.Flags().Int("logging.maxSize", 100, "Maximum size in megabytes of the log file before it gets rotated")
	viper.BindPFlag("logging.maxSize", cmd.Flags().Lookup("logging.maxSize"))

	cmd.Flags().String("debug.endpoint", "", "ip:port to expose debug and metric information")
	viper.BindPFlag("debug.endpoint", cmd.Flags().Lookup("debug.endpoint"))

	cmd.Flags().Bool("debug.enablepprof", true, "Enable runtime profiling data via HTTP server. http://<endpoint>/debug/pprof/")
	viper.BindPFlag("debug.enablepprof", cmd.Flags().Lookup("debug.enablepprof"))

	cmd.Flags().Bool("debug.metrics", true, "Expose prometheus metrics on http://<endpoint>/metrics")
	viper.BindPFlag("debug.metrics", cmd.Flags().Lookup("debug.metrics"))

	cmd.Flags().String("targetsDir", "", "Directory of conf files to watch")
	viper.BindPFlag("targetsDir", cmd.Flags().Lookup("targetsDir"))

	cmd.Flags().Duration("reconnectInterval", 0, "Interval between connect retries of failed targets")
	viper.BindPFlag("reconnectInterval", cmd.Flags().Lookup("reconnectInterval"))

	return cmd
}

func debugServer(cfg model.DebugConfig) *http.Server {
	mux := http.NewServeMux()
	if cfg.Metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	if cfg.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return &http.Server{Addr: cfg.Endpoint, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}

func watchCmdFunc(cmd *cobra.Command, args []string) error {
	logrus.Infof("******************** %s watch started ********************", os.Args[0])
	if err := os.MkdirAll(appConfig.TargetsDir, 0755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(appConfig.Debug.Endpoint) > 0 {
		srv := debugServer(appConfig.Debug)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logrus.WithError(err).Errorf("debug server on %s failed", appConfig.Debug.Endpoint)
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	cache := clientconfig.NewCache(ctx, appConfig.TargetsDir)
	s := service.NewService(ctx, cache, newClient(), appConfig.ReconnectInterval)
	if err := s.Start(); err != nil {
		logrus.WithError(err).Errorf("failed to start watching %s", appConfig.TargetsDir)
		return err
	}
	<-ctx.Done()
	logrus.Info("stopping")
	return s.Stop()
}
