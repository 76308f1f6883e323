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

package metrics

import "github.com/prometheus/client_golang/prometheus"

// AppMetrics a collection of metrics the harness exposes
type AppMetrics struct {
	// CommandsTotal counts completed commands per executor, opcode name and status name.
	CommandsTotal *prometheus.CounterVec
	// CommandDurationSeconds time from submission until the completion was polled.
	CommandDurationSeconds *prometheus.HistogramVec
	// InflightCommands shows how many submitted commands were not completed yet.
	InflightCommands *prometheus.GaugeVec
	// StatusDecodeFailuresTotal counts responses whose status could not be decoded.
	StatusDecodeFailuresTotal *prometheus.CounterVec
	// ConnectAttemptsTotal counts fabrics connect attempts per transport and result.
	ConnectAttemptsTotal *prometheus.CounterVec
}

var Metrics AppMetrics

func init() {
	Metrics.CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nvmf",
			Name:      "commands_total",
			Help:      "Number of commands completed per executor, opcode and status.",
		},
		[]string{"executor", "opcode", "status"},
	)
	Metrics.CommandDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nvmf",
			Name:      "command_duration_seconds",
			Help:      "Time it took a command to complete.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"executor", "opcode"},
	)
	Metrics.InflightCommands = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nvmf",
			Name:      "inflight_commands",
			Help:      "Number of submitted commands waiting for a completion.",
		},
		[]string{"executor"},
	)
	Metrics.StatusDecodeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nvmf",
			Name:      "status_decode_failures_total",
			Help:      "Number of responses whose status could not be decoded.",
		},
		[]string{"source"},
	)
	Metrics.ConnectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nvmf",
			Name:      "connect_attempts_total",
			Help:      "Number of connect attempts per transport and result.",
		},
		[]string{"transport", "result"},
	)

	// Metrics have to be registered to be exposed:
	prometheus.MustRegister(Metrics.CommandsTotal)
	prometheus.MustRegister(Metrics.CommandDurationSeconds)
	prometheus.MustRegister(Metrics.InflightCommands)
	prometheus.MustRegister(Metrics.StatusDecodeFailuresTotal)
	prometheus.MustRegister(Metrics.ConnectAttemptsTotal)
}
