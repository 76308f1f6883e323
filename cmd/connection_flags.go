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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lightbitslabs/nvmf-compliance/pkg/clientconfig"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvmeclient"
)

const defaultHostNQNFile = "/etc/nvme/hostnqn"

// addConnectionFlags adds the nvme-cli style fabrics flags of a command and
// binds them to "<name>.<flag>".
func addConnectionFlags(cmd *cobra.Command, name string, trsvcid int, subsysnqn string) {
	bind := func(flag string) {
		viper.BindPFlag(name+"."+flag, cmd.Flags().Lookup(flag))
	}

	cmd.Flags().StringP("transport", "t", "tcp", "trtype: tcp, rdma or fc")
	bind("transport")
	cmd.Flags().StringP("traddr", "a", "", "transport address")
	bind("traddr")
	cmd.Flags().IntP("trsvcid", "s", trsvcid, "transport service id")
	bind("trsvcid")
	cmd.Flags().StringP("nqn", "n", subsysnqn, "subsystem nqn")
	bind("nqn")
	cmd.Flags().StringP("hostnqn", "q", "", fmt.Sprintf("host nqn (default read from %s)", defaultHostNQNFile))
	bind("hostnqn")
	cmd.Flags().StringP("hostid", "I", "", "host identifier (uuid)")
	bind("hostid")
	cmd.Flags().StringP("host-traddr", "w", "", "host transport address")
	bind("host-traddr")
	cmd.Flags().StringP("dhchap-secret", "S", "", "DH-HMAC-CHAP host secret")
	bind("dhchap-secret")
	cmd.Flags().StringP("dhchap-ctrl-secret", "C", "", "DH-HMAC-CHAP controller secret")
	bind("dhchap-ctrl-secret")
	cmd.Flags().IntP("keep-alive-tmo", "k", 0, "keep alive timeout in seconds")
	bind("keep-alive-tmo")
	cmd.Flags().IntP("nr-io-queues", "i", 0, "number of io queues")
	bind("nr-io-queues")
	cmd.Flags().IntP("queue-size", "Q", 0, "io queue size")
	bind("queue-size")
	cmd.Flags().BoolP("duplicate-connect", "D", false, "allow duplicate connections to the same subsystem")
	bind("duplicate-connect")
	cmd.Flags().Bool("disable-sqflow", false, "disable controller sq flow control")
	bind("disable-sqflow")
	cmd.Flags().BoolP("persistent", "p", false, "persistent discovery connection")
	bind("persistent")
}

func hostNQN(value string) (string, error) {
	if len(value) > 0 {
		return value, nil
	}
	data, err := os.ReadFile(defaultHostNQNFile)
	if err != nil {
		return "", fmt.Errorf("hostnqn(-q) must be set: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// connectionFromFlags builds the connection bound by addConnectionFlags.
func connectionFromFlags(name string) (*clientconfig.ConnectionConfig, error) {
	key := func(flag string) string { return name + "." + flag }
	if len(viper.GetString(key("traddr"))) == 0 {
		return nil, fmt.Errorf("traddr(-a) must be set")
	}
	hostnqn, err := hostNQN(viper.GetString(key("hostnqn")))
	if err != nil {
		return nil, err
	}
	cfg := &clientconfig.ConnectionConfig{
		Transport:        viper.GetString(key("transport")),
		Traddr:           viper.GetString(key("traddr")),
		Trsvcid:          viper.GetInt(key("trsvcid")),
		Subsysnqn:        viper.GetString(key("nqn")),
		Hostnqn:          hostnqn,
		Hostid:           viper.GetString(key("hostid")),
		HostTraddr:       viper.GetString(key("host-traddr")),
		DHChapHostSecret: viper.GetString(key("dhchap-secret")),
		DHChapCtrlSecret: viper.GetString(key("dhchap-ctrl-secret")),
		Kato:             secondsDuration(viper.GetInt(key("keep-alive-tmo"))),
		NrIOQueues:       viper.GetInt(key("nr-io-queues")),
		QueueSize:        viper.GetInt(key("queue-size")),
		Duplicate:        viper.GetBool(key("duplicate-connect")),
		DisableSQFlow:    viper.GetBool(key("disable-sqflow")),
		Persistent:       viper.GetBool(key("persistent")),
	}
	if len(cfg.Subsysnqn) == 0 {
		return nil, fmt.Errorf("nqn(-n) must be set")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func secondsDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func newClient() *nvmeclient.Client {
	client := nvmeclient.New(appConfig.Binary, &nvmeclient.ExecRunner{})
	client.ConnectAttempts = appConfig.ConnectAttempts
	client.ConnectDelay = appConfig.ConnectDelay
	return client
}
