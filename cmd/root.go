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
	"path"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lightbitslabs/nvmf-compliance/model"
	"github.com/lightbitslabs/nvmf-compliance/pkg/docutils"
	"github.com/lightbitslabs/nvmf-compliance/pkg/logging"
)

var (
	applicationName string
	cfgFile         string
	appConfig       *model.AppConfig
)

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viperLoadConfig(cfgFile)
}

func init() {
	applicationName = path.Base(os.Args[0])
}

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nvmf-compliance",
		Short: "NVMe/NVMe-oF command encoding and compliance harness",
		Long: `Builds bit exact NVMe submission entries, decodes completions and
controller registers, and drives them through nvme-cli or an in memory
controller.`,
		DisableAutoGenTag: true,
		PersistentPreRunE: setupCmdFunc,
	}
	cmd.AddCommand(
		docutils.NewGenCmd(applicationName),
		newEncodeCmd(),
		newDecodeCmd(),
		newPassthruCmd(),
		newDiscoverCmd(),
		newConnectCmd(),
		newConnectAllCmd(),
		newDisconnectCmd(),
		newDisconnectAllCmd(),
		newListCmd(),
		newTargetsCmd(),
		newWatchCmd(),
		newSelftestCmd(),
	)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./etc/nvmf-compliance/nvmf-compliance.yaml)")
	cmd.MarkFlagFilename("config", "yaml", "yml")

	cmd.PersistentFlags().StringP("output", "o", string(Human), "output format: human, json or yaml")
	viper.BindPFlag("output", cmd.PersistentFlags().Lookup("output"))

	cmd.PersistentFlags().String("log-level", "", "one of trace, debug, info, warn, error")
	viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))

	return cmd
}

func setupCmdFunc(cmd *cobra.Command, args []string) error {
	var err error
	if appConfig, err = model.LoadFromViper(); err != nil {
		return err
	}
	if _, err := outputFormat(); err != nil {
		return err
	}
	return logging.SetupLogging(appConfig.Logging)
}

// Execute adds all child commands to the root command sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	defer func() {
		if err := recover(); err != nil {
			logrus.Errorf("start got panic: %s\n%s", err, debug.Stack())
			os.Exit(-2)
		}
	}()

	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(-1)
	}
}

func viperLoadConfig(configFile string) {
	viper.AutomaticEnv() // read in environment variables that match
	viper.SetEnvPrefix("nvmfc")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	if configFile != "" { // enable ability to specify config file via flag
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("nvmf-compliance")       // name of config file (without extension)
		viper.AddConfigPath("./etc/nvmf-compliance") // adding local directory as first search path
		viper.AddConfigPath("/etc/nvmf-compliance/")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
}
