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
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lightbitslabs/nvmf-compliance/pkg/collections"
	"github.com/lightbitslabs/nvmf-compliance/pkg/nvme"
	"github.com/sirupsen/logrus"
)

func trimStringFromHashtag(s string) string {
	if idx := strings.Index(s, "#"); idx != -1 {
		return s[:idx]
	}
	return s
}

// tokenize splits a line on spaces, "--flag=value" yields the flag and the
// value. Values may contain '=' themselves (base64 secrets).
func tokenize(line string) []string {
	var tokens []string
	for _, field := range strings.Fields(line) {
		if strings.HasPrefix(field, "--") {
			if flag, value, found := strings.Cut(field, "="); found {
				tokens = append(tokens, flag, value)
				continue
			}
		}
		tokens = append(tokens, field)
	}
	return tokens
}

// ParseConfLine parses one line of nvme-cli style connection flags, e.g.
// "-t tcp -a 192.168.1.1 -s 4420 -q hostnqn -n subnqn -p".
func ParseConfLine(line string) (*ConnectionConfig, error) {
	c := &ConnectionConfig{}
	s := tokenize(line)
	for i := 0; i < len(s); i++ {
		field := strings.TrimSpace(s[i])
		value := func(what string) (string, error) {
			if i+1 >= len(s) {
				return "", &ParserError{
					Msg:     fmt.Sprintf("bad %s", what),
					Details: fmt.Sprintf("%s requires a value", field),
				}
			}
			i++
			return strings.TrimSpace(s[i]), nil
		}
		number := func(what string) (int, error) {
			v, err := value(what)
			if err != nil {
				return 0, err
			}
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return 0, &ParserError{
					Msg:     fmt.Sprintf("bad %s", what),
					Details: fmt.Sprintf("%s is not a valid int", v),
					Err:     err,
				}
			}
			return int(n), nil
		}

		var err error
		switch field {
		case "-a", "--traddr":
			var v string
			if v, err = value("address"); err != nil {
				break
			}
			if _, lookupErr := nvme.AdjustTraddr(v); lookupErr != nil {
				err = &ParserError{
					Msg:     "bad address",
					Details: fmt.Sprintf("%s is not a valid hostname or IP address", v),
					Err:     lookupErr,
				}
				break
			}
			c.Traddr = v
		case "-t", "--transport":
			var v string
			if v, err = value("transport"); err != nil {
				break
			}
			switch v {
			case "tcp", "rdma", "fc":
				c.Transport = v
			default:
				err = &ParserError{
					Msg:     "bad transport",
					Details: fmt.Sprintf("%s is not a valid transport", v),
				}
			}
		case "-s", "--trsvcid":
			c.Trsvcid, err = number("port")
		case "-q", "--hostnqn":
			c.Hostnqn, err = value("hostnqn")
		case "-n", "--nqn", "--subsysnqn":
			c.Subsysnqn, err = value("subsysnqn")
		case "-I", "--hostid":
			c.Hostid, err = value("hostid")
		case "-w", "--host-traddr":
			c.HostTraddr, err = value("host address")
		case "-k", "--keep-alive-tmo":
			var seconds int
			seconds, err = number("keep alive timeout")
			c.Kato = time.Duration(seconds) * time.Second
		case "-i", "--nr-io-queues":
			c.NrIOQueues, err = number("number of io queues")
		case "-Q", "--queue-size":
			c.QueueSize, err = number("queue size")
		case "-S", "--dhchap-secret":
			c.DHChapHostSecret, err = value("dhchap secret")
		case "-C", "--dhchap-ctrl-secret":
			c.DHChapCtrlSecret, err = value("dhchap controller secret")
		case "-D", "--duplicate-connect":
			c.Duplicate = true
		case "--disable-sqflow":
			c.DisableSQFlow = true
		case "-p", "--persistent":
			c.Persistent = true
		default:
			err = &ParserError{
				Msg:     "unknown flag",
				Details: fmt.Sprintf("%s is not a valid flag", field),
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ParseConf reads connection lines from r. '#' starts a comment, lines that
// parse but miss mandatory fields are skipped, duplicates are dropped.
func ParseConf(r io.Reader) ([]*ConnectionConfig, error) {
	scanner := bufio.NewScanner(r)
	var configs []*ConnectionConfig
	for scanner.Scan() {
		line := strings.TrimSpace(trimStringFromHashtag(scanner.Text()))
		if line == "" {
			continue
		}
		c, err := ParseConfLine(line)
		if err != nil {
			return nil, err
		}
		if err := c.Validate(); err != nil {
			logrus.Warnf("entry: %s not valid. %v", line, err)
			continue
		}
		configs = append(configs, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return collections.Unique(configs, (*ConnectionConfig).Key), nil
}

// ParseConfFile parses the connection lines of filename.
func ParseConfFile(filename string) ([]*ConnectionConfig, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseConf(file)
}
