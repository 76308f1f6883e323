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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type OutputFormat string

const (
	Human OutputFormat = "human"
	JSON  OutputFormat = "json"
	YAML  OutputFormat = "yaml"
)

var out io.Writer = os.Stdout

// tabular values print as a table in human output.
type tabular interface {
	Headers() []string
	Rows() [][]string
}

// table is an ad hoc tabular value.
type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) add(row ...string) {
	t.rows = append(t.rows, row)
}

func (t *table) Headers() []string { return t.headers }
func (t *table) Rows() [][]string  { return t.rows }

func outputFormat() (OutputFormat, error) {
	format := OutputFormat(viper.GetString("output"))
	switch format {
	case "":
		return Human, nil
	case Human, JSON, YAML:
		return format, nil
	}
	return "", fmt.Errorf("unknown output format %q", format)
}

func currentFormat() OutputFormat {
	format, err := outputFormat()
	if err != nil {
		return Human
	}
	return format
}

func printTable(w io.Writer, data tabular) {
	t := tablewriter.NewWriter(w)
	t.SetHeader(data.Headers())
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(true)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator("")
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	t.AppendBulk(data.Rows())
	t.Render()
}

func print(v interface{}, format OutputFormat) error {
	switch format {
	case JSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case YAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		switch value := v.(type) {
		case tabular:
			printTable(out, value)
		case fmt.Stringer:
			fmt.Fprintln(out, value.String())
		case string:
			fmt.Fprintln(out, value)
		default:
			return print(v, YAML)
		}
	}
	return nil
}
