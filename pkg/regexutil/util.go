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

package regexutil

import "regexp"

// ParamsMap maps the named groups of a pattern to what they matched.
type ParamsMap map[string]string

// RepeatedParamsMap holds one ParamsMap per match, keyed by match index.
type RepeatedParamsMap map[int]ParamsMap

func paramsOf(pattern *regexp.Regexp, match []string) ParamsMap {
	params := make(ParamsMap)
	for i, name := range pattern.SubexpNames() {
		if i == 0 || name == "" || i >= len(match) {
			continue
		}
		params[name] = match[i]
	}
	return params
}

// GetRepeatedParams returns the named groups of every non overlapping match
// of pattern in input.
func GetRepeatedParams(pattern *regexp.Regexp, input string) RepeatedParamsMap {
	paramsMap := make(RepeatedParamsMap)
	for submatchIndex, match := range pattern.FindAllStringSubmatch(input, -1) {
		paramsMap[submatchIndex] = paramsOf(pattern, match)
	}
	return paramsMap
}

// GetParams returns the named groups of the first match of pattern in input.
// The map is empty when nothing matched.
func GetParams(pattern *regexp.Regexp, input string) ParamsMap {
	match := pattern.FindStringSubmatch(input)
	if match == nil {
		return make(ParamsMap)
	}
	return paramsOf(pattern, match)
}

// GetParam returns the value of a single named group of the first match.
func GetParam(pattern *regexp.Regexp, input string, name string) (string, bool) {
	value, ok := GetParams(pattern, input)[name]
	return value, ok
}
