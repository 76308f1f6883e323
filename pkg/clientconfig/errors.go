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

import "fmt"

// ParserError reports a connection description that cannot be used.
type ParserError struct {
	Msg     string
	Details string
	Err     error
}

func (e *ParserError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s", e.Msg, e.Details)
	}
	return e.Msg
}

func (e *ParserError) Unwrap() error {
	return e.Err
}
