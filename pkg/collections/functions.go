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

package collections

// Filter returns a new slice containing all elements of vs that satisfy the predicate f.
func Filter[T any](vs []T, f func(T) bool) []T {
	vsf := make([]T, 0, len(vs))
	for _, v := range vs {
		if f(v) {
			vsf = append(vsf, v)
		}
	}
	return vsf
}

// Any returns true if one of the elements satisfies the predicate f.
func Any[T any](vs []T, f func(T) bool) bool {
	for _, v := range vs {
		if f(v) {
			return true
		}
	}
	return false
}

// Difference returns the elements in `a` whose key isn't the key of an element in `b`.
func Difference[T any, K comparable](a, b []T, key func(T) K) []T {
	mb := make(map[K]struct{}, len(b))
	for _, x := range b {
		mb[key(x)] = struct{}{}
	}
	var diff []T
	for _, x := range a {
		if _, found := mb[key(x)]; !found {
			diff = append(diff, x)
		}
	}
	return diff
}

// Unique returns the distinct elements of vs by key, keeping the first one and the order.
func Unique[T any, K comparable](vs []T, key func(T) K) []T {
	seen := make(map[K]struct{}, len(vs))
	unique := []T{}
	for _, v := range vs {
		k := key(v)
		if _, found := seen[k]; found {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, v)
	}
	return unique
}
