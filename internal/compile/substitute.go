// Copyright 2025 The Flowsmith Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package compile

import (
	"strings"

	"github.com/flowsmith/flowsmith/pkg/document"
)

// Resolve substitutes {{key}} placeholder tokens throughout a definition
// document. It is pure and performs no I/O.
//
// A string that consists of exactly one bound token is replaced by the
// bound value with its type preserved, so a numeric binding stays numeric.
// Tokens embedded in a longer string are stringified and replaced in
// place. Tokens with no corresponding binding are left untouched.
//
// Documents nested past document.MaxDepth are rejected with
// document.ErrTooDeep.
func Resolve(doc document.Value, bindings map[string]document.Value) (document.Value, error) {
	return resolve(doc, bindings, 0)
}

func resolve(v document.Value, bindings map[string]document.Value, depth int) (document.Value, error) {
	if depth > document.MaxDepth {
		return document.Value{}, document.ErrTooDeep
	}

	switch v.Kind() {
	case document.KindString:
		return resolveString(v.Str(), bindings), nil
	case document.KindSequence:
		elems := make([]document.Value, len(v.Seq()))
		for i, e := range v.Seq() {
			r, err := resolve(e, bindings, depth+1)
			if err != nil {
				return document.Value{}, err
			}
			elems[i] = r
		}
		return document.Sequence(elems...), nil
	case document.KindMapping:
		entries := make(map[string]document.Value, len(v.Map()))
		for k, e := range v.Map() {
			r, err := resolve(e, bindings, depth+1)
			if err != nil {
				return document.Value{}, err
			}
			entries[k] = r
		}
		return document.Mapping(entries), nil
	default:
		// Numbers, booleans, and nulls pass through unchanged.
		return v, nil
	}
}

func resolveString(s string, bindings map[string]document.Value) document.Value {
	// Whole-token match preserves the bound value's type.
	if key, ok := wholeToken(s); ok {
		if bound, present := bindings[key]; present {
			return bound.Clone()
		}
	}

	if !strings.Contains(s, "{{") {
		return document.String(s)
	}
	for key, bound := range bindings {
		token := "{{" + key + "}}"
		if strings.Contains(s, token) {
			s = strings.ReplaceAll(s, token, bound.Stringify())
		}
	}
	return document.String(s)
}

// wholeToken reports whether s is exactly one {{key}} token and returns
// the key.
func wholeToken(s string) (string, bool) {
	if !strings.HasPrefix(s, "{{") || !strings.HasSuffix(s, "}}") || len(s) <= 4 {
		return "", false
	}
	key := s[2 : len(s)-2]
	if strings.Contains(key, "{") || strings.Contains(key, "}") {
		return "", false
	}
	return key, true
}

// ForceTriggerPath rewrites the subscription path of every node with the
// given trigger type to the supplied path, overriding any placeholder the
// template carried. The path convention guarantees global uniqueness.
func ForceTriggerPath(def document.Value, triggerType, path string) document.Value {
	nodes, ok := def.Get("nodes")
	if !ok || nodes.Kind() != document.KindSequence {
		return def
	}

	rewritten := make([]document.Value, len(nodes.Seq()))
	for i, node := range nodes.Seq() {
		rewritten[i] = node
		typ, ok := node.Get("type")
		if !ok || typ.Kind() != document.KindString || typ.Str() != triggerType {
			continue
		}

		entries := cloneEntries(node)
		params, ok := node.Get("parameters")
		var paramEntries map[string]document.Value
		if ok && params.Kind() == document.KindMapping {
			paramEntries = cloneEntries(params)
		} else {
			paramEntries = map[string]document.Value{}
		}
		paramEntries["path"] = document.String(path)
		entries["parameters"] = document.Mapping(paramEntries)
		rewritten[i] = document.Mapping(entries)
	}

	out := cloneEntries(def)
	out["nodes"] = document.Sequence(rewritten...)
	return document.Mapping(out)
}

func cloneEntries(v document.Value) map[string]document.Value {
	entries := make(map[string]document.Value, len(v.Map()))
	for k, e := range v.Map() {
		entries[k] = e
	}
	return entries
}
