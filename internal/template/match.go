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

package template

import (
	"context"
	"sort"
	"strings"
)

// Match pairs a template with its relevance score for a query.
type Match struct {
	Template *Template `json:"template"`
	Score    float64   `json:"score"`
}

// Match scores every template against a free-text query. Each declared
// keyword found in the query adds 0.5; the template name appearing in the
// query adds 0.3. Templates scoring zero are dropped, and results are
// ordered best first with ties broken by template ID.
func (r *Registry) Match(ctx context.Context, query string) []Match {
	q := strings.ToLower(query)

	var matches []Match
	for _, t := range r.All(ctx) {
		score := 0.0
		for _, kw := range t.Keywords {
			if kw != "" && strings.Contains(q, strings.ToLower(kw)) {
				score += 0.5
			}
		}
		if t.Name != "" && strings.Contains(q, strings.ToLower(t.Name)) {
			score += 0.3
		}
		if score > 0 {
			matches = append(matches, Match{Template: t, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Template.ID < matches[j].Template.ID
	})
	return matches
}
