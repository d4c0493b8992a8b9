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
	"context"
	"fmt"

	"github.com/flowsmith/flowsmith/pkg/document"
)

// CredentialStore resolves a per-user credential reference for a
// credential type. Implementations decide how credentials are actually
// stored and rotated; the compiler only consumes references.
type CredentialStore interface {
	Lookup(ctx context.Context, credentialType, userID string) (string, error)
}

// DerivedCredentials names credentials by the engine's own convention,
// "{type}_user_{userID}". It is a naming scheme, not a secret store: the
// referenced credential must already exist on the engine.
type DerivedCredentials struct{}

// Lookup implements CredentialStore.
func (DerivedCredentials) Lookup(_ context.Context, credentialType, userID string) (string, error) {
	return fmt.Sprintf("%s_user_%s", credentialType, userID), nil
}

// InjectCredentials rewrites every node-level credential reference in the
// definition to the user's credential, leaving all other reference fields
// untouched. A bare string reference is replaced outright; a mapping
// reference has only its "id" field replaced.
func InjectCredentials(ctx context.Context, def document.Value, userID string, creds CredentialStore) (document.Value, error) {
	nodes, ok := def.Get("nodes")
	if !ok || nodes.Kind() != document.KindSequence {
		return def, nil
	}

	rewritten := make([]document.Value, len(nodes.Seq()))
	for i, node := range nodes.Seq() {
		rewritten[i] = node
		refs, ok := node.Get("credentials")
		if !ok || refs.Kind() != document.KindMapping {
			continue
		}

		injected := make(map[string]document.Value, len(refs.Map()))
		for credentialType, ref := range refs.Map() {
			name, err := creds.Lookup(ctx, credentialType, userID)
			if err != nil {
				return document.Value{}, fmt.Errorf("resolving %s credential: %w", credentialType, err)
			}
			if ref.Kind() == document.KindMapping {
				entry := cloneEntries(ref)
				entry["id"] = document.String(name)
				injected[credentialType] = document.Mapping(entry)
			} else {
				injected[credentialType] = document.String(name)
			}
		}

		entries := cloneEntries(node)
		entries["credentials"] = document.Mapping(injected)
		rewritten[i] = document.Mapping(entries)
	}

	out := cloneEntries(def)
	out["nodes"] = document.Sequence(rewritten...)
	return document.Mapping(out), nil
}
