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

// Package compile turns a template plus user-supplied inputs into a fully
// resolved engine-definition document: validate, substitute, inject
// credentials.
package compile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flowsmith/flowsmith/internal/template"
	"github.com/flowsmith/flowsmith/pkg/document"
	flowerrors "github.com/flowsmith/flowsmith/pkg/errors"
)

// ValidateInputs checks user inputs against the template's field specs and
// returns a new map containing every declared field with a type-correct
// value: required fields present and coerced, optional fields filled with
// their declared default when absent or explicitly null (null is still a
// legal default value).
func ValidateInputs(t *template.Template, inputs map[string]document.Value) (map[string]document.Value, error) {
	resolved := make(map[string]document.Value, len(t.RequiredInputs)+len(t.OptionalInputs))

	for _, field := range t.RequiredInputs {
		v, ok := inputs[field.Name]
		if !ok || v.IsNull() {
			return nil, &flowerrors.ValidationError{Field: field.Name, Message: "required field is missing"}
		}
		coerced, err := coerceField(field, v)
		if err != nil {
			return nil, err
		}
		resolved[field.Name] = coerced
	}

	for _, field := range t.OptionalInputs {
		v, ok := inputs[field.Name]
		// An explicit null counts as absent, same as a missing key.
		if !ok || v.IsNull() {
			d, err := document.FromAny(field.Default)
			if err != nil {
				return nil, &flowerrors.ValidationError{
					Field:   field.Name,
					Message: fmt.Sprintf("unusable default value: %v", err),
				}
			}
			resolved[field.Name] = d
			continue
		}
		coerced, err := coerceField(field, v)
		if err != nil {
			return nil, err
		}
		resolved[field.Name] = coerced
	}

	return resolved, nil
}

// coerceField applies the field's type coercion, range bounds, and enum
// membership check.
func coerceField(field template.FieldSpec, v document.Value) (document.Value, error) {
	if field.Type == template.FieldNumber {
		n, err := coerceNumber(v)
		if err != nil {
			return document.Value{}, &flowerrors.ValidationError{
				Field:   field.Name,
				Message: fmt.Sprintf("expected a number, got %s", describe(v)),
			}
		}
		if field.Min != nil && n < *field.Min {
			return document.Value{}, &flowerrors.ValidationError{
				Field:   field.Name,
				Message: fmt.Sprintf("value %s is below minimum %s", formatNum(n), formatNum(*field.Min)),
			}
		}
		if field.Max != nil && n > *field.Max {
			return document.Value{}, &flowerrors.ValidationError{
				Field:   field.Name,
				Message: fmt.Sprintf("value %s is above maximum %s", formatNum(n), formatNum(*field.Max)),
			}
		}
		v = document.Number(n)
	}

	if len(field.Options) > 0 {
		if err := checkOption(field, v); err != nil {
			return document.Value{}, err
		}
	}

	return v, nil
}

func coerceNumber(v document.Value) (float64, error) {
	switch v.Kind() {
	case document.KindNumber:
		return v.Num(), nil
	case document.KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
		if err != nil {
			return 0, err
		}
		return n, nil
	default:
		return 0, fmt.Errorf("not numeric")
	}
}

// checkOption enforces closed-enumeration membership, comparing against
// each option's value whether the option is bare or labeled.
func checkOption(field template.FieldSpec, v document.Value) error {
	for _, opt := range field.Options {
		ov, err := document.FromAny(opt.Value)
		if err != nil {
			continue
		}
		if v.Equal(ov) {
			return nil
		}
	}
	return &flowerrors.ValidationError{
		Field:   field.Name,
		Message: fmt.Sprintf("value %s is not a valid choice", describe(v)),
	}
}

func describe(v document.Value) string {
	switch v.Kind() {
	case document.KindString:
		return strconv.Quote(v.Str())
	case document.KindNumber, document.KindBool:
		return v.Stringify()
	default:
		return v.Kind().String()
	}
}

func formatNum(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
