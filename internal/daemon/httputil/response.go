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

// Package httputil provides JSON response helpers and the mapping from the
// flowsmith error taxonomy onto HTTP status codes.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	flowerrors "github.com/flowsmith/flowsmith/pkg/errors"
)

// ErrorResponse is the error envelope every failing endpoint returns.
type ErrorResponse struct {
	Error string `json:"error"`
	// Field names the offending input for validation failures.
	Field string `json:"field,omitempty"`
}

// WriteJSON writes a JSON response with the given status code and data.
// If encoding fails, it logs the error.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", slog.Any("error", err))
	}
}

// WriteError writes a JSON error response with the given status code and message.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteDomainError maps the error taxonomy onto HTTP status codes:
// validation 400, not found 404, circuit open 503 (with Retry-After),
// engine 502, compilation 422, anything else 500.
func WriteDomainError(w http.ResponseWriter, err error) {
	var ve *flowerrors.ValidationError
	if errors.As(err, &ve) {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Field: ve.Field})
		return
	}
	if flowerrors.IsNotFound(err) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	var coe *flowerrors.CircuitOpenError
	if errors.As(err, &coe) {
		retryAfter := int(coe.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if flowerrors.AsEngine(err) != nil {
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	var ce *flowerrors.CompilationError
	if errors.As(err, &ce) {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	WriteError(w, http.StatusInternalServerError, err.Error())
}
