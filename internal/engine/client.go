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

// Package engine is the HTTP client for the remote automation engine,
// with retry, exponential backoff, and a circuit breaker. One Client owns
// one breaker and one connection pool; construct it once and share it
// across every caller targeting the same engine.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/flowsmith/flowsmith/internal/log"
	"github.com/flowsmith/flowsmith/internal/metrics"
	"github.com/flowsmith/flowsmith/pkg/document"
	flowerrors "github.com/flowsmith/flowsmith/pkg/errors"
	"github.com/flowsmith/flowsmith/pkg/httpclient"
)

// maxResponseBody bounds how much of an engine response is read.
const maxResponseBody = 4 << 20

// Config configures a Client.
type Config struct {
	// BaseURL is the engine's REST API root, e.g.
	// "https://n8n.example.com/api/v1".
	BaseURL string

	// APIKey is sent on every API call in APIKeyHeader.
	APIKey string

	// APIKeyHeader defaults to "X-N8N-API-KEY".
	APIKeyHeader string

	// WebhookBaseURL is joined with a trigger node's path to form the
	// externally reachable webhook URL.
	WebhookBaseURL string

	// TriggerNodeType is the engine's webhook trigger node type,
	// defaults to "n8n-nodes-base.webhook".
	TriggerNodeType string

	// RequestTimeout is the per-attempt HTTP timeout.
	RequestTimeout time.Duration

	// MaxAttempts is the total attempt budget per logical call,
	// defaults to 3.
	MaxAttempts int

	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit breaker, defaults to 5.
	BreakerThreshold int

	// BreakerTimeout is how long the breaker stays open, defaults to 60s.
	BreakerTimeout time.Duration

	// RateLimit paces outgoing requests in requests per second.
	// Zero disables pacing.
	RateLimit float64

	// RateBurst is the pacing burst size when RateLimit is set.
	RateBurst int
}

func (c *Config) applyDefaults() {
	if c.APIKeyHeader == "" {
		c.APIKeyHeader = "X-N8N-API-KEY"
	}
	if c.TriggerNodeType == "" {
		c.TriggerNodeType = "n8n-nodes-base.webhook"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 60 * time.Second
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
}

// RemoteWorkflow is the engine's view of a workflow.
type RemoteWorkflow struct {
	ID     string
	Name   string
	Active bool

	// Definition is the full workflow document as returned by the engine.
	Definition document.Value
}

// Execution is one run of a remote workflow.
type Execution struct {
	ID         string
	WorkflowID string
	Status     string
	Finished   bool

	// Raw is the engine's full execution record.
	Raw document.Value
}

// Client talks to the remote automation engine.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *breaker
	limiter *rate.Limiter
	logger  *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient replaces the default pooled HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.http = httpClient }
}

// New creates a Client. The breaker and connection pool live for the
// client's lifetime.
func New(cfg Config, opts ...ClientOption) (*Client, error) {
	cfg.applyDefaults()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("engine base URL is required")
	}

	c := &Client{
		cfg:     cfg,
		breaker: newBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout, nil),
		logger:  slog.Default(),
		sleep:   sleepContext,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		httpClient, err := httpclient.New(httpclient.Config{
			Timeout:   cfg.RequestTimeout,
			UserAgent: "flowsmith-engine-client/1.0",
		})
		if err != nil {
			return nil, fmt.Errorf("building HTTP client: %w", err)
		}
		c.http = httpClient
	}
	c.logger = log.WithComponent(c.logger, "engine-client")
	c.logger.Debug("engine client configured",
		"base_url", cfg.BaseURL, "api_key", log.SanitizeAPIKey(cfg.APIKey))
	return c, nil
}

// CreateDefinition submits a new workflow definition.
func (c *Client) CreateDefinition(ctx context.Context, def document.Value) (*RemoteWorkflow, error) {
	doc, err := c.do(ctx, "create workflow", http.MethodPost, c.apiURL("workflows"), &def)
	if err != nil {
		return nil, err
	}
	w, err := remoteWorkflowFrom("create workflow", doc)
	if err != nil {
		return nil, err
	}
	if w.ID == "" {
		return nil, &flowerrors.EngineError{
			Operation: "create workflow", Message: "response missing workflow id", Fatal: true,
		}
	}
	return w, nil
}

// UpdateDefinition replaces an existing workflow's definition.
func (c *Client) UpdateDefinition(ctx context.Context, remoteID string, def document.Value) (*RemoteWorkflow, error) {
	doc, err := c.do(ctx, "update workflow", http.MethodPatch, c.apiURL("workflows", remoteID), &def)
	if err != nil {
		return nil, err
	}
	w, err := remoteWorkflowFrom("update workflow", doc)
	if err != nil {
		return nil, err
	}
	if w.ID == "" {
		w.ID = remoteID
	}
	return w, nil
}

// Activate turns a remote workflow's trigger on.
func (c *Client) Activate(ctx context.Context, remoteID string) error {
	return c.setActive(ctx, remoteID, true)
}

// Deactivate turns a remote workflow's trigger off.
func (c *Client) Deactivate(ctx context.Context, remoteID string) error {
	return c.setActive(ctx, remoteID, false)
}

func (c *Client) setActive(ctx context.Context, remoteID string, active bool) error {
	body := document.Mapping(map[string]document.Value{"active": document.Bool(active)})
	op := "deactivate workflow"
	if active {
		op = "activate workflow"
	}
	_, err := c.do(ctx, op, http.MethodPatch, c.apiURL("workflows", remoteID, "activate"), &body)
	return err
}

// Delete removes a remote workflow.
func (c *Client) Delete(ctx context.Context, remoteID string) error {
	_, err := c.do(ctx, "delete workflow", http.MethodDelete, c.apiURL("workflows", remoteID), nil)
	return err
}

// Get fetches a remote workflow.
func (c *Client) Get(ctx context.Context, remoteID string) (*RemoteWorkflow, error) {
	doc, err := c.do(ctx, "get workflow", http.MethodGet, c.apiURL("workflows", remoteID), nil)
	if err != nil {
		return nil, err
	}
	return remoteWorkflowFrom("get workflow", doc)
}

// List fetches remote workflows, optionally only active ones.
func (c *Client) List(ctx context.Context, activeOnly bool) ([]*RemoteWorkflow, error) {
	u := c.apiURL("workflows")
	if activeOnly {
		u += "?active=true"
	}
	doc, err := c.do(ctx, "list workflows", http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var workflows []*RemoteWorkflow
	for _, item := range collectionItems(doc) {
		w, err := remoteWorkflowFrom("list workflows", item)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	return workflows, nil
}

// TriggerViaWebhook invokes a workflow's webhook with a JSON payload.
// Success is any 2xx response; the response body is returned as a
// document when it parses as JSON.
func (c *Client) TriggerViaWebhook(ctx context.Context, webhookPath string, payload document.Value) (document.Value, error) {
	base := strings.TrimRight(c.cfg.WebhookBaseURL, "/")
	if base == "" {
		return document.Value{}, fmt.Errorf("webhook base URL is not configured")
	}
	u := base + "/" + strings.TrimLeft(webhookPath, "/")
	return c.do(ctx, "trigger webhook", http.MethodPost, u, &payload)
}

// ListExecutions fetches execution records, optionally filtered to one
// remote workflow.
func (c *Client) ListExecutions(ctx context.Context, remoteWorkflowID string) ([]*Execution, error) {
	u := c.apiURL("executions")
	if remoteWorkflowID != "" {
		u += "?workflowId=" + url.QueryEscape(remoteWorkflowID)
	}
	doc, err := c.do(ctx, "list executions", http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var executions []*Execution
	for _, item := range collectionItems(doc) {
		executions = append(executions, executionFrom(item))
	}
	return executions, nil
}

// GetExecution fetches one execution record.
func (c *Client) GetExecution(ctx context.Context, executionID string) (*Execution, error) {
	doc, err := c.do(ctx, "get execution", http.MethodGet, c.apiURL("executions", executionID), nil)
	if err != nil {
		return nil, err
	}
	return executionFrom(doc), nil
}

// DeleteExecution removes one execution record.
func (c *Client) DeleteExecution(ctx context.Context, executionID string) error {
	_, err := c.do(ctx, "delete execution", http.MethodDelete, c.apiURL("executions", executionID), nil)
	return err
}

// HealthCheck probes the engine with a cheap authenticated read.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.do(ctx, "health check", http.MethodGet, c.apiURL("workflows")+"?limit=1", nil)
	return err
}

// WebhookURL derives the externally reachable URL of a definition's
// webhook trigger by scanning its node list for the first node of the
// configured trigger type.
func (c *Client) WebhookURL(def document.Value) (string, error) {
	nodes, ok := def.Get("nodes")
	if !ok || nodes.Kind() != document.KindSequence {
		return "", fmt.Errorf("definition has no node list")
	}
	for _, node := range nodes.Seq() {
		typ, ok := node.Get("type")
		if !ok || typ.Kind() != document.KindString || typ.Str() != c.cfg.TriggerNodeType {
			continue
		}
		params, _ := node.Get("parameters")
		pathValue, ok := params.Get("path")
		if !ok || pathValue.Kind() != document.KindString || pathValue.Str() == "" {
			return "", fmt.Errorf("webhook trigger node has no path")
		}
		base := strings.TrimRight(c.cfg.WebhookBaseURL, "/")
		return base + "/" + strings.TrimLeft(pathValue.Str(), "/"), nil
	}
	return "", fmt.Errorf("definition contains no %s trigger node", c.cfg.TriggerNodeType)
}

// do runs one logical engine call through the breaker gate, the rate
// limiter, and the retry loop.
func (c *Client) do(ctx context.Context, op, method, callURL string, body *document.Value) (document.Value, error) {
	start := time.Now()
	defer func() {
		metrics.EngineRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if err := c.breaker.allow(); err != nil {
		metrics.EngineRequests.WithLabelValues(op, "circuit_open").Inc()
		c.logger.Warn("engine call rejected while breaker open", log.OperationKey, op)
		return document.Value{}, err
	}

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return document.Value{}, &flowerrors.EngineError{
				Operation: op, Message: "encoding request body", Fatal: true, Cause: err,
			}
		}
		payload = raw
	}

	var lastErr *flowerrors.EngineError
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.EngineRetries.Inc()
			if err := c.sleep(ctx, backoffDelay(attempt-1)); err != nil {
				return document.Value{}, &flowerrors.EngineError{
					Operation: op, Message: "cancelled while backing off",
					Attempts: attempt, Cause: err,
				}
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return document.Value{}, &flowerrors.EngineError{
					Operation: op, Message: "cancelled while rate limited",
					Attempts: attempt, Cause: err,
				}
			}
		}

		result, engineErr := c.attempt(ctx, op, method, callURL, payload)
		if engineErr == nil {
			c.breaker.success()
			metrics.EngineRequests.WithLabelValues(op, "success").Inc()
			return result, nil
		}

		engineErr.Attempts = attempt + 1
		if engineErr.Fatal {
			metrics.EngineRequests.WithLabelValues(op, "fatal").Inc()
			c.logger.Error("engine call failed",
				log.OperationKey, op, "status", engineErr.StatusCode, log.Error(engineErr))
			return document.Value{}, engineErr
		}

		lastErr = engineErr
		c.logger.Warn("engine call failed, retrying",
			log.OperationKey, op, "attempt", attempt+1, "status", engineErr.StatusCode, log.Error(engineErr))
	}

	c.breaker.failure()
	metrics.EngineRequests.WithLabelValues(op, "exhausted").Inc()
	c.logger.Error("engine call exhausted retries",
		log.OperationKey, op, "attempts", c.cfg.MaxAttempts, log.Error(lastErr))
	return document.Value{}, lastErr
}

// attempt issues a single HTTP request and classifies its outcome.
func (c *Client) attempt(ctx context.Context, op, method, callURL string, payload []byte) (document.Value, *flowerrors.EngineError) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, callURL, bodyReader)
	if err != nil {
		return document.Value{}, &flowerrors.EngineError{
			Operation: op, Message: "building request", Fatal: true, Cause: err,
		}
	}
	if c.cfg.APIKey != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Context cancellation must not burn the retry budget as a
		// network fault.
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return document.Value{}, &flowerrors.EngineError{
				Operation: op, Message: "request cancelled", Fatal: true, Cause: err,
			}
		}
		return document.Value{}, &flowerrors.EngineError{
			Operation: op, Message: err.Error(), Cause: err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return document.Value{}, &flowerrors.EngineError{
			Operation: op, StatusCode: resp.StatusCode, Message: "reading response body", Cause: err,
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 {
			return document.Null(), nil
		}
		doc, err := document.Parse(trimmed)
		if err != nil {
			// Webhooks may answer with plain text.
			return document.String(string(trimmed)), nil
		}
		return doc, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return document.Value{}, &flowerrors.EngineError{
			Operation: op, StatusCode: resp.StatusCode,
			Message: "authentication rejected", Fatal: true,
		}
	case resp.StatusCode == http.StatusNotFound:
		return document.Value{}, &flowerrors.EngineError{
			Operation: op, StatusCode: resp.StatusCode,
			Message: "remote resource not found", Fatal: true,
		}
	case resp.StatusCode >= 500:
		return document.Value{}, &flowerrors.EngineError{
			Operation: op, StatusCode: resp.StatusCode, Message: string(raw),
		}
	default:
		return document.Value{}, &flowerrors.EngineError{
			Operation: op, StatusCode: resp.StatusCode,
			Message: string(raw), Fatal: true,
		}
	}
}

func (c *Client) apiURL(parts ...string) string {
	u := strings.TrimRight(c.cfg.BaseURL, "/")
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// collectionItems unwraps a list response, accepting both a bare array
// and the engine's {"data": [...]} envelope.
func collectionItems(doc document.Value) []document.Value {
	if doc.Kind() == document.KindSequence {
		return doc.Seq()
	}
	if data, ok := doc.Get("data"); ok && data.Kind() == document.KindSequence {
		return data.Seq()
	}
	return nil
}

func remoteWorkflowFrom(op string, doc document.Value) (*RemoteWorkflow, error) {
	if doc.Kind() != document.KindMapping {
		return nil, &flowerrors.EngineError{
			Operation: op, Message: "unexpected response shape", Fatal: true,
		}
	}
	w := &RemoteWorkflow{Definition: doc}
	if id, ok := doc.Get("id"); ok {
		w.ID = scalarString(id)
	}
	if name, ok := doc.Get("name"); ok && name.Kind() == document.KindString {
		w.Name = name.Str()
	}
	if active, ok := doc.Get("active"); ok && active.Kind() == document.KindBool {
		w.Active = active.BoolVal()
	}
	return w, nil
}

func executionFrom(doc document.Value) *Execution {
	e := &Execution{Raw: doc}
	if id, ok := doc.Get("id"); ok {
		e.ID = scalarString(id)
	}
	if wid, ok := doc.Get("workflowId"); ok {
		e.WorkflowID = scalarString(wid)
	}
	if status, ok := doc.Get("status"); ok && status.Kind() == document.KindString {
		e.Status = status.Str()
	}
	if finished, ok := doc.Get("finished"); ok && finished.Kind() == document.KindBool {
		e.Finished = finished.BoolVal()
	}
	return e
}

// scalarString renders an identifier that the engine may serve as either
// a string or a number.
func scalarString(v document.Value) string {
	switch v.Kind() {
	case document.KindString:
		return v.Str()
	case document.KindNumber:
		return v.Stringify()
	default:
		return ""
	}
}
