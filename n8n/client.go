// Package n8n is a typed client for the n8n engine's HTTP API: workflow CRUD,
// executions, credentials, node-type introspection and health. Every call is
// throttled per logical endpoint, classified into a closed error taxonomy,
// and retried with backoff when the failure is transient.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/workflow"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultWebhookTimeout = 2 * time.Minute
	defaultMaxAttempts    = 3
	defaultRetryBase      = 500 * time.Millisecond
	maxRetryDelay         = 30 * time.Second
)

// ErrNoSession is returned by session-authenticated calls when no session
// credentials were configured.
var ErrNoSession = errors.New("n8n: session credentials not configured")

// Node-type source labels reported alongside introspection results.
const (
	SourceSession = "session"
	SourceAPI     = "api"
	SourceREST    = "rest"
)

// Client talks to one n8n instance. The zero value is not usable; construct
// with NewClient. All methods are safe for concurrent use.
type Client struct {
	baseURL     string // API root, e.g. http://localhost:5678/api/v1
	apiKey      string
	http        *http.Client
	webhookHTTP *http.Client
	logger      *slog.Logger
	limits      *throttler
	maxAttempts int
	retryBase   time.Duration
	observe     func(endpoint string, status int, elapsed time.Duration)
	session     *session
}

// session holds optional username/password introspection credentials and the
// cookie-jar client that carries the login cookie.
type session struct {
	mu       sync.Mutex
	email    string
	password string
	client   *http.Client
	valid    bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient replaces the underlying HTTP client (tests, custom TLS).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithWebhookTimeout sets the relaxed timeout used by TriggerWebhook.
func WithWebhookTimeout(d time.Duration) Option {
	return func(c *Client) { c.webhookHTTP = &http.Client{Timeout: d} }
}

// WithRateLimits replaces the default per-endpoint throttling table.
func WithRateLimits(policy RateLimitPolicy) Option {
	return func(c *Client) { c.limits = newThrottler(policy) }
}

// WithRetryPolicy sets the attempt ceiling (including the first try) and the
// base backoff delay.
func WithRetryPolicy(maxAttempts int, base time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if base > 0 {
			c.retryBase = base
		}
	}
}

// WithSession configures username/password credentials for the
// session-authenticated introspection endpoints.
func WithSession(email, password string) Option {
	return func(c *Client) {
		jar, _ := cookiejar.New(nil)
		c.session = &session{
			email:    email,
			password: password,
			client:   &http.Client{Timeout: defaultTimeout, Jar: jar},
		}
	}
}

// WithRequestObserver registers a callback invoked after every HTTP attempt
// with the endpoint group, response status (0 on transport failure) and
// elapsed time.
func WithRequestObserver(f func(endpoint string, status int, elapsed time.Duration)) Option {
	return func(c *Client) { c.observe = f }
}

// WithThrottleObserver registers a callback invoked when a call had to wait
// on its endpoint bucket.
func WithThrottleObserver(f func(endpoint string, waited time.Duration)) Option {
	return func(c *Client) { c.limits.onWait = f }
}

// NewClient builds a client for the given API root (including the /api/v1
// prefix) and API key.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		http:        &http.Client{Timeout: defaultTimeout},
		webhookHTTP: &http.Client{Timeout: defaultWebhookTimeout},
		logger:      slog.Default(),
		limits:      newThrottler(nil),
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionConfigured reports whether session introspection credentials were
// provided.
func (c *Client) SessionConfigured() bool { return c.session != nil }

// serverRoot strips the API prefix off the base URL; the introspection and
// health endpoints live on the server root, not under /api/v1.
func (c *Client) serverRoot() string {
	root := c.baseURL
	for _, suffix := range []string{"/api/v1", "/api"} {
		if strings.HasSuffix(root, suffix) {
			return strings.TrimSuffix(root, suffix)
		}
	}
	return root
}

// Health probes the engine. It tries the health endpoints on the server root
// first and falls back to a single-item workflow list, so it works against
// deployments that block the health routes.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	root := c.serverRoot()
	var lastErr error
	for _, path := range []string{"/healthz", "/health"} {
		var resp struct {
			Status  string `json:"status"`
			Version string `json:"version"`
		}
		err := c.do(ctx, EndpointDefault, http.MethodGet, root+path, nil, &resp)
		if err == nil {
			return &Health{OK: true, Version: resp.Version}, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return &Health{}, err
		}
	}
	if _, err := c.ListWorkflows(ctx, ListWorkflowsOptions{Limit: 1}); err != nil {
		return &Health{}, fmt.Errorf("engine unreachable: %w", errors.Join(lastErr, err))
	}
	return &Health{OK: true}, nil
}

// CreateWorkflow submits a new workflow document.
func (c *Client) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) (*workflow.Workflow, error) {
	var created workflow.Workflow
	err := c.do(ctx, EndpointWriteWorkflow, http.MethodPost, c.baseURL+"/workflows", writePayload(wf), &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetWorkflow fetches one workflow by ID.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	var wf workflow.Workflow
	err := c.do(ctx, EndpointReadWorkflow, http.MethodGet, c.workflowURL(id), nil, &wf)
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

// UpdateWorkflow replaces a stored workflow. Engines that reject PUT with 405
// get a single merge-style PATCH retry with the same document.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, wf *workflow.Workflow) (*workflow.Workflow, error) {
	payload := writePayload(wf)
	var updated workflow.Workflow
	err := c.do(ctx, EndpointWriteWorkflow, http.MethodPut, c.workflowURL(id), payload, &updated)
	if apiErr, ok := AsAPIError(err); ok && apiErr.Status == http.StatusMethodNotAllowed {
		c.logger.Debug("engine rejected PUT, retrying as PATCH", "workflow", id)
		err = c.do(ctx, EndpointWriteWorkflow, http.MethodPatch, c.workflowURL(id), payload, &updated)
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteWorkflow removes a stored workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	return c.do(ctx, EndpointDeleteWorkflow, http.MethodDelete, c.workflowURL(id), nil, nil)
}

// ListWorkflows returns one page of stored workflows.
func (c *Client) ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowPage, error) {
	q := url.Values{}
	if opts.Active != nil {
		q.Set("active", strconv.FormatBool(*opts.Active))
	}
	if opts.Name != "" {
		q.Set("name", opts.Name)
	}
	if opts.Tags != "" {
		q.Set("tags", opts.Tags)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	var page WorkflowPage
	err := c.do(ctx, EndpointReadWorkflow, http.MethodGet, withQuery(c.baseURL+"/workflows", q), nil, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// SetActive toggles a workflow's activation flag.
func (c *Client) SetActive(ctx context.Context, id string, active bool) (*workflow.Workflow, error) {
	var wf workflow.Workflow
	err := c.do(ctx, EndpointWriteWorkflow, http.MethodPatch, c.workflowURL(id),
		map[string]bool{"active": active}, &wf)
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

// Run triggers a manual execution of a stored workflow.
func (c *Client) Run(ctx context.Context, id string, data map[string]any) (*Execution, error) {
	var payload any
	if len(data) > 0 {
		payload = data
	}
	var exec Execution
	err := c.do(ctx, EndpointCreateExecution, http.MethodPost, c.workflowURL(id)+"/run", payload, &exec)
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// TriggerWebhook calls a webhook URL directly with the relaxed timeout.
// The result carries the raw status and body even when the call failed at
// the HTTP level, so callers can surface the webhook's own response.
func (c *Client) TriggerWebhook(ctx context.Context, webhookURL, method string, data any, headers map[string]string) (*WebhookResult, error) {
	if method == "" {
		method = http.MethodPost
	}
	var reader io.Reader
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("n8n: encode webhook payload: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, webhookURL, reader)
	if err != nil {
		return nil, fmt.Errorf("n8n: build webhook request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.webhookHTTP.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err)
	}
	result := &WebhookResult{Status: resp.StatusCode, Body: body}
	if resp.StatusCode >= 400 {
		return result, classifyStatus(resp.StatusCode, resp.Header.Get, body)
	}
	return result, nil
}

// GetExecution fetches one execution, optionally with its run data.
func (c *Client) GetExecution(ctx context.Context, id string, includeData bool) (*Execution, error) {
	u := c.baseURL + "/executions/" + url.PathEscape(id)
	if includeData {
		u += "?includeData=true"
	}
	var exec Execution
	err := c.do(ctx, EndpointReadExecution, http.MethodGet, u, nil, &exec)
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// ListExecutions returns one page of executions.
func (c *Client) ListExecutions(ctx context.Context, opts ListExecutionsOptions) (*ExecutionPage, error) {
	q := url.Values{}
	if opts.WorkflowID != "" {
		q.Set("workflowId", opts.WorkflowID)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.IncludeData {
		q.Set("includeData", "true")
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	var page ExecutionPage
	err := c.do(ctx, EndpointReadExecution, http.MethodGet, withQuery(c.baseURL+"/executions", q), nil, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// StopExecution asks the engine to halt a running execution.
func (c *Client) StopExecution(ctx context.Context, id string) (*Execution, error) {
	var exec Execution
	err := c.do(ctx, EndpointDefault, http.MethodPost,
		c.baseURL+"/executions/"+url.PathEscape(id)+"/stop", nil, &exec)
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// ListCredentials returns one page of stored credential metadata.
func (c *Client) ListCredentials(ctx context.Context, opts ListCredentialsOptions) (*CredentialPage, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	var page CredentialPage
	err := c.do(ctx, EndpointDefault, http.MethodGet, withQuery(c.baseURL+"/credentials", q), nil, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// GetCredential fetches one credential's metadata.
func (c *Client) GetCredential(ctx context.Context, id string) (*Credential, error) {
	var cred Credential
	err := c.do(ctx, EndpointDefault, http.MethodGet, c.baseURL+"/credentials/"+url.PathEscape(id), nil, &cred)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// FetchNodeTypes walks the introspection sources in priority order (session,
// API-key nodes.json, API-key rest endpoint) and returns the first non-empty
// result with its source label. Per-source failures are soft; an error is
// returned only when every source failed outright.
func (c *Client) FetchNodeTypes(ctx context.Context) ([]NodeTypeDescription, string, error) {
	type source struct {
		label string
		fetch func(context.Context) ([]NodeTypeDescription, error)
	}
	sources := []source{
		{SourceSession, c.fetchNodeTypesSession},
		{SourceAPI, c.fetchNodeTypesAPI},
		{SourceREST, c.fetchNodeTypesREST},
	}
	anyReachable := false
	var lastErr error
	for _, s := range sources {
		types, err := s.fetch(ctx)
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				c.logger.Debug("node-type source failed", "source", s.label, "error", err)
				lastErr = err
			}
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			continue
		}
		anyReachable = true
		if len(types) > 0 {
			return types, s.label, nil
		}
	}
	if !anyReachable && lastErr != nil {
		return nil, "", fmt.Errorf("all node-type sources failed: %w", lastErr)
	}
	return nil, "", nil
}

func (c *Client) fetchNodeTypesSession(ctx context.Context) ([]NodeTypeDescription, error) {
	if c.session == nil {
		return nil, ErrNoSession
	}
	if err := c.login(ctx); err != nil {
		return nil, err
	}
	body, status, err := c.rawGet(ctx, c.session.client, c.serverRoot()+"/types/nodes.json", false)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.session.mu.Lock()
		c.session.valid = false
		c.session.mu.Unlock()
		return nil, sessionAuthError(status, body)
	}
	if status >= 400 {
		return nil, classifyStatus(status, nil, body)
	}
	return parseNodeTypeList(body)
}

func (c *Client) fetchNodeTypesAPI(ctx context.Context) ([]NodeTypeDescription, error) {
	body, status, err := c.rawGet(ctx, c.http, c.serverRoot()+"/types/nodes.json", true)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, classifyStatus(status, nil, body)
	}
	return parseNodeTypeList(body)
}

func (c *Client) fetchNodeTypesREST(ctx context.Context) ([]NodeTypeDescription, error) {
	body, status, err := c.rawGet(ctx, c.http, c.serverRoot()+"/rest/node-types", true)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, classifyStatus(status, nil, body)
	}
	return parseNodeTypeList(body)
}

// FetchCredentialTypes returns the engine's credential-type descriptors.
// Tries the session first when configured; falls back to the API key.
func (c *Client) FetchCredentialTypes(ctx context.Context) ([]CredentialTypeDescription, error) {
	u := c.serverRoot() + "/types/credentials.json"
	if c.session != nil {
		if err := c.login(ctx); err == nil {
			body, status, err := c.rawGet(ctx, c.session.client, u, false)
			if err == nil && status < 400 {
				return parseCredentialTypeList(body)
			}
		}
	}
	body, status, err := c.rawGet(ctx, c.http, u, true)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, classifyStatus(status, nil, body)
	}
	return parseCredentialTypeList(body)
}

// login establishes the introspection session when not already valid.
func (c *Client) login(ctx context.Context) error {
	s := c.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.valid {
		return nil
	}
	payload, err := json.Marshal(map[string]string{
		"emailOrLdapLoginId": s.email,
		"password":           s.password,
	})
	if err != nil {
		return fmt.Errorf("n8n: encode login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverRoot()+"/rest/login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("n8n: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return sessionAuthError(resp.StatusCode, body)
	}
	s.valid = true
	c.logger.Debug("introspection session established")
	return nil
}

// rawGet performs a single unthrottled GET; the introspection endpoints are
// called once per refresh tick, which the catalog already rate-controls.
func (c *Client) rawGet(ctx context.Context, client *http.Client, u string, withKey bool) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("n8n: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if withKey {
		req.Header.Set("X-N8N-API-KEY", c.apiKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, networkError(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, networkError(err)
	}
	return body, resp.StatusCode, nil
}

// do runs one throttled, retried API call. out, when non-nil, receives the
// decoded JSON response.
func (c *Client) do(ctx context.Context, endpoint, method, u string, payload, out any) error {
	if err := c.limits.wait(ctx, endpoint); err != nil {
		return err
	}
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("n8n: encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt, lastErr)
			c.logger.Debug("retrying engine call",
				"endpoint", endpoint, "attempt", attempt+1, "delay", delay)
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(delay):
			}
		}
		err := c.attempt(ctx, endpoint, method, u, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		apiErr, ok := AsAPIError(err)
		if !ok || !apiErr.Retryable || ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, endpoint, method, u string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("n8n: build request: %w", err)
	}
	req.Header.Set("X-N8N-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observeRequest(endpoint, 0, time.Since(start))
		return networkError(err)
	}
	defer resp.Body.Close()
	respBody, readErr := io.ReadAll(resp.Body)
	c.observeRequest(endpoint, resp.StatusCode, time.Since(start))
	if readErr != nil {
		return networkError(readErr)
	}
	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, resp.Header.Get, respBody)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("n8n: decode %s %s response: %w", method, endpoint, err)
		}
	}
	return nil
}

// backoff computes the delay before the given retry attempt: exponential with
// jitter, overridden upward by the engine's Retry-After when present.
func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	delay := c.retryBase << (attempt - 1)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	delay += time.Duration(rand.Int63n(int64(delay/4) + 1))
	if apiErr, ok := AsAPIError(lastErr); ok && apiErr.RetryAfter > delay {
		delay = apiErr.RetryAfter
	}
	return delay
}

func (c *Client) observeRequest(endpoint string, status int, elapsed time.Duration) {
	if c.observe != nil {
		c.observe(endpoint, status, elapsed)
	}
}

func (c *Client) workflowURL(id string) string {
	return c.baseURL + "/workflows/" + url.PathEscape(id)
}

func withQuery(base string, q url.Values) string {
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}

// writePayload reduces a workflow to the fields the engine accepts on create
// and full update. ID, activation, tags and timestamps are server-managed and
// rejected as additional properties when echoed back.
func writePayload(wf *workflow.Workflow) map[string]any {
	settings := wf.Settings
	if settings == nil {
		// The engine requires a settings object on create.
		settings = &workflow.Settings{ExecutionOrder: workflow.ExecutionOrderV1}
	}
	connections := wf.Connections
	if connections == nil {
		connections = workflow.Connections{}
	}
	payload := map[string]any{
		"name":        wf.Name,
		"nodes":       wf.Nodes,
		"connections": connections,
		"settings":    settings,
	}
	if wf.StaticData != nil {
		payload["staticData"] = wf.StaticData
	}
	return payload
}

func parseNodeTypeList(body []byte) ([]NodeTypeDescription, error) {
	var list []NodeTypeDescription
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Data []NodeTypeDescription `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}
	return nil, fmt.Errorf("n8n: unrecognized node-type response shape")
}

func parseCredentialTypeList(body []byte) ([]CredentialTypeDescription, error) {
	var list []CredentialTypeDescription
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Data []CredentialTypeDescription `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}
	return nil, fmt.Errorf("n8n: unrecognized credential-type response shape")
}
