package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"genflow/internal/infra/httpclient"
	apperrors "genflow/internal/shared/errors"
	"genflow/internal/shared/logging"
)

const (
	// DefaultBaseURL is the public Codegen API.
	DefaultBaseURL = "https://api.codegen.com"
	// DefaultTimeout bounds each create or refresh call.
	DefaultTimeout = 30 * time.Second

	serviceName = "agent service"
)

// RemoteTask is the agent-side view of a submitted task.
type RemoteTask struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	RawStatus string `json:"raw_status,omitempty"`
	Result    any    `json:"result,omitempty"`
	WebURL    string `json:"web_url,omitempty"`
}

// Service submits prompts and refreshes task state.
type Service interface {
	CreateTask(ctx context.Context, prompt string) (*RemoteTask, error)
	// Refresh updates task in place.
	Refresh(ctx context.Context, task *RemoteTask) error
}

// Config configures Client.
type Config struct {
	BaseURL string
	OrgID   string
	Token   string
	Timeout time.Duration
}

// Client is the REST implementation of Service.
type Client struct {
	baseURL    string
	orgID      string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	logger     logging.Logger
}

var _ Service = (*Client)(nil)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default outbound HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(logger) }
}

// NewClient builds a Client for cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	c := &Client{
		baseURL: base,
		orgID:   strings.TrimSpace(cfg.OrgID),
		token:   strings.TrimSpace(cfg.Token),
		timeout: cfg.Timeout,
		logger:  logging.Nop(),
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httpclient.New(c.timeout, c.logger)
	}
	return c
}

type agentRun struct {
	ID     json.RawMessage `json:"id"`
	Status string          `json:"status"`
	Result any             `json:"result"`
	WebURL string          `json:"web_url"`
}

func (r agentRun) id() string {
	raw := strings.TrimSpace(string(r.ID))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.ID, &s); err == nil {
		return s
	}
	// Numeric ids are kept verbatim.
	return raw
}

// CreateTask submits prompt. A response without an id is an error.
func (c *Client) CreateTask(ctx context.Context, prompt string) (*RemoteTask, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/organizations/%s/agent/run", c.baseURL, url.PathEscape(c.orgID))

	var run agentRun
	if err := c.call(ctx, http.MethodPost, endpoint, body, &run); err != nil {
		return nil, fmt.Errorf("create agent task: %w", err)
	}
	task := &RemoteTask{}
	apply(task, run)
	if task.ID == "" {
		return nil, apperrors.NewPermanentError(errors.New("missing task id"), "agent service returned a task without an id")
	}
	c.logger.Info("Agent task created: %s (status %s)", task.ID, task.Status)
	return task, nil
}

// Refresh fetches the latest status and result of task.
func (c *Client) Refresh(ctx context.Context, task *RemoteTask) error {
	if task == nil || task.ID == "" {
		return errors.New("refresh: task has no id")
	}
	endpoint := fmt.Sprintf("%s/v1/organizations/%s/agent/run/%s", c.baseURL, url.PathEscape(c.orgID), url.PathEscape(task.ID))

	var run agentRun
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &run); err != nil {
		return fmt.Errorf("refresh agent task %s: %w", task.ID, err)
	}
	id := task.ID
	apply(task, run)
	task.ID = id
	return nil
}

func apply(task *RemoteTask, run agentRun) {
	task.ID = run.id()
	task.RawStatus = run.Status
	task.Status = NormalizeStatus(run.Status)
	if run.Result != nil {
		task.Result = run.Result
	}
	if run.WebURL != "" {
		task.WebURL = run.WebURL
	}
}

func (c *Client) call(ctx context.Context, method, endpoint string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTransientError(err, fmt.Sprintf("%s unreachable: %v", serviceName, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.FromHTTPStatus(serviceName, resp.StatusCode, string(raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
