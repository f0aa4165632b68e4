package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"genflow/internal/infra/httpclient"
	apperrors "genflow/internal/shared/errors"
	"genflow/internal/shared/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultShortTimeout bounds search, ingestion and listing calls.
	DefaultShortTimeout = 30 * time.Second
	// DefaultLongTimeout bounds RAG generation calls.
	DefaultLongTimeout = 60 * time.Second
	// HealthTimeout bounds the startup connectivity check.
	HealthTimeout = 10 * time.Second

	searchStrategy = "vanilla"
	ragTemperature = 0.1
	ragSearchLimit = 5

	archiveFileName = "codegen_result.txt"
	serviceName     = "knowledge service"
)

// CallObserver receives one observation per remote call. Implemented by
// observability.MetricsCollector.
type CallObserver interface {
	ObserveKnowledgeCall(ctx context.Context, operation, outcome string, duration time.Duration)
}

// Config configures Client.
type Config struct {
	BaseURL      string
	APIKey       string
	ShortTimeout time.Duration
	LongTimeout  time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(logger) }
}

// WithHTTPClient replaces the default outbound HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithObserver records per-call metrics.
func WithObserver(observer CallObserver) Option {
	return func(c *Client) { c.observer = observer }
}

// WithTracer overrides the global otel tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL      string
	apiKey       string
	shortTimeout time.Duration
	longTimeout  time.Duration
	httpClient   *http.Client
	logger       logging.Logger
	observer     CallObserver
	tracer       trace.Tracer
}

var _ Service = (*Client)(nil)

// NewClient builds a Client for cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		shortTimeout: cfg.ShortTimeout,
		longTimeout:  cfg.LongTimeout,
		logger:       logging.Nop(),
		tracer:       otel.Tracer("genflow/knowledge"),
	}
	if c.shortTimeout <= 0 {
		c.shortTimeout = DefaultShortTimeout
	}
	if c.longTimeout <= 0 {
		c.longTimeout = DefaultLongTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		// Per-call deadlines come from the request context; the client
		// timeout is only a ceiling.
		c.httpClient = httpclient.New(c.longTimeout, c.logger)
	}
	return c
}

type searchSettings struct {
	UseHybridSearch bool   `json:"use_hybrid_search"`
	SearchStrategy  string `json:"search_strategy"`
	Limit           int    `json:"limit"`
}

type searchRequest struct {
	Query          string         `json:"query"`
	SearchSettings searchSettings `json:"search_settings"`
}

type generationConfig struct {
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

type ragRequest struct {
	Query               string           `json:"query"`
	RAGGenerationConfig generationConfig `json:"rag_generation_config"`
	SearchSettings      searchSettings   `json:"search_settings"`
}

type wireChunk struct {
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

type envelope struct {
	Results json.RawMessage `json:"results"`
}

type searchResults struct {
	ChunkSearchResults []wireChunk `json:"chunk_search_results"`
}

type ragResults struct {
	Completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"completion"`
}

// Search runs a hybrid search and returns at most limit chunks in the order
// the service ranked them.
func (c *Client) Search(ctx context.Context, query string, limit int) Outcome[[]Chunk] {
	ctx, span := c.startSpan(ctx, "genflow.knowledge.search", attribute.Int("genflow.knowledge.limit", limit))
	defer span.End()

	start := time.Now()
	chunks, err := c.search(ctx, query, limit)
	c.finish(ctx, span, "search", err, start)
	if err != nil {
		c.logger.Warn("Knowledge search failed: %v", err)
		return Failed[[]Chunk](err, "knowledge search unavailable")
	}
	c.logger.Debug("Knowledge search returned %d chunks", len(chunks))
	return Succeeded(chunks)
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]Chunk, error) {
	if limit <= 0 {
		return []Chunk{}, nil
	}
	payload := searchRequest{
		Query:          query,
		SearchSettings: searchSettings{UseHybridSearch: true, SearchStrategy: searchStrategy, Limit: limit},
	}
	var env envelope
	if err := c.postJSON(ctx, "/v3/retrieval/search", c.shortTimeout, payload, &env); err != nil {
		return nil, err
	}

	var results searchResults
	if len(env.Results) > 0 && env.Results[0] == '{' {
		if err := json.Unmarshal(env.Results, &results); err != nil {
			return nil, fmt.Errorf("decode search results: %w", err)
		}
	}

	wire := results.ChunkSearchResults
	if len(wire) > limit {
		wire = wire[:limit]
	}
	chunks := make([]Chunk, 0, len(wire))
	for _, w := range wire {
		chunks = append(chunks, Chunk{Text: w.Text, Score: w.Score, Metadata: stringifyMetadata(w.Metadata)})
	}
	return chunks, nil
}

// RAGAnswer asks the service to answer question from retrieved context.
func (c *Client) RAGAnswer(ctx context.Context, question string, maxTokens int) Outcome[*Answer] {
	ctx, span := c.startSpan(ctx, "genflow.knowledge.rag", attribute.Int("genflow.knowledge.max_tokens", maxTokens))
	defer span.End()

	start := time.Now()
	content, err := c.ragAnswer(ctx, question, maxTokens)
	c.finish(ctx, span, "rag", err, start)
	if err != nil {
		c.logger.Warn("Knowledge RAG query failed: %v", err)
		return Failed[*Answer](err, "knowledge answer unavailable")
	}
	c.logger.Debug("Knowledge RAG answer received (%d chars)", len(content))
	return Succeeded(&Answer{Content: content, Query: question})
}

func (c *Client) ragAnswer(ctx context.Context, question string, maxTokens int) (string, error) {
	payload := ragRequest{
		Query:               question,
		RAGGenerationConfig: generationConfig{MaxTokens: maxTokens, Temperature: ragTemperature, Stream: false},
		SearchSettings:      searchSettings{UseHybridSearch: true, SearchStrategy: searchStrategy, Limit: ragSearchLimit},
	}
	var env envelope
	if err := c.postJSON(ctx, "/v3/retrieval/rag", c.longTimeout, payload, &env); err != nil {
		return "", err
	}

	var results ragResults
	if len(env.Results) > 0 && env.Results[0] == '{' {
		if err := json.Unmarshal(env.Results, &results); err != nil {
			return "", fmt.Errorf("decode rag results: %w", err)
		}
	}
	choices := results.Completion.Choices
	if len(choices) == 0 {
		return "", errors.New("no choices in response")
	}
	if choices[0].Message.Content == "" {
		return "", errors.New("empty answer in first choice")
	}
	return choices[0].Message.Content, nil
}

type agentRequest struct {
	Message             string          `json:"message"`
	ConversationID      string          `json:"conversation_id,omitempty"`
	RAGGenerationConfig agentGeneration `json:"rag_generation_config"`
}

type agentGeneration struct {
	MaxTokens int `json:"max_tokens_to_sample"`
}

// Converse sends message to the research agent, continuing conversationID
// when it is set.
func (c *Client) Converse(ctx context.Context, message, conversationID string, maxTokens int) (Turn, error) {
	ctx, span := c.startSpan(ctx, "genflow.knowledge.agent", attribute.Int("genflow.knowledge.max_tokens", maxTokens))
	defer span.End()

	start := time.Now()
	payload := agentRequest{
		Message:             message,
		ConversationID:      conversationID,
		RAGGenerationConfig: agentGeneration{MaxTokens: maxTokens},
	}
	var out struct {
		Results Turn `json:"results"`
	}
	err := c.postJSON(ctx, "/v3/retrieval/agent", c.longTimeout, payload, &out)
	c.finish(ctx, span, "agent", err, start)
	if err != nil {
		c.logger.Warn("Knowledge agent turn failed: %v", err)
		return Turn{}, err
	}
	return out.Results, nil
}

// Archive uploads content as a new document carrying metadata.
func (c *Client) Archive(ctx context.Context, content string, metadata map[string]any) Outcome[bool] {
	ctx, span := c.startSpan(ctx, "genflow.knowledge.archive", attribute.Int("genflow.knowledge.content_length", len(content)))
	defer span.End()

	start := time.Now()
	err := c.archive(ctx, content, metadata)
	c.finish(ctx, span, "archive", err, start)
	if err != nil {
		c.logger.Warn("Failed to archive result in knowledge service: %v", err)
		return Failed[bool](err, "archive failed")
	}
	c.logger.Info("Archived generation result in knowledge service")
	return Succeeded(true)
}

func (c *Client) archive(ctx context.Context, content string, metadata map[string]any) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, archiveFileName))
	header.Set("Content-Type", "text/plain")
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		return fmt.Errorf("write file part: %w", err)
	}
	if err := writer.WriteField("metadata", string(metaJSON)); err != nil {
		return fmt.Errorf("write metadata field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.shortTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/documents", &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, nil)
}

// Health performs the startup connectivity check.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "genflow.knowledge.health")
	defer span.End()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v3/health", nil)
	if err == nil {
		err = c.do(req, nil)
	}
	c.finish(ctx, span, "health", err, start)
	return err
}

// Entities lists graph entities of collectionID.
func (c *Client) Entities(ctx context.Context, collectionID string, limit int) ([]map[string]any, error) {
	return c.listGraph(ctx, collectionID, "entities", limit)
}

// Relationships lists graph relationships of collectionID.
func (c *Client) Relationships(ctx context.Context, collectionID string, limit int) ([]map[string]any, error) {
	return c.listGraph(ctx, collectionID, "relationships", limit)
}

// Communities lists graph communities of collectionID.
func (c *Client) Communities(ctx context.Context, collectionID string, limit int) ([]map[string]any, error) {
	return c.listGraph(ctx, collectionID, "communities", limit)
}

func (c *Client) listGraph(ctx context.Context, collectionID, resource string, limit int) ([]map[string]any, error) {
	ctx, span := c.startSpan(ctx, "genflow.knowledge.graph."+resource, attribute.String("genflow.knowledge.collection_id", collectionID))
	defer span.End()

	start := time.Now()
	items, err := c.fetchGraph(ctx, collectionID, resource, limit)
	c.finish(ctx, span, "graph_"+resource, err, start)
	if err != nil {
		return nil, fmt.Errorf("list %s of %s: %w", resource, collectionID, err)
	}
	return items, nil
}

func (c *Client) fetchGraph(ctx context.Context, collectionID, resource string, limit int) ([]map[string]any, error) {
	if strings.TrimSpace(collectionID) == "" {
		return nil, errors.New("collection id is required")
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", "0")
	endpoint := fmt.Sprintf("%s/v3/graphs/%s/%s?%s", c.baseURL, url.PathEscape(collectionID), resource, query.Encode())

	ctx, cancel := context.WithTimeout(ctx, c.shortTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	var out struct {
		Results []map[string]any `json:"results"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.Results == nil {
		out.Results = []map[string]any{}
	}
	return out.Results, nil
}

func (c *Client) postJSON(ctx context.Context, path string, timeout time.Duration, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.FromHTTPStatus(serviceName, resp.StatusCode, string(raw))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (c *Client) finish(ctx context.Context, span trace.Span, operation string, err error, start time.Time) {
	outcome := "success"
	if err != nil {
		outcome = apperrors.GetErrorType(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if c.observer != nil {
		c.observer.ObserveKnowledgeCall(ctx, operation, outcome, time.Since(start))
	}
}
