package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/redlinehq/redline/internal/types"
)

// Model selection. Extraction and review need real reasoning; annotation of a
// single already-verified issue is simple enough for the cheap model.
const (
	// ModelDefault is the model for extraction, support-filter, and review
	ModelDefault = "claude-sonnet-4-5-20250929"

	// ModelAnnotate is the cost-efficient model for per-issue annotation
	ModelAnnotate = "claude-3-5-haiku-20241022"
)

// GetDefaultModel returns the reasoning model, honoring REDLINE_MODEL
func GetDefaultModel() string {
	if m := os.Getenv("REDLINE_MODEL"); m != "" {
		return m
	}
	return ModelDefault
}

// GetAnnotateModel returns the annotation model, honoring REDLINE_MODEL_ANNOTATE
func GetAnnotateModel() string {
	if m := os.Getenv("REDLINE_MODEL_ANNOTATE"); m != "" {
		return m
	}
	return ModelAnnotate
}

// Config holds client configuration
type Config struct {
	APIKey        string      // if empty, read from ANTHROPIC_API_KEY
	Model         string      // default: GetDefaultModel()
	AnnotateModel string      // default: GetAnnotateModel()
	Retry         RetryConfig // zero value means DefaultRetryConfig()

	// MaxConcurrentCalls bounds in-flight API calls across all fan-out
	// tasks (default: 3, 0 = unlimited).
	MaxConcurrentCalls int

	// CallsPerSecond rate-limits API calls (default: 2, 0 = unlimited).
	CallsPerSecond float64
}

// Client is the Anthropic-backed oracle. All calls share one retry policy,
// one circuit breaker, one concurrency semaphore, and one rate limiter.
type Client struct {
	client        *anthropic.Client
	model         string
	annotateModel string
	retry         RetryConfig
	breaker       *CircuitBreaker
	sem           *semaphore.Weighted
	limiter       *rate.Limiter
}

// Compile-time check that Client implements Oracle
var _ Oracle = (*Client)(nil)

// NewClient creates the Anthropic oracle client
func NewClient(cfg *Config) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}
	annotateModel := cfg.AnnotateModel
	if annotateModel == "" {
		annotateModel = GetAnnotateModel()
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialBackoff == 0 {
		retry = DefaultRetryConfig()
	}

	var breaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		breaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
	}

	maxConcurrent := cfg.MaxConcurrentCalls
	if maxConcurrent == 0 {
		maxConcurrent = 3
	}
	var sem *semaphore.Weighted
	if maxConcurrent > 0 {
		sem = semaphore.NewWeighted(int64(maxConcurrent))
	}

	callsPerSecond := cfg.CallsPerSecond
	if callsPerSecond == 0 {
		callsPerSecond = 2
	}
	var limiter *rate.Limiter
	if callsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(callsPerSecond), 1)
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client:        &client,
		model:         model,
		annotateModel: annotateModel,
		retry:         retry,
		breaker:       breaker,
		sem:           sem,
		limiter:       limiter,
	}, nil
}

// callModel makes one oracle call through the shared retry policy, breaker,
// semaphore, and rate limiter, and returns the concatenated text blocks.
func (c *Client) callModel(ctx context.Context, operation, model, prompt string, maxTokens int) (string, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("failed to acquire oracle call slot for %s: %w", operation, err)
		}
		defer c.sem.Release(1)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait canceled for %s: %w", operation, err)
		}
	}

	if maxTokens == 0 {
		maxTokens = 4096
	}

	start := time.Now()
	var response *anthropic.Message
	err := retryWithBackoff(ctx, c.retry, c.breaker, operation, func(attemptCtx context.Context) error {
		resp, apiErr := c.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: int64(maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", err
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	slog.Debug("oracle call completed",
		"operation", operation,
		"model", model,
		"inputTokens", response.Usage.InputTokens,
		"outputTokens", response.Usage.OutputTokens,
		"duration", time.Since(start))
	return text, nil
}

// extractionResponse is the extraction call's wire schema
type extractionResponse struct {
	Issues []types.RawIssue `json:"issues"`
}

// Extract implements Oracle
func (c *Client) Extract(ctx context.Context, documentText string) ([]types.RawIssue, error) {
	text, err := c.callModel(ctx, "extract", c.model, buildExtractionPrompt(documentText), 8192)
	if err != nil {
		return nil, err
	}

	resp, err := parseResponse[extractionResponse](text, "extraction response")
	if err != nil {
		return nil, err
	}

	// Boundary validation: malformed issues are dropped here, not deeper in
	// the pipeline.
	issues := make([]types.RawIssue, 0, len(resp.Issues))
	for i := range resp.Issues {
		if err := resp.Issues[i].Validate(); err != nil {
			slog.Warn("dropping malformed extracted issue", "index", i, "error", err)
			continue
		}
		issues = append(issues, resp.Issues[i])
	}
	return issues, nil
}

// FilterSupported implements Oracle
func (c *Client) FilterSupported(ctx context.Context, documentText string, issues []types.AnchoredIssue) (*SupportFilterResult, error) {
	if len(issues) == 0 {
		return &SupportFilterResult{}, nil
	}

	text, err := c.callModel(ctx, "support_filter", c.model, buildSupportFilterPrompt(documentText, issues), 4096)
	if err != nil {
		return nil, err
	}

	result, err := parseResponse[SupportFilterResult](text, "support filter response")
	if err != nil {
		return nil, err
	}
	if err := result.Validate(len(issues)); err != nil {
		return nil, fmt.Errorf("support filter response rejected: %w", err)
	}
	return &result, nil
}

// annotationResponse is the annotate call's wire schema
type annotationResponse struct {
	Description string `json:"description"`
}

// Annotate implements Oracle
func (c *Client) Annotate(ctx context.Context, documentText string, issue *types.AnchoredIssue) (string, error) {
	text, err := c.callModel(ctx, "annotate", c.annotateModel, buildAnnotationPrompt(documentText, issue), 1024)
	if err != nil {
		return "", err
	}

	resp, err := parseResponse[annotationResponse](text, "annotation response")
	if err != nil {
		return "", err
	}
	if resp.Description == "" {
		return "", fmt.Errorf("annotation response rejected: empty description")
	}
	return resp.Description, nil
}

// Review implements Oracle
func (c *Client) Review(ctx context.Context, documentText string, comments []types.Comment) (*ReviewResult, error) {
	text, err := c.callModel(ctx, "review", c.model, buildReviewPrompt(documentText, comments), 4096)
	if err != nil {
		return nil, err
	}

	result, err := parseResponse[ReviewResult](text, "review response")
	if err != nil {
		return nil, err
	}
	if err := result.Validate(len(comments)); err != nil {
		return nil, fmt.Errorf("review response rejected: %w", err)
	}
	return &result, nil
}
