package worker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/mendhq/mend/internal/types"
)

// Repair model selection.
//
// Environment variable overrides:
// - MEND_MODEL: Override the repair model (default: Sonnet)
// - MEND_MODEL_SIMPLE: Override the model for small repairs (default: Haiku)
const (
	// ModelSonnet is the default model for repair jobs.
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelHaiku is the cost-efficient model for small repairs.
	ModelHaiku = "claude-3-5-haiku-20241022"
)

// GetDefaultModel returns the repair model, checking MEND_MODEL first.
func GetDefaultModel() string {
	if model := os.Getenv("MEND_MODEL"); model != "" {
		return model
	}
	return ModelSonnet
}

// GetSimpleRepairModel returns the model for small repairs, checking
// MEND_MODEL_SIMPLE first.
func GetSimpleRepairModel() string {
	if model := os.Getenv("MEND_MODEL_SIMPLE"); model != "" {
		return model
	}
	return ModelHaiku
}

// Config holds Anthropic agent configuration.
type Config struct {
	APIKey         string        // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model          string        // Model to use (default: GetDefaultModel())
	MaxTokens      int64         // Response budget per job (default: 8192)
	MaxInFlight    int           // Concurrent jobs (default: 2)
	SubmitInterval time.Duration // Minimum gap between API dispatches (default: 2s)
	JobTimeout     time.Duration // Wall-clock limit per job (default: 5m)
}

// AnthropicAgent runs repair jobs against the Anthropic Messages API.
// Each job is one background call producing a proposed-fix document.
type AnthropicAgent struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration

	sem     *semaphore.Weighted // limits concurrent API calls
	limiter *rate.Limiter       // client-side dispatch rate
	results chan JobResult

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

var _ Agent = (*AnthropicAgent)(nil)

// NewAnthropicAgent creates a worker agent backed by the Anthropic API.
func NewAnthropicAgent(cfg *Config) (*AnthropicAgent, error) {
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

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 2
	}

	interval := cfg.SubmitInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicAgent{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		sem:       semaphore.NewWeighted(int64(maxInFlight)),
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		results:   make(chan JobResult, 64),
	}, nil
}

// SubmitJob dispatches a repair job and returns its ID immediately. The
// job runs in the background with its own deadline; cancelling ctx after
// submission does not abort it.
func (a *AnthropicAgent) SubmitJob(ctx context.Context, systemUserID, diagnostic string) (string, error) {
	if systemUserID == "" {
		return "", fmt.Errorf("system user is required")
	}
	if strings.TrimSpace(diagnostic) == "" {
		return "", fmt.Errorf("diagnostic message is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return "", fmt.Errorf("worker agent is closed")
	}
	jobID := uuid.New().String()
	a.wg.Add(1)
	a.mu.Unlock()

	go a.runJob(jobID, systemUserID, diagnostic)
	return jobID, nil
}

// Results delivers job completions. The channel carries a buffer so slow
// consumers do not stall finished jobs; callers should keep draining it
// until Close shuts it.
func (a *AnthropicAgent) Results() <-chan JobResult {
	return a.results
}

// Close stops accepting jobs, waits for in-flight ones, and closes the
// results channel.
func (a *AnthropicAgent) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.wg.Wait()
	close(a.results)
	return nil
}

func (a *AnthropicAgent) runJob(jobID, systemUserID, diagnostic string) {
	defer a.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	start := time.Now()
	result := JobResult{JobID: jobID, ModelTag: a.model}

	if err := a.limiter.Wait(ctx); err != nil {
		result.Err = fmt.Errorf("waiting for dispatch slot: %w", err)
		result.Duration = time.Since(start)
		a.results <- result
		return
	}

	if err := a.sem.Acquire(ctx, 1); err != nil {
		result.Err = fmt.Errorf("acquiring worker slot: %w", err)
		result.Duration = time.Since(start)
		a.results <- result
		return
	}
	defer a.sem.Release(1)

	fix, notes, err := a.repair(ctx, systemUserID, diagnostic)
	result.Fix = fix
	result.Notes = notes
	result.Err = err
	result.Duration = time.Since(start)
	a.results <- result
}

func (a *AnthropicAgent) repair(ctx context.Context, systemUserID, diagnostic string) (*types.ProposedFix, string, error) {
	prompt := buildRepairPrompt(systemUserID, diagnostic)

	response, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var responseText string
	for _, block := range response.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	fix, notes, err := decodeRepair(responseText)
	if err != nil {
		return nil, notes, fmt.Errorf("worker produced no usable fix: %w", err)
	}
	return fix, notes, nil
}

func buildRepairPrompt(systemUserID, diagnostic string) string {
	return fmt.Sprintf(`You are an automated repair agent operating on behalf of system user %s.

Incident to repair:
%s

Produce a minimal, safe fix. Respond with a JSON document of this exact shape:
{
  "diagnosis": "one-paragraph root cause summary",
  "fix": {
    "description": "what the fix changes and why it is safe",
    "files": [
      {"path": "relative/path/to/file", "content": "complete post-fix file content"}
    ]
  }
}

Rules:
- "content" is the full file content after the fix, not a diff.
- Paths are relative to the repository root.
- Touch as few files as possible.

IMPORTANT: Respond with ONLY raw JSON. Do NOT wrap in markdown code fences.`, systemUserID, diagnostic)
}
