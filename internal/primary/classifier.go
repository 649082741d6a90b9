// Package primary implements the language-model classification tier.
package primary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/tender-radar/internal/llm"
	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/prompts"
	"github.com/jonathan/tender-radar/internal/retry"
	"github.com/jonathan/tender-radar/internal/schemas"
	"github.com/jonathan/tender-radar/internal/types"
)

const (
	promptFile      = "classification.json"
	promptKey       = "classify-tender"
	repromptKey     = "classify-tender-retry"
	maxPromptRunes  = 6000
	notSpecifiedStr = "Not specified"
)

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 60 * time.Second

// Config holds the instruction inputs and call limits for the primary tier.
type Config struct {
	ServiceCatalogue []string
	CuratedKeywords  []string
	Tier             llm.ModelTier
	// Timeout bounds each model call attempt.
	Timeout time.Duration
	Retry   retry.Config
	// Reprompt sends one short corrective prompt when the answer cannot be parsed.
	Reprompt bool
}

// ResponseError is returned when the model answered but the answer is unusable.
type ResponseError struct {
	Message string
	Content string
	Cause   error
}

func (e *ResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed model response: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed model response: %s", e.Message)
}

func (e *ResponseError) Unwrap() error {
	return e.Cause
}

// Retryable is false: the same prompt is unlikely to fix a malformed answer.
func (e *ResponseError) Retryable() bool { return false }

type response struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classifier asks an llm.Client whether a tender matches the service catalogue.
// Classify never returns an error; failures become error verdicts.
type Classifier struct {
	client llm.Client
	cfg    Config
	log    logger.Logger
}

// New creates a primary classifier. A nil client yields a classifier that always
// answers with an error verdict.
func New(client llm.Client, cfg Config, log logger.Logger) *Classifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Tier == "" {
		cfg.Tier = llm.TierLite
	}
	return &Classifier{client: client, cfg: cfg, log: logger.OrNop(log)}
}

// Model returns the provider model used for verdicts, or "" when unconfigured.
func (c *Classifier) Model() string {
	if c.client == nil {
		return ""
	}
	return c.client.GetModel(c.cfg.Tier)
}

// Classify returns a primary verdict for the tender text.
func (c *Classifier) Classify(ctx context.Context, title, description string) types.Verdict {
	if c.client == nil {
		return types.ErrorVerdict("primary classifier not configured")
	}

	prompt, err := c.buildPrompt(promptKey, title, description)
	if err != nil {
		return types.ErrorVerdict(err.Error())
	}

	resp, err := c.ask(ctx, prompt)
	var respErr *ResponseError
	if err != nil && errors.As(err, &respErr) && c.cfg.Reprompt {
		c.log.Debug("reprompting after malformed answer", logger.Error(err))
		if prompt, perr := c.buildPrompt(repromptKey, title, description); perr == nil {
			resp, err = c.ask(ctx, prompt)
		}
	}
	if err != nil {
		c.log.Warn("primary classification failed",
			logger.String("title", truncate(title, 80)),
			logger.Error(err),
		)
		return types.ErrorVerdict(err.Error())
	}

	return types.Verdict{
		IsRelevant:   strings.EqualFold(strings.TrimSpace(resp.Prediction), "yes"),
		Confidence:   types.ClampConfidence(resp.Confidence),
		Reasoning:    strings.TrimSpace(resp.Reasoning),
		Method:       types.MethodPrimary,
		ClassifiedAt: time.Now().UTC(),
	}
}

func (c *Classifier) ask(ctx context.Context, prompt string) (*response, error) {
	var raw string
	rcfg := c.cfg.Retry
	rcfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.log.Info("retrying model call",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
	}
	err := retry.Do(ctx, rcfg, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		out, err := c.client.GenerateJSON(callCtx, prompt, c.cfg.Tier)
		if err != nil {
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parseResponse(raw)
}

func parseResponse(raw string) (*response, error) {
	content := llm.CleanJSONBlock(raw)
	if content == "" {
		return nil, &ResponseError{Message: "empty answer"}
	}
	if err := schemas.Validate(schemas.Verdict, content); err != nil {
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			return nil, &ResponseError{Message: ve.Summary(), Content: content}
		}
		return nil, &ResponseError{Message: "not a JSON object", Content: content, Cause: err}
	}
	var resp response
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, &ResponseError{Message: "decode failed", Content: content, Cause: err}
	}
	return &resp, nil
}

func (c *Classifier) buildPrompt(key, title, description string) (string, error) {
	return prompts.Render(promptFile, key, map[string]string{
		"ServiceCatalogue": bulletList(c.cfg.ServiceCatalogue),
		"CuratedKeywords":  orNotSpecified(strings.Join(c.cfg.CuratedKeywords, ", ")),
		"Title":            orNotSpecified(truncate(title, 500)),
		"Description":      orNotSpecified(truncate(description, maxPromptRunes)),
	})
}

func bulletList(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteByte('\n')
	}
	return orNotSpecified(strings.TrimSuffix(sb.String(), "\n"))
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return notSpecifiedStr
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
