// Package enrich adds AI-generated summaries and categories to cleaned
// records.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/scrape-cleaner/internal/config"
	"github.com/sells-group/scrape-cleaner/internal/model"
	"github.com/sells-group/scrape-cleaner/internal/resilience"
	"github.com/sells-group/scrape-cleaner/pkg/anthropic"
)

// Content keys written by the enricher.
const (
	KeySummary  = "summary"
	KeyCategory = "category"
)

// maxPromptChars bounds the record text sent per request.
const maxPromptChars = 8000

const systemPrompt = `You classify records scraped from web pages.
Given the record fields, reply with a single JSON object and nothing else:
{"summary": "<one sentence>", "category": "<short lowercase label>", "confidence": <0..1>}
confidence is how sure you are that the record text is coherent, on-topic content.`

// textFields are the content fields sent for enrichment, in prompt order.
var textFields = []model.Field{model.FieldTitle, model.FieldDescription, model.FieldText, model.FieldURL}

// Enricher augments a single record in place.
type Enricher interface {
	Enrich(ctx context.Context, rec *model.Record) error
}

// Result is the JSON object the model replies with.
type Result struct {
	Summary    string  `json:"summary"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// AnthropicEnricher enriches records with a Claude model.
type AnthropicEnricher struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	retry     resilience.Policy
	breaker   *resilience.Breaker
	system    []anthropic.SystemBlock

	usage atomic.Pointer[anthropic.TokenUsage]
}

// NewAnthropicEnricher creates an enricher from config. A zero
// RequestsPerSecond disables rate limiting. Transient API errors are retried
// up to MaxRetries times, and BreakerThreshold consecutive failures stop
// further calls for a minute.
func NewAnthropicEnricher(client anthropic.Client, cfg config.AnthropicConfig) *AnthropicEnricher {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	e := &AnthropicEnricher{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		limiter:   rate.NewLimiter(limit, burst),
		retry:     resilience.DefaultPolicy("anthropic"),
		breaker:   resilience.NewBreaker("anthropic", cfg.BreakerThreshold, time.Minute),
		system:    anthropic.BuildCachedSystemBlocks(systemPrompt),
	}
	if cfg.MaxRetries >= 0 {
		e.retry.Attempts = cfg.MaxRetries + 1
	}
	e.usage.Store(&anthropic.TokenUsage{})
	return e
}

// Usage returns the tokens consumed so far.
func (e *AnthropicEnricher) Usage() anthropic.TokenUsage {
	return *e.usage.Load()
}

func (e *AnthropicEnricher) addUsage(u anthropic.TokenUsage) {
	for {
		old := e.usage.Load()
		next := *old
		next.Add(u)
		if e.usage.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Enrich asks the model for a summary and category and stores them as
// content. The record's confidence is lowered to the model's confidence,
// never raised.
func (e *AnthropicEnricher) Enrich(ctx context.Context, rec *model.Record) error {
	prompt := buildPrompt(rec)
	if prompt == "" {
		return eris.Errorf("enrich: record %s has no text fields", rec.ID)
	}

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      e.system,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}
	resp, err := resilience.Call(ctx, e.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.Retry(ctx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "enrich: rate limiter wait")
			}
			return e.client.CreateMessage(ctx, req)
		})
	})
	if err != nil {
		return eris.Wrapf(err, "enrich: record %s", rec.ID)
	}
	e.addUsage(resp.Usage)

	res, err := ParseResult(resp.Text())
	if err != nil {
		return eris.Wrapf(err, "enrich: record %s", rec.ID)
	}

	if res.Summary != "" {
		rec.Content.Set(KeySummary, res.Summary)
	}
	if res.Category != "" {
		rec.Content.Set(KeyCategory, res.Category)
	}
	rec.ConfidenceScore = math.Min(rec.ConfidenceScore, res.Confidence)

	zap.L().Debug("enrich: record enriched",
		zap.String("record_id", rec.ID),
		zap.String("category", res.Category),
		zap.Float64("confidence", rec.ConfidenceScore),
	)
	return nil
}

// ParseResult decodes the model reply. Code fences and surrounding prose are
// tolerated. Confidence is clamped to [0,1].
func ParseResult(text string) (Result, error) {
	var res Result
	if err := json.Unmarshal([]byte(cleanJSON(text)), &res); err != nil {
		return res, eris.Wrap(err, "enrich: parse response")
	}
	res.Summary = strings.TrimSpace(res.Summary)
	res.Category = strings.ToLower(strings.TrimSpace(res.Category))
	switch {
	case math.IsNaN(res.Confidence) || res.Confidence < 0:
		res.Confidence = 0
	case res.Confidence > 1:
		res.Confidence = 1
	}
	return res, nil
}

func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func buildPrompt(rec *model.Record) string {
	var b strings.Builder
	for _, f := range textFields {
		v, ok := rec.Content.Get(string(f))
		if !ok || model.IsBlank(v) {
			continue
		}
		fmt.Fprintf(&b, "%s: %v\n", f, v)
	}
	if b.Len() == 0 {
		return ""
	}
	out := b.String()
	if len(out) > maxPromptChars {
		out = strings.ToValidUTF8(out[:maxPromptChars], "")
	}
	return out
}

// Summary reports the outcome of EnrichAll.
type Summary struct {
	Enriched int
	Failed   int
}

// EnrichAll enriches every record with up to concurrency requests in flight.
// Per-record failures are logged and counted; only context cancellation
// aborts the batch.
func EnrichAll(ctx context.Context, e Enricher, records []model.Record, concurrency int) (Summary, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	log := zap.L().With(zap.String("component", "enrich"))

	var enriched, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range records {
		rec := &records[i]
		g.Go(func() error {
			if err := e.Enrich(gctx, rec); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				log.Warn("enrich: record failed", zap.String("record_id", rec.ID), zap.Error(err))
				return nil
			}
			enriched.Add(1)
			return nil
		})
	}

	err := g.Wait()
	sum := Summary{Enriched: int(enriched.Load()), Failed: int(failed.Load())}
	if err != nil {
		return sum, eris.Wrap(err, "enrich: batch cancelled")
	}

	log.Info("enrich: batch complete",
		zap.Int("records", len(records)),
		zap.Int("enriched", sum.Enriched),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}
