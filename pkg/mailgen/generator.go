// Copyright 2025 Google LLC
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

// Package mailgen is the provider request/response adapter: it assembles the
// prompt for one generation attempt, dispatches it to the OpenAI, Gemini or
// Anthropic wire API based on the model prefix, and normalizes the response
// into a closed set of outcomes. Nothing in here reads ambient state; model,
// keys and prompt all arrive as explicit arguments.
package mailgen

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/henshin-ai/henshin/pkg/journal"
)

// Provider identifies a wire API family.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// ResolveProvider maps a logical model identifier to its provider family by
// prefix. Unrecognized prefixes fall back to the OpenAI-compatible family.
func ResolveProvider(model string) Provider {
	switch {
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o3"):
		return ProviderOpenAI
	case strings.HasPrefix(model, "gemini"):
		return ProviderGemini
	case strings.HasPrefix(model, "claude"):
		return ProviderAnthropic
	default:
		return ProviderOpenAI
	}
}

// forProvider selects the credential matching a resolved provider.
func (k APIKeys) forProvider(p Provider) string {
	switch p {
	case ProviderGemini:
		return k.Gemini
	case ProviderAnthropic:
		return k.Anthropic
	default:
		return k.OpenAI
	}
}

// Generator owns the dispatch table of provider callers plus the optional
// history and journal sinks. It is safe for concurrent use; overlapping
// history writes are last-writer-wins by design (single-user assumption).
type Generator struct {
	callers map[Provider]caller
	history HistoryRecorder
	journal journal.Recorder
}

type generatorConfig struct {
	timeout  time.Duration
	client   *http.Client
	baseURLs map[Provider]string
	history  HistoryRecorder
	journal  journal.Recorder
}

// Option configures a Generator.
type Option func(*generatorConfig)

// WithHistory attaches a recorder that receives every generation attempt.
func WithHistory(h HistoryRecorder) Option {
	return func(c *generatorConfig) { c.history = h }
}

// WithJournal attaches a trace recorder for request/response events.
func WithJournal(r journal.Recorder) Option {
	return func(c *generatorConfig) { c.journal = r }
}

// WithTimeout overrides the per-call deadline (default 120s).
func WithTimeout(d time.Duration) Option {
	return func(c *generatorConfig) { c.timeout = d }
}

// WithBaseURL points one provider family at a different endpoint.
func WithBaseURL(p Provider, url string) Option {
	return func(c *generatorConfig) { c.baseURLs[p] = strings.TrimRight(url, "/") }
}

// WithHTTPClient replaces the shared HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *generatorConfig) { c.client = client }
}

// NewGenerator builds a Generator with one caller per provider family.
func NewGenerator(opts ...Option) *Generator {
	cfg := &generatorConfig{
		timeout: defaultTimeout,
		client:  newHTTPClient(),
		baseURLs: map[Provider]string{
			ProviderOpenAI:    openAIDefaultBaseURL,
			ProviderGemini:    geminiDefaultBaseURL,
			ProviderAnthropic: anthropicDefaultBaseURL,
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Generator{
		callers: map[Provider]caller{
			ProviderOpenAI:    &openAICaller{baseURL: cfg.baseURLs[ProviderOpenAI], client: cfg.client, timeout: cfg.timeout},
			ProviderGemini:    &geminiCaller{baseURL: cfg.baseURLs[ProviderGemini], client: cfg.client, timeout: cfg.timeout},
			ProviderAnthropic: &anthropicCaller{baseURL: cfg.baseURLs[ProviderAnthropic], client: cfg.client, timeout: cfg.timeout},
		},
		history: cfg.history,
		journal: cfg.journal,
	}
}

// GenerateEmail runs one generation attempt end to end. The outcome, success
// or failure, is returned to the caller and appended to history. It never
// returns a Go error: every failure is folded into the Result.
func (g *Generator) GenerateEmail(ctx context.Context, req Request, keys APIKeys) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("generation panicked: %v", r)
			res = failure(ErrGeneration)
		}
		if g.history != nil {
			g.history.Record(req, res)
		}
		g.trace(ctx, "email-generation", req, res)
	}()

	parts := buildPrompt(req)
	return g.dispatch(ctx, parts, req.Model, keys)
}

// AdjustText reworks an already generated body according to a free-text
// instruction, following the same dispatch and normalization contract as
// GenerateEmail. Adjustment attempts are not recorded to history.
func (g *Generator) AdjustText(ctx context.Context, req AdjustRequest, apiKey string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("adjustment panicked: %v", r)
			res = failure(ErrAdjustment)
		}
		g.trace(ctx, "text-adjustment", req, res)
	}()

	parts := buildAdjustPrompt(req)
	provider := ResolveProvider(req.Model)
	if isBlank(apiKey) {
		return failure(ErrAPIKeyMissing)
	}
	return g.call(ctx, provider, parts, req.Model, apiKey)
}

func (g *Generator) dispatch(ctx context.Context, parts promptParts, model string, keys APIKeys) Result {
	provider := ResolveProvider(model)
	apiKey := keys.forProvider(provider)
	if isBlank(apiKey) {
		klog.V(1).Infof("no API key configured for provider %s", provider)
		return failure(ErrAPIKeyMissing)
	}
	return g.call(ctx, provider, parts, model, apiKey)
}

func (g *Generator) call(ctx context.Context, provider Provider, parts promptParts, model, apiKey string) Result {
	c := g.callers[provider]
	if c == nil {
		klog.Errorf("no caller registered for provider %q", provider)
		return failure(ErrGeneration)
	}
	return c.call(ctx, callInput{
		userBlock:    parts.user,
		systemPrompt: parts.system,
		shape:        parts.shape,
		model:        model,
		apiKey:       apiKey,
	})
}

// VerifyKey checks a provider credential against the provider's model
// listing endpoint. Used by the doctor command; never called on the
// generation path.
func (g *Generator) VerifyKey(ctx context.Context, provider Provider, apiKey string) error {
	c := g.callers[provider]
	if c == nil {
		return fmt.Errorf("unknown provider %q", provider)
	}
	return c.verifyKey(ctx, apiKey)
}

// trace writes one attempt to the journal. Journal failures are logged and
// swallowed; tracing never affects the result.
func (g *Generator) trace(ctx context.Context, action string, request, response any) {
	if g.journal == nil {
		return
	}
	err := g.journal.Write(ctx, &journal.Event{
		Timestamp: time.Now(),
		Action:    action,
		Payload: map[string]any{
			"request":  request,
			"response": response,
		},
	})
	if err != nil {
		klog.Warningf("writing journal event: %v", err)
	}
}
