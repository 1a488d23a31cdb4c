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

package mailgen

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testGenerator(t *testing.T, provider Provider, handler http.HandlerFunc, opts ...Option) (*Generator, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append(opts, WithBaseURL(provider, srv.URL), WithHTTPClient(srv.Client()))
	return NewGenerator(opts...), srv
}

func TestOpenAICall(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody openAIRequest
	g, _ := testGenerator(t, ProviderOpenAI, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"subject": "件名", "content": "本文"}`}},
			},
		})
	})

	req := Request{SenderName: "山田", ReceivedMessage: "受信文", ResponseOutline: "要点", Model: "gpt-4o"}
	res := g.GenerateEmail(context.Background(), req, APIKeys{OpenAI: "sk-test"})

	if !res.Success || res.Subject != "件名" || res.Content != "本文" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o" || gotBody.ResponseFormat.Type != "json_object" {
		t.Errorf("request body model=%q format=%q", gotBody.Model, gotBody.ResponseFormat.Type)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" || gotBody.Messages[1].Role != "user" {
		t.Errorf("unexpected messages %+v", gotBody.Messages)
	}
}

func TestOpenAIStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{401, ErrInvalidAPIKey},
		{403, ErrInvalidAPIKey},
		{429, ErrRateLimitExceeded},
		{500, ErrorKind("OPENAI_API_ERROR_500")},
	}
	for _, tt := range tests {
		g, _ := testGenerator(t, ProviderOpenAI, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		res := g.GenerateEmail(context.Background(), Request{Model: "gpt-4o"}, APIKeys{OpenAI: "sk"})
		if res.Success || res.ErrorKind != tt.want {
			t.Errorf("status %d: got %+v, want kind %s", tt.status, res, tt.want)
		}
	}
}

func TestOpenAIDegradedFallback(t *testing.T) {
	raw := "これはJSONではないプレーンテキストの応答です。"
	g, _ := testGenerator(t, ProviderOpenAI, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": raw}},
			},
		})
	})
	res := g.GenerateEmail(context.Background(), Request{Model: "gpt-4o"}, APIKeys{OpenAI: "sk"})
	if !res.Success || !res.Degraded || res.Content != raw || res.Subject != "" {
		t.Fatalf("want degraded raw-text result, got %+v", res)
	}
}

func TestOpenAIEmptyChoices(t *testing.T) {
	g, _ := testGenerator(t, ProviderOpenAI, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})
	res := g.GenerateEmail(context.Background(), Request{Model: "gpt-4o"}, APIKeys{OpenAI: "sk"})
	if res.ErrorKind != ErrEmptyResponse {
		t.Fatalf("want EMPTY_RESPONSE, got %+v", res)
	}
}

func TestOpenAITimeout(t *testing.T) {
	g, _ := testGenerator(t, ProviderOpenAI, func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client disconnect and
		// cancels the request context; otherwise srv.Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}, WithTimeout(50*time.Millisecond))
	res := g.GenerateEmail(context.Background(), Request{Model: "gpt-4o"}, APIKeys{OpenAI: "sk"})
	if res.ErrorKind != ErrTimeout {
		t.Fatalf("want TIMEOUT, got %+v", res)
	}
}

func TestGeminiCall(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest
	g, _ := testGenerator(t, ProviderGemini, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{
					{"text": `{"subject": "件名", "content": "本文"}`},
				}}},
			},
		})
	})

	req := Request{SenderName: "山田", ReceivedMessage: "受信文", Model: "gemini-2.0-flash"}
	res := g.GenerateEmail(context.Background(), req, APIKeys{Gemini: "AI-test"})

	if !res.Success || res.Content != "本文" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotPath != "/v1beta/models/gemini-2.0-flash:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "AI-test" {
		t.Errorf("key query = %q", gotKey)
	}
	if gotBody.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("responseMimeType = %q", gotBody.GenerationConfig.ResponseMimeType)
	}
	if len(gotBody.SystemInstruction.Parts) != 1 || gotBody.SystemInstruction.Parts[0].Text == "" {
		t.Errorf("system instruction missing: %+v", gotBody.SystemInstruction)
	}
}

func TestGeminiStatusAndEmpty(t *testing.T) {
	g, _ := testGenerator(t, ProviderGemini, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
	})
	res := g.GenerateEmail(context.Background(), Request{Model: "gemini-2.0-flash"}, APIKeys{Gemini: "k"})
	if res.ErrorKind != ErrRateLimitExceeded {
		t.Errorf("want RATE_LIMIT_EXCEEDED, got %+v", res)
	}

	g, _ = testGenerator(t, ProviderGemini, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	})
	res = g.GenerateEmail(context.Background(), Request{Model: "gemini-2.0-flash"}, APIKeys{Gemini: "k"})
	if res.ErrorKind != ErrEmptyResponse {
		t.Errorf("want EMPTY_RESPONSE for no candidates, got %+v", res)
	}
}

func TestAnthropicCall(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotBody anthropicRequest
	g, _ := testGenerator(t, ProviderAnthropic, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "thinking", "text": ""},
				{"type": "text", "text": "```json\n{\"subject\": \"件名\", \"content\": \"本文\"}\n```"},
			},
		})
	})

	req := Request{SenderName: "山田", ReceivedMessage: "受信文", Model: "claude-3-haiku"}
	res := g.GenerateEmail(context.Background(), req, APIKeys{Anthropic: "sk-ant"})

	if !res.Success || res.Subject != "件名" || res.Content != "本文" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotPath != "/v1/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "sk-ant" || gotVersion != anthropicVersion {
		t.Errorf("headers key=%q version=%q", gotKey, gotVersion)
	}
	if gotBody.MaxTokens != anthropicMaxTokens {
		t.Errorf("max_tokens = %d, want %d", gotBody.MaxTokens, anthropicMaxTokens)
	}
	if gotBody.System == "" {
		t.Errorf("system prompt missing from request body")
	}
}

func TestAnthropicNoTextBlock(t *testing.T) {
	g, _ := testGenerator(t, ProviderAnthropic, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"content": []any{}})
	})
	res := g.GenerateEmail(context.Background(), Request{Model: "claude-3-haiku"}, APIKeys{Anthropic: "sk"})
	if res.ErrorKind != ErrEmptyResponse {
		t.Fatalf("want EMPTY_RESPONSE, got %+v", res)
	}
}

func TestAnthropicConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := srv.Client()
	srv.Close()

	g := NewGenerator(WithBaseURL(ProviderAnthropic, srv.URL), WithHTTPClient(client))
	res := g.GenerateEmail(context.Background(), Request{Model: "claude-3-haiku"}, APIKeys{Anthropic: "sk"})
	if res.ErrorKind != ErrCORS {
		t.Fatalf("want CORS_ERROR for anthropic transport failure, got %+v", res)
	}
}

func TestVerifyKey(t *testing.T) {
	var gotPath string
	g, _ := testGenerator(t, ProviderOpenAI, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("Authorization") != "Bearer sk-good" {
			w.WriteHeader(401)
			return
		}
		w.WriteHeader(200)
	})

	if err := g.VerifyKey(context.Background(), ProviderOpenAI, "sk-good"); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
	if gotPath != "/v1/models" {
		t.Errorf("path = %q", gotPath)
	}

	err := g.VerifyKey(context.Background(), ProviderOpenAI, "sk-bad")
	if err == nil || !strings.Contains(err.Error(), string(ErrInvalidAPIKey)) {
		t.Errorf("invalid key: err = %v, want %s", err, ErrInvalidAPIKey)
	}

	if err := g.VerifyKey(context.Background(), Provider("mystery"), "k"); err == nil {
		t.Errorf("unknown provider must error")
	}
}
