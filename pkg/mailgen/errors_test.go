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
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		provider Provider
		status   int
		want     ErrorKind
	}{
		{ProviderOpenAI, 401, ErrInvalidAPIKey},
		{ProviderGemini, 403, ErrInvalidAPIKey},
		{ProviderAnthropic, 401, ErrInvalidAPIKey},
		{ProviderOpenAI, 429, ErrRateLimitExceeded},
		{ProviderOpenAI, 500, ErrorKind("OPENAI_API_ERROR_500")},
		{ProviderGemini, 400, ErrorKind("GEMINI_API_ERROR_400")},
		{ProviderAnthropic, 529, ErrorKind("ANTHROPIC_API_ERROR_529")},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.provider, tt.status); got != tt.want {
			t.Errorf("classifyStatus(%s, %d) = %s, want %s", tt.provider, tt.status, got, tt.want)
		}
	}
}

func TestFailure(t *testing.T) {
	res := failure(ErrAPIKeyMissing)
	if res.Success {
		t.Errorf("failure result must not be successful")
	}
	if res.ErrorKind != ErrAPIKeyMissing {
		t.Errorf("ErrorKind = %s, want %s", res.ErrorKind, ErrAPIKeyMissing)
	}
	if res.Content != "APIキーが設定されていません。設定からAPIキーを登録してください。" {
		t.Errorf("unexpected user message %q", res.Content)
	}

	// Every fixed kind carries a distinct Japanese message.
	kinds := []ErrorKind{
		ErrAPIKeyMissing, ErrInvalidAPIKey, ErrRateLimitExceeded,
		ErrCORS, ErrTimeout, ErrEmptyResponse, ErrGeneration, ErrAdjustment,
	}
	seen := map[string]ErrorKind{}
	for _, kind := range kinds {
		msg := userMessage(kind)
		if msg == "" {
			t.Errorf("userMessage(%s) is empty", kind)
		}
		if prev, ok := seen[msg]; ok {
			t.Errorf("kinds %s and %s share the message %q", prev, kind, msg)
		}
		seen[msg] = kind
	}

	// Parameterized kinds embed themselves in the generic message.
	generic := userMessage(ErrorKind("OPENAI_API_ERROR_503"))
	if !strings.Contains(generic, "OPENAI_API_ERROR_503") {
		t.Errorf("generic message must name the kind, got %q", generic)
	}
}
