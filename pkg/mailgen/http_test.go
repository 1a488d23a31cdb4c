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
	"errors"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		shape outputShape
		want  Result
	}{
		{
			name:  "email shape",
			raw:   `{"subject": "ご連絡", "content": "本文です"}`,
			shape: shapeEmail,
			want:  Result{Subject: "ご連絡", Content: "本文です", Success: true},
		},
		{
			name:  "message shape drops subject",
			raw:   `{"subject": "ご連絡", "content": "本文です"}`,
			shape: shapeMessage,
			want:  Result{Content: "本文です", Success: true},
		},
		{
			name:  "fenced json",
			raw:   "```json\n{\"subject\": \"件名\", \"content\": \"本文\"}\n```",
			shape: shapeEmail,
			want:  Result{Subject: "件名", Content: "本文", Success: true},
		},
		{
			name:  "plain text degrades",
			raw:   "お世話になっております。本文のみの応答です。",
			shape: shapeEmail,
			want:  Result{Content: "お世話になっております。本文のみの応答です。", Success: true, Degraded: true},
		},
		{
			name:  "blank raw",
			raw:   "   \n",
			shape: shapeEmail,
			want:  failure(ErrEmptyResponse),
		},
		{
			name:  "json with blank content",
			raw:   `{"subject": "件名", "content": "  "}`,
			shape: shapeEmail,
			want:  failure(ErrEmptyResponse),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeText(tt.raw, tt.shape); got != tt.want {
				t.Errorf("normalizeText() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTrimCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no fence", in: `{"content": "x"}`, want: `{"content": "x"}`},
		{name: "fence with language tag", in: "```json\n{\"content\": \"x\"}\n```", want: `{"content": "x"}`},
		{name: "fence without language tag", in: "```\n{\"content\": \"x\"}\n```", want: `{"content": "x"}`},
		{name: "fence on same line as payload", in: "```{\"content\": \"x\"}```", want: `{"content": "x"}`},
		{name: "surrounding whitespace", in: "  ```json\n{}\n```  ", want: "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trimCodeFence(tt.in); got != tt.want {
				t.Errorf("trimCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestTransportFailure(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
		err      error
		want     ErrorKind
	}{
		{name: "deadline exceeded", provider: ProviderOpenAI, err: context.DeadlineExceeded, want: ErrTimeout},
		{name: "wrapped deadline", provider: ProviderGemini, err: errors.Join(errors.New("Do"), context.DeadlineExceeded), want: ErrTimeout},
		{name: "net timeout", provider: ProviderAnthropic, err: timeoutErr{}, want: ErrTimeout},
		{name: "anthropic connection refused", provider: ProviderAnthropic, err: errors.New("connection refused"), want: ErrCORS},
		{name: "openai connection refused", provider: ProviderOpenAI, err: errors.New("connection refused"), want: ErrGeneration},
		{name: "gemini connection refused", provider: ProviderGemini, err: errors.New("connection refused"), want: ErrGeneration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transportFailure(tt.provider, tt.err); got.ErrorKind != tt.want {
				t.Errorf("transportFailure(%s, %v) kind = %s, want %s", tt.provider, tt.err, got.ErrorKind, tt.want)
			}
		})
	}
}
