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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"k8s.io/klog/v2"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTokens      = 4096
)

// anthropicCaller talks to the Anthropic Messages API. Unlike the other two
// families there is no native JSON response mode, so the output-format
// instruction in the system prompt does all the work and fence-wrapped
// payloads are expected.
type anthropicCaller struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *anthropicCaller) call(ctx context.Context, in callInput) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := anthropicRequest{
		Model:     in.model,
		MaxTokens: anthropicMaxTokens,
		System:    in.systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: in.userBlock},
		},
		Temperature: 0.7,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		klog.Errorf("marshalling anthropic request: %v", err)
		return failure(ErrGeneration)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		klog.Errorf("building anthropic request: %v", err)
		return failure(ErrGeneration)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", in.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	klog.V(1).InfoS("calling anthropic messages", "model", in.model)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return transportFailure(ProviderAnthropic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		klog.Warningf("anthropic returned status %d", resp.StatusCode)
		return failure(classifyStatus(ProviderAnthropic, resp.StatusCode))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		klog.Errorf("reading anthropic response: %v", err)
		return failure(ErrGeneration)
	}

	var envelope anthropicResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		klog.Errorf("parsing anthropic envelope: %v", err)
		return failure(ErrGeneration)
	}

	for _, block := range envelope.Content {
		if block.Type == "text" {
			return normalizeText(block.Text, in.shape)
		}
	}
	return failure(ErrEmptyResponse)
}

func (c *anthropicCaller) verifyKey(ctx context.Context, apiKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return verifyEndpoint(ctx, c.client, req, ProviderAnthropic)
}
