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

const openAIDefaultBaseURL = "https://api.openai.com"

// openAICaller talks to the OpenAI-compatible chat completions API. It also
// serves as the default family for unrecognized model prefixes.
type openAICaller struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAICaller) call(ctx context.Context, in callInput) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := openAIRequest{
		Model: in.model,
		Messages: []openAIMessage{
			{Role: "system", Content: in.systemPrompt},
			{Role: "user", Content: in.userBlock},
		},
		Temperature: 0.7,
	}
	reqBody.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(reqBody)
	if err != nil {
		klog.Errorf("marshalling openai request: %v", err)
		return failure(ErrGeneration)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		klog.Errorf("building openai request: %v", err)
		return failure(ErrGeneration)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+in.apiKey)

	klog.V(1).InfoS("calling openai chat completions", "model", in.model)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return transportFailure(ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		klog.Warningf("openai returned status %d", resp.StatusCode)
		return failure(classifyStatus(ProviderOpenAI, resp.StatusCode))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		klog.Errorf("reading openai response: %v", err)
		return failure(ErrGeneration)
	}

	var envelope openAIResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		klog.Errorf("parsing openai envelope: %v", err)
		return failure(ErrGeneration)
	}
	if len(envelope.Choices) == 0 {
		return failure(ErrEmptyResponse)
	}

	return normalizeText(envelope.Choices[0].Message.Content, in.shape)
}

func (c *openAICaller) verifyKey(ctx context.Context, apiKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return verifyEndpoint(ctx, c.client, req, ProviderOpenAI)
}
