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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"k8s.io/klog/v2"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

// geminiCaller talks to the Gemini generateContent API. The key travels as a
// query parameter, and JSON output is requested via responseMimeType since
// Gemini has no message-level response_format.
type geminiCaller struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction geminiContent   `json:"system_instruction"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature      float64 `json:"temperature"`
		ResponseMimeType string  `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *geminiCaller) call(ctx context.Context, in callInput) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := geminiRequest{
		SystemInstruction: geminiContent{Parts: []geminiPart{{Text: in.systemPrompt}}},
		Contents:          []geminiContent{{Parts: []geminiPart{{Text: in.userBlock}}}},
	}
	reqBody.GenerationConfig.Temperature = 0.7
	reqBody.GenerationConfig.ResponseMimeType = "application/json"

	body, err := json.Marshal(reqBody)
	if err != nil {
		klog.Errorf("marshalling gemini request: %v", err)
		return failure(ErrGeneration)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(in.model), url.QueryEscape(in.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		klog.Errorf("building gemini request: %v", err)
		return failure(ErrGeneration)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	klog.V(1).InfoS("calling gemini generateContent", "model", in.model)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return transportFailure(ProviderGemini, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		klog.Warningf("gemini returned status %d", resp.StatusCode)
		return failure(classifyStatus(ProviderGemini, resp.StatusCode))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		klog.Errorf("reading gemini response: %v", err)
		return failure(ErrGeneration)
	}

	var envelope geminiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		klog.Errorf("parsing gemini envelope: %v", err)
		return failure(ErrGeneration)
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return failure(ErrEmptyResponse)
	}

	return normalizeText(envelope.Candidates[0].Content.Parts[0].Text, in.shape)
}

func (c *geminiCaller) verifyKey(ctx context.Context, apiKey string) error {
	endpoint := c.baseURL + "/v1beta/models?key=" + url.QueryEscape(apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return verifyEndpoint(ctx, c.client, req, ProviderGemini)
}
