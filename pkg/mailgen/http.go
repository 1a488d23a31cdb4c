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
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// defaultTimeout bounds each provider call. There is exactly one request per
// invocation and no retry; on expiry the in-flight call is aborted and the
// attempt reports TIMEOUT.
const defaultTimeout = 120 * time.Second

// newHTTPClient builds the shared transport for provider callers. The
// per-attempt deadline is enforced with a request context, not the client
// Timeout, so tests can shorten it per generator.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// callInput is the per-provider caller contract: a tagged input block, the
// assembled system prompt, the JSON shape the model must answer in, and the
// model/key pair selected by the dispatcher.
type callInput struct {
	userBlock    string
	systemPrompt string
	shape        outputShape
	model        string
	apiKey       string
}

// caller performs the provider-specific HTTP call and normalizes the outcome.
type caller interface {
	call(ctx context.Context, in callInput) Result

	// verifyKey checks a credential against the provider's model listing
	// endpoint without generating anything.
	verifyKey(ctx context.Context, apiKey string) error
}

// verifyEndpoint performs the shared GET used by the verifyKey
// implementations and classifies the status.
func verifyEndpoint(ctx context.Context, client *http.Client, req *http.Request, provider Provider) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: %s", provider, classifyStatus(provider, resp.StatusCode))
	}
	return nil
}

// transportFailure classifies an error returned by http.Client.Do. Deadline
// expiry is TIMEOUT for every family; any other transport error on the
// Anthropic family keeps the original CORS classification (the browser-blocked
// failure mode the taxonomy was built around), so the guidance to switch
// providers survives.
func transportFailure(provider Provider, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) {
		return failure(ErrTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failure(ErrTimeout)
	}
	if provider == ProviderAnthropic {
		return failure(ErrCORS)
	}
	klog.Errorf("%s request failed: %v", provider, err)
	return failure(ErrGeneration)
}

// payload is the JSON document the model is instructed to produce.
type payload struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// normalizeText turns the provider's raw text into a Result according to the
// requested shape. Well-formed JSON with blank content is EMPTY_RESPONSE;
// malformed JSON degrades to the raw text as content. Shared by all callers.
func normalizeText(raw string, shape outputShape) Result {
	if isBlank(raw) {
		return failure(ErrEmptyResponse)
	}

	var p payload
	if err := json.Unmarshal([]byte(trimCodeFence(raw)), &p); err != nil {
		klog.V(1).Infof("response is not the requested JSON shape, falling back to raw text: %v", err)
		return Result{Content: raw, Success: true, Degraded: true}
	}

	if isBlank(p.Content) {
		return failure(ErrEmptyResponse)
	}

	res := Result{Content: p.Content, Success: true}
	if shape == shapeEmail {
		res.Subject = p.Subject
	}
	return res
}

// trimCodeFence strips a surrounding markdown code fence, which models
// without a native JSON response mode tend to add.
func trimCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{}") {
		// drop a language tag such as "json"
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
