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

// Mode selects the output shape of a generation: a full email carries a
// subject line, a chat message does not.
type Mode string

const (
	ModeEmail   Mode = "email"
	ModeMessage Mode = "message"
)

// MaxStyleExamples caps the number of few-shot style references included in
// the system prompt.
const MaxStyleExamples = 5

// Request describes one generation attempt. It is treated as immutable: the
// caller builds it fresh per submission and the adapter never mutates it.
type Request struct {
	// Date is the calendar date for the email, normalized to YYYY-MM-DD by
	// the prompt builder regardless of the input representation.
	Date string `json:"date"`

	// Signatures is the verbatim signature block, possibly empty.
	Signatures string `json:"signatures"`

	// SenderName is required non-empty for submission; the form layer
	// enforces that, not this adapter.
	SenderName string `json:"senderName"`

	// RecipientName defaults to the generic honorific when absent.
	RecipientName string `json:"recipientName,omitempty"`

	// ReceivedMessage being blank (empty or whitespace-only) switches the
	// prompt into "compose new message" mode instead of "reply" mode.
	ReceivedMessage string `json:"receivedMessage,omitempty"`

	// ResponseOutline describes the desired reply content.
	ResponseOutline string `json:"responseOutline"`

	// Model is a logical, provider-prefixed model identifier
	// (e.g. "gpt-4o", "gemini-2.0-flash", "claude-3-haiku").
	Model string `json:"model"`

	// SystemPrompt overrides the built-in instruction block when non-empty.
	SystemPrompt string `json:"systemPrompt,omitempty"`

	// StyleExamples holds up to MaxStyleExamples few-shot style references.
	StyleExamples []string `json:"styleExamples,omitempty"`

	// Tone ranges 0 (most formal) to 100 (most casual); nil omits the
	// directive.
	Tone *int `json:"tone,omitempty"`

	// Length ranges 0 (most concise) to 100 (most detailed); nil omits the
	// directive.
	Length *int `json:"length,omitempty"`

	// Mode selects the output shape; empty defaults to ModeEmail.
	Mode Mode `json:"mode,omitempty"`
}

// AdjustRequest describes one text-adjustment attempt: an already generated
// body plus a free-text instruction, instead of the structured fields.
type AdjustRequest struct {
	CurrentText  string `json:"currentText"`
	CustomPrompt string `json:"customPrompt"`
	Tone         *int   `json:"tone,omitempty"`
	Length       *int   `json:"length,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// Result is the canonical outcome of a generation or adjustment attempt.
// Failures never propagate as Go errors across the adapter boundary; they
// arrive here with Success=false, a machine-readable ErrorKind and a
// user-facing Japanese message in Content.
type Result struct {
	// Subject is present only for email-mode generations that parsed
	// structurally.
	Subject string `json:"subject,omitempty"`

	// Content is the body text on success, or the localized error message
	// on failure. Blank content is always a failure even when the transport
	// succeeded.
	Content string `json:"content"`

	Success bool `json:"success"`

	// Degraded marks the raw-text fallback: the provider answered 2xx but
	// its payload was not the requested JSON shape, so Content carries the
	// raw text and Subject is empty.
	Degraded bool `json:"degraded,omitempty"`

	// ErrorKind is set when Success is false.
	ErrorKind ErrorKind `json:"error,omitempty"`
}

// APIKeys carries the per-provider credentials. The adapter reads the one
// matching the resolved provider; a blank key short-circuits the call.
type APIKeys struct {
	OpenAI    string `json:"openai,omitempty"`
	Gemini    string `json:"gemini,omitempty"`
	Anthropic string `json:"anthropic,omitempty"`
}

// HistoryRecorder receives every generation attempt, success or failure.
// The adjustment path intentionally bypasses it.
type HistoryRecorder interface {
	Record(req Request, res Result)
}
