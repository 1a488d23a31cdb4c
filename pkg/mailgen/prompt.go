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
	"fmt"
	"strings"
	"time"
)

// DefaultRecipientName is used when the request leaves the recipient blank.
const DefaultRecipientName = "様"

// DefaultSystemPrompt is the built-in instruction block, used whenever the
// request does not carry its own.
const DefaultSystemPrompt = `あなたはプロフェッショナルなメール返信支援AIです。XML形式で提供される情報に基づいて、丁寧で適切な日本語のビジネス文章を作成してください。

## 作成のガイドライン
1. 日本のビジネスマナーに沿った丁寧な言葉遣いを使用してください
2. 日付に応じた季節の挨拶や時候の挨拶を含めてください
3. 受信者名と送信者名を適切に使用し、敬称を付けてください
4. 提供された署名は一切変更せず、完全に同じ形式（スペース、改行、書式など）で適切な場所に配置してください
5. 文脈に応じて適切な結びの言葉を使用してください`

// Task instructions appended to the system prompt. Which one is used depends
// on whether a received message is present and on the output mode.
const (
	taskReplyEmail = `## タスク
<input>ブロックには current_date, signatures, sender_name, received_message, response_outline が含まれます。受信したメッセージへの返信メールを、返信の要点に沿って作成してください。`

	taskReplyMessage = `## タスク
<input>ブロックには current_date, signatures, sender_name, received_message, response_outline が含まれます。受信したメッセージへの返信を、チャットメッセージとして返信の要点に沿って作成してください。件名は不要です。`

	taskNewEmail = `## タスク
<input>ブロックには current_date, signatures, sender_name, email_content_outline が含まれます。概要に沿った新規メールを作成してください。`

	taskNewMessage = `## タスク
<input>ブロックには current_date, signatures, sender_name, email_content_outline が含まれます。概要に沿った新規のチャットメッセージを作成してください。件名は不要です。`
)

// Output-format instructions. The provider is asked to answer in exactly the
// JSON shape the caller will parse.
const (
	outputFormatEmail = `## 出力形式
必ず次のJSON形式のみで出力してください。他のテキストは含めないでください:
{"subject": "件名", "content": "本文"}`

	outputFormatMessage = `## 出力形式
必ず次のJSON形式のみで出力してください。他のテキストは含めないでください:
{"content": "本文"}`
)

// outputShape identifies the JSON document the provider must return.
type outputShape int

const (
	shapeEmail   outputShape = iota // {"subject", "content"}
	shapeMessage                    // {"content"}
)

// promptParts is the fully assembled prompt for one attempt.
type promptParts struct {
	system string
	user   string
	shape  outputShape
}

// NormalizeDate coerces a date value to YYYY-MM-DD. It accepts the target
// format itself, RFC 3339 timestamps, and a few common layouts; anything
// unparseable is passed through verbatim so the builder never fails.
func NormalizeDate(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return ""
	}
	layouts := []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006/01/02",
		"2006年1月2日",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return date
}

// isBlank reports whether s is empty or whitespace-only.
func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// buildPrompt turns a Request into the system prompt and tagged input block.
// It is a pure function of the request: no I/O, no randomness, and it never
// fails — missing optional fields degrade to empty-string defaults.
func buildPrompt(req Request) promptParts {
	mode := req.Mode
	if mode == "" {
		mode = ModeEmail
	}
	newMessage := isBlank(req.ReceivedMessage)

	var user strings.Builder
	user.WriteString("<input>\n")
	writeTag(&user, "current_date", NormalizeDate(req.Date))
	writeTag(&user, "signatures", req.Signatures)
	writeTag(&user, "sender_name", req.SenderName)
	if !newMessage {
		recipient := req.RecipientName
		if isBlank(recipient) {
			recipient = DefaultRecipientName
		}
		writeTag(&user, "recipient_name", recipient)
		writeTag(&user, "received_message", req.ReceivedMessage)
		writeTag(&user, "response_outline", req.ResponseOutline)
	} else {
		writeTag(&user, "email_content_outline", req.ResponseOutline)
	}
	user.WriteString("</input>")

	var system strings.Builder
	base := req.SystemPrompt
	if isBlank(base) {
		base = DefaultSystemPrompt
	}
	system.WriteString(base)
	system.WriteString("\n\n")
	system.WriteString(taskInstruction(newMessage, mode))

	if style := styleAdjustments(req.Tone, req.Length); style != "" {
		system.WriteString("\n\n")
		system.WriteString(style)
	}
	if examples := styleExamples(req.StyleExamples); examples != "" {
		system.WriteString("\n\n")
		system.WriteString(examples)
	}

	shape := shapeEmail
	outputFormat := outputFormatEmail
	if mode == ModeMessage {
		shape = shapeMessage
		outputFormat = outputFormatMessage
	}
	system.WriteString("\n\n")
	system.WriteString(outputFormat)

	return promptParts{
		system: system.String(),
		user:   user.String(),
		shape:  shape,
	}
}

// buildAdjustPrompt assembles the prompt for the text-adjustment path: the
// current body plus a free-text instruction, following the same contract as
// generation. Adjustments always return content only, never a subject.
func buildAdjustPrompt(req AdjustRequest) promptParts {
	var system strings.Builder
	base := req.SystemPrompt
	if isBlank(base) {
		base = DefaultSystemPrompt
	}
	system.WriteString(base)
	system.WriteString("\n\n")
	system.WriteString(`## タスク
<current_text>の文章を、<adjustment_instruction>の指示に従って調整してください。文章の意味と事実関係は保ったまま、指示された点のみを変更してください。`)

	if style := styleAdjustments(req.Tone, req.Length); style != "" {
		system.WriteString("\n\n")
		system.WriteString(style)
	}
	system.WriteString("\n\n")
	system.WriteString(outputFormatMessage)

	var user strings.Builder
	user.WriteString("<input>\n")
	writeTag(&user, "current_text", req.CurrentText)
	writeTag(&user, "adjustment_instruction", req.CustomPrompt)
	user.WriteString("</input>")

	return promptParts{
		system: system.String(),
		user:   user.String(),
		shape:  shapeMessage,
	}
}

func writeTag(b *strings.Builder, tag, value string) {
	fmt.Fprintf(b, "  <%s>%s</%s>\n", tag, value, tag)
}

func taskInstruction(newMessage bool, mode Mode) string {
	switch {
	case newMessage && mode == ModeMessage:
		return taskNewMessage
	case newMessage:
		return taskNewEmail
	case mode == ModeMessage:
		return taskReplyMessage
	default:
		return taskReplyEmail
	}
}

// styleAdjustments renders the tone/length sliders as fixed natural-language
// directives. Each 0-100 value is bucketed into four ranges; boundary values
// 25, 50 and 75 belong to the lower bucket. A nil slider omits its directive.
func styleAdjustments(tone, length *int) string {
	var directives []string
	if tone != nil {
		directives = append(directives, toneDirective(*tone))
	}
	if length != nil {
		directives = append(directives, lengthDirective(*length))
	}
	if len(directives) == 0 {
		return ""
	}
	return "## スタイル調整\n" + strings.Join(directives, "\n")
}

func toneDirective(tone int) string {
	switch {
	case tone <= 25:
		return "非常にフォーマルで格式高い文体にしてください。"
	case tone <= 50:
		return "フォーマルで丁寧な文体にしてください。"
	case tone <= 75:
		return "ほどよく砕けた、親しみやすい文体にしてください。"
	default:
		return "カジュアルで気さくな文体にしてください。"
	}
}

func lengthDirective(length int) string {
	switch {
	case length <= 25:
		return "できるだけ簡潔に、要点のみをまとめてください。"
	case length <= 50:
		return "簡潔にまとめつつ、必要な情報は盛り込んでください。"
	case length <= 75:
		return "ある程度詳しく、具体的に説明してください。"
	default:
		return "非常に詳細に、丁寧に説明してください。"
	}
}

// styleExamples renders up to MaxStyleExamples few-shot references, each
// prefixed "Example N:". Blank entries are skipped without renumbering gaps.
func styleExamples(examples []string) string {
	var b strings.Builder
	n := 0
	for _, example := range examples {
		if isBlank(example) {
			continue
		}
		if n == MaxStyleExamples {
			break
		}
		n++
		if n == 1 {
			b.WriteString("## 文体の参考例\n以下の例文の文体や言い回しを参考にしてください。\n")
		}
		fmt.Fprintf(&b, "\nExample %d:\n%s\n", n, example)
	}
	return strings.TrimRight(b.String(), "\n")
}
