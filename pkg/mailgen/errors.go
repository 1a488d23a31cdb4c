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
	"net/http"
	"strings"
)

// ErrorKind is the closed taxonomy of adapter failures. The generic HTTP
// case is parameterized as <PROVIDER>_API_ERROR_<status>; everything else is
// one of the fixed kinds below.
type ErrorKind string

const (
	ErrAPIKeyMissing     ErrorKind = "API_KEY_MISSING"
	ErrInvalidAPIKey     ErrorKind = "INVALID_API_KEY"
	ErrRateLimitExceeded ErrorKind = "RATE_LIMIT_EXCEEDED"
	ErrCORS              ErrorKind = "CORS_ERROR"
	ErrTimeout           ErrorKind = "TIMEOUT"
	ErrEmptyResponse     ErrorKind = "EMPTY_RESPONSE"
	ErrGeneration        ErrorKind = "GENERATION_ERROR"
	ErrAdjustment        ErrorKind = "ADJUSTMENT_ERROR"
)

// classifyStatus maps a non-2xx HTTP status to an error kind. Auth and rate
// limit failures are provider-independent; everything else carries the
// provider tag and status so the user can report it.
func classifyStatus(provider Provider, status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrInvalidAPIKey
	case http.StatusTooManyRequests:
		return ErrRateLimitExceeded
	default:
		return ErrorKind(fmt.Sprintf("%s_API_ERROR_%d", strings.ToUpper(string(provider)), status))
	}
}

// userMessage returns the Japanese user-facing text for a failure. These
// strings double as the Content of failed Results and are displayed as-is.
func userMessage(kind ErrorKind) string {
	switch kind {
	case ErrAPIKeyMissing:
		return "APIキーが設定されていません。設定からAPIキーを登録してください。"
	case ErrInvalidAPIKey:
		return "APIキーが無効です。設定を確認してください。"
	case ErrRateLimitExceeded:
		return "APIのレート制限に達しました。しばらく待ってから再試行してください。"
	case ErrCORS:
		return "Claude APIへの接続がブロックされました。別のプロバイダーへの切り替えをお試しください。"
	case ErrTimeout:
		return "応答がタイムアウトしました。もう一度お試しください。"
	case ErrEmptyResponse:
		return "AIからの応答が空でした。入力内容を変更して再試行してください。"
	case ErrAdjustment:
		return "文章調整中にエラーが発生しました。もう一度お試しください。"
	case ErrGeneration:
		return "メール生成中にエラーが発生しました。もう一度お試しください。"
	default:
		// <PROVIDER>_API_ERROR_<status>
		return fmt.Sprintf("APIエラーが発生しました (%s)。もう一度お試しください。", kind)
	}
}

// failure builds the canonical failed Result for a kind.
func failure(kind ErrorKind) Result {
	return Result{
		Content:   userMessage(kind),
		Success:   false,
		ErrorKind: kind,
	}
}
