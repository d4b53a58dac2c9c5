// Copyright 2026 Weft Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package llm

import "fmt"

// APIErrorCode classifies provider API failures into a fixed table. The
// engine renders these as assistant content and does not retry; retry
// policy belongs to the provider client.
type APIErrorCode string

const (
	ErrCodeAuth        APIErrorCode = "auth_failed"
	ErrCodeRateLimited APIErrorCode = "rate_limited"
	ErrCodeQuota       APIErrorCode = "quota_exceeded"
	ErrCodeContextLen  APIErrorCode = "context_length_exceeded"
	ErrCodeBadRequest  APIErrorCode = "bad_request"
	ErrCodeServer      APIErrorCode = "server_error"
	ErrCodeTimeout     APIErrorCode = "timeout"
	ErrCodeUnknown     APIErrorCode = "unknown"
)

// CodeFromHTTPStatus maps an HTTP status to the fixed error code table.
func CodeFromHTTPStatus(status int) APIErrorCode {
	switch {
	case status == 401 || status == 403:
		return ErrCodeAuth
	case status == 429:
		return ErrCodeRateLimited
	case status == 402:
		return ErrCodeQuota
	case status == 400 || status == 404 || status == 422:
		return ErrCodeBadRequest
	case status == 408 || status == 504:
		return ErrCodeTimeout
	case status >= 500:
		return ErrCodeServer
	default:
		return ErrCodeUnknown
	}
}

// errorMessages holds human-readable renderings per language.
var errorMessages = map[string]map[APIErrorCode]string{
	"en": {
		ErrCodeAuth:        "LLM authentication failed. Check the configured API key.",
		ErrCodeRateLimited: "The LLM provider is rate limiting requests. Try again shortly.",
		ErrCodeQuota:       "LLM provider quota exceeded.",
		ErrCodeContextLen:  "The conversation exceeds the model's context window.",
		ErrCodeBadRequest:  "The LLM provider rejected the request.",
		ErrCodeServer:      "The LLM provider returned a server error.",
		ErrCodeTimeout:     "The LLM request timed out.",
		ErrCodeUnknown:     "The LLM request failed.",
	},
	"zh": {
		ErrCodeAuth:        "LLM 认证失败，请检查配置的 API 密钥。",
		ErrCodeRateLimited: "LLM 服务限流，请稍后重试。",
		ErrCodeQuota:       "LLM 服务配额已用尽。",
		ErrCodeContextLen:  "对话长度超出模型上下文窗口。",
		ErrCodeBadRequest:  "LLM 服务拒绝了该请求。",
		ErrCodeServer:      "LLM 服务返回内部错误。",
		ErrCodeTimeout:     "LLM 请求超时。",
		ErrCodeUnknown:     "LLM 请求失败。",
	},
}

// ErrorMessage renders a code as a localized message with detail appended.
func ErrorMessage(code APIErrorCode, lang, detail string) string {
	table, ok := errorMessages[lang]
	if !ok {
		table = errorMessages["en"]
	}
	msg, ok := table[code]
	if !ok {
		msg = table[ErrCodeUnknown]
	}
	if detail == "" {
		return msg
	}
	return fmt.Sprintf("%s (%s)", msg, detail)
}

// ErrorResponse builds a FinishError response for an API failure.
func ErrorResponse(code APIErrorCode, lang, detail string) *Response {
	return &Response{
		FinishReason: FinishError,
		Content:      ErrorMessage(code, lang, detail),
	}
}
