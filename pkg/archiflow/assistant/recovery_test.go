package assistant

import (
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	success := `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`

	tests := []struct {
		name        string
		status      int
		body        string
		retryAfter  int
		wantContent string
		wantKind    ErrorKind
		wantRaw     string
	}{
		{
			name:        "success",
			status:      200,
			body:        success,
			wantContent: "hello",
		},
		{
			name:        "content trimmed",
			status:      200,
			body:        `{"choices":[{"message":{"role":"assistant","content":"  padded \n"}}]}`,
			wantContent: "padded",
		},
		{
			name:       "429 becomes rate limit",
			status:     429,
			body:       `{"error":{"message":"slow down","type":"rate_limit_error"}}`,
			retryAfter: 7,
			wantKind:   KindRateLimit,
		},
		{
			name:     "structured error payload",
			status:   400,
			body:     `{"error":{"message":"model not found","type":"invalid_request_error","code":"model_not_found"}}`,
			wantKind: KindAPI,
		},
		{
			name:     "numeric error code tolerated",
			status:   500,
			body:     `{"error":{"message":"oops","type":"server_error","code":500}}`,
			wantKind: KindAPI,
		},
		{
			name:     "non-2xx without error payload",
			status:   503,
			body:     "Service Unavailable",
			wantKind: KindHTTP,
		},
		{
			name:     "200 with error payload",
			status:   200,
			body:     `{"error":{"message":"internal","type":"server_error"}}`,
			wantKind: KindAPI,
		},
		{
			name:     "empty body",
			status:   200,
			body:     "",
			wantKind: KindParse,
		},
		{
			name:     "malformed envelope preserves raw",
			status:   200,
			body:     "not json at all",
			wantKind: KindParse,
			wantRaw:  "not json at all",
		},
		{
			name:     "no choices",
			status:   200,
			body:     `{"choices":[]}`,
			wantKind: KindParse,
		},
		{
			name:     "blank content",
			status:   200,
			body:     `{"choices":[{"message":{"role":"assistant","content":"   "}}]}`,
			wantKind: KindParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := &rawResponse{Status: tt.status, Body: []byte(tt.body), RetryAfterSec: tt.retryAfter}
			content, gerr := parseEnvelope(raw)

			if tt.wantContent != "" {
				if gerr != nil {
					t.Fatalf("unexpected error: %v", gerr)
				}
				if content != tt.wantContent {
					t.Errorf("content = %q, want %q", content, tt.wantContent)
				}
				return
			}

			if gerr == nil {
				t.Fatalf("expected %s error, got content %q", tt.wantKind, content)
			}
			if gerr.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", gerr.Kind, tt.wantKind)
			}
			if tt.wantRaw != "" && gerr.Raw != tt.wantRaw {
				t.Errorf("raw = %q, want %q", gerr.Raw, tt.wantRaw)
			}
			if tt.retryAfter > 0 && gerr.RetryAfterSec != tt.retryAfter {
				t.Errorf("retry after = %d, want %d", gerr.RetryAfterSec, tt.retryAfter)
			}
		})
	}

	t.Run("parse errors are retryable", func(t *testing.T) {
		_, gerr := parseEnvelope(&rawResponse{Status: 200, Body: nil})
		if gerr == nil || !gerr.Retryable("") {
			t.Errorf("empty-body parse error should be retryable, got %v", gerr)
		}
	})
}

func TestRecoverJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "already valid",
			content: `{"total": 42}`,
			want:    `{"total": 42}`,
		},
		{
			name:    "json code fence",
			content: "```json\n{\"total\": 42}\n```",
			want:    `{"total": 42}`,
		},
		{
			name:    "bare fence",
			content: "```\n{\"items\": [1, 2]}\n```",
			want:    `{"items": [1, 2]}`,
		},
		{
			name:    "leading prose",
			content: "Here is the estimate you asked for:\n{\"total\": 42}",
			want:    `{"total": 42}`,
		},
		{
			name:    "trailing prose",
			content: "{\"total\": 42}\nLet me know if you need more detail.",
			want:    `{"total": 42}`,
		},
		{
			name:    "nested braces kept intact",
			content: "```json\n{\"a\": {\"b\": 1}}\n```",
			want:    `{"a": {"b": 1}}`,
		},
		{
			name:    "plain prose unrecoverable",
			content: "I cannot produce JSON for that request.",
			wantErr: true,
		},
		{
			name:    "broken json unrecoverable",
			content: "{\"total\": ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, gerr := RecoverJSON(tt.content)

			if tt.wantErr {
				if gerr == nil {
					t.Fatalf("expected parse error, got %q", got)
				}
				if gerr.Kind != KindParse {
					t.Errorf("kind = %s, want parse", gerr.Kind)
				}
				if gerr.Raw != tt.content {
					t.Errorf("raw text not preserved: %q", gerr.Raw)
				}
				return
			}

			if gerr != nil {
				t.Fatalf("unexpected error: %v", gerr)
			}
			if got != tt.want {
				t.Errorf("recovered = %q, want %q", got, tt.want)
			}
		})
	}
}
