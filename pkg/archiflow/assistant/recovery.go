// recovery.go turns a raw provider response into a validated completion
// string or a classified GatewayError, and recovers strict JSON from
// loosely formatted model output (markdown code fences, trailing prose).
package assistant

import (
	"encoding/json"
	"regexp"
	"strings"
)

// responseEnvelope is the OpenAI-compatible success/error envelope.
type responseEnvelope struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"` // providers send int or string
	} `json:"error"`
}

// parseEnvelope extracts the completion content from a raw attempt outcome.
// Non-2xx statuses yield KindAPI when the body carries a structured error
// payload, KindRateLimit for 429, and KindHTTP otherwise. 2xx bodies that
// fail envelope parsing (including empty bodies) yield KindParse.
func parseEnvelope(raw *rawResponse) (string, *GatewayError) {
	body := string(raw.Body)

	if raw.Status == 429 {
		return "", &GatewayError{
			Kind:          KindRateLimit,
			Status:        raw.Status,
			Body:          body,
			Message:       "rate limited",
			RetryAfterSec: raw.RetryAfterSec,
		}
	}

	if raw.Status < 200 || raw.Status >= 300 {
		var env responseEnvelope
		if err := json.Unmarshal(raw.Body, &env); err == nil && env.Error != nil {
			return "", &GatewayError{
				Kind:    KindAPI,
				Status:  raw.Status,
				Message: env.Error.Message,
				Type:    env.Error.Type,
				Code:    strings.Trim(string(env.Error.Code), `"`),
			}
		}
		return "", &GatewayError{Kind: KindHTTP, Status: raw.Status, Body: body}
	}

	if len(raw.Body) == 0 {
		return "", &GatewayError{Kind: KindParse, Message: "empty response body", Raw: ""}
	}

	var env responseEnvelope
	if err := json.Unmarshal(raw.Body, &env); err != nil {
		return "", &GatewayError{Kind: KindParse, Message: "malformed response envelope", Raw: body}
	}
	// Some providers return 200 with an error payload in the body.
	if env.Error != nil {
		return "", &GatewayError{
			Kind:    KindAPI,
			Status:  raw.Status,
			Message: env.Error.Message,
			Type:    env.Error.Type,
			Code:    strings.Trim(string(env.Error.Code), `"`),
		}
	}
	if len(env.Choices) == 0 {
		return "", &GatewayError{Kind: KindParse, Message: "no choices in response", Raw: body}
	}

	content := strings.TrimSpace(env.Choices[0].Message.Content)
	if content == "" {
		return "", &GatewayError{Kind: KindParse, Message: "empty completion content", Raw: body}
	}
	return content, nil
}

// codeFenceRe matches a leading markdown code fence marker with an optional
// language tag, e.g. ```json.
var codeFenceRe = regexp.MustCompile("^```[a-zA-Z0-9]*")

// RecoverJSON extracts a strict JSON object from completion content.
// Applied only when the caller declared a structured-JSON expectation.
//
// Stage one parses the content directly. Stage two tolerates the common
// ```json ... ``` wrapping (and trailing prose) by slicing from the first
// '{' to the last '}' inclusive and re-parsing. Model output is not
// guaranteed to honor "JSON-only" instructions, so failure returns a
// KindParse error carrying the raw text — callers display it rather than
// crash.
func RecoverJSON(content string) (string, *GatewayError) {
	if json.Valid([]byte(content)) {
		return content, nil
	}

	trimmed := strings.TrimSpace(content)
	if codeFenceRe.MatchString(trimmed) || strings.Contains(trimmed, "{") {
		first := strings.Index(trimmed, "{")
		last := strings.LastIndex(trimmed, "}")
		if first >= 0 && last > first {
			slice := trimmed[first : last+1]
			if json.Valid([]byte(slice)) {
				return slice, nil
			}
		}
	}

	return "", &GatewayError{Kind: KindParse, Message: "content is not valid JSON", Raw: content}
}
