package n8n

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		header    http.Header
		body      string
		wantKind  ErrorKind
		retryable bool
	}{
		{"unauthorized", 401, nil, `{"message":"unauthorized"}`, KindUnauthenticated, false},
		{"forbidden", 403, nil, `{"message":"forbidden"}`, KindUnauthenticated, false},
		{"not found", 404, nil, `{"message":"not found"}`, KindNotFound, false},
		{"bad request", 400, nil, `{"message":"nodes must be an array"}`, KindValidationBadReq, false},
		{"rate limited", 429, http.Header{"Retry-After": []string{"2"}}, "", KindRateLimited, true},
		{"server error", 500, nil, "boom", KindServerError, true},
		{"bad gateway", 502, nil, "", KindServerError, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyStatus(tc.status, tc.header.Get, []byte(tc.body))
			apiErr, ok := AsAPIError(err)
			if !ok {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if apiErr.Kind != tc.wantKind {
				t.Errorf("kind = %q, want %q", apiErr.Kind, tc.wantKind)
			}
			if apiErr.Retryable != tc.retryable {
				t.Errorf("retryable = %v, want %v", apiErr.Retryable, tc.retryable)
			}
			if apiErr.Status != tc.status {
				t.Errorf("status = %d, want %d", apiErr.Status, tc.status)
			}
			if len(apiErr.RecoverySteps) == 0 {
				t.Error("expected recovery guidance")
			}
		})
	}
}

func TestClassifyStatusRetryAfter(t *testing.T) {
	h := http.Header{"Retry-After": []string{"3"}}
	err := classifyStatus(429, h.Get, nil)
	apiErr, _ := AsAPIError(err)
	if apiErr.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", apiErr.RetryAfter)
	}

	when := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	h = http.Header{"Retry-After": []string{when}}
	err = classifyStatus(429, h.Get, nil)
	apiErr, _ = AsAPIError(err)
	if apiErr.RetryAfter < 80*time.Second || apiErr.RetryAfter > 91*time.Second {
		t.Errorf("HTTP-date RetryAfter = %v, want about 90s", apiErr.RetryAfter)
	}
}

func TestEngineMessage(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"message":"request failed"}`, "request failed"},
		{`{"error":"broken"}`, "broken"},
		{`plain text failure`, "plain text failure"},
		{``, ""},
	}
	for _, tc := range cases {
		if got := engineMessage([]byte(tc.body)); got != tc.want {
			t.Errorf("engineMessage(%q) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestNetworkErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := networkError(cause)
	if !errors.Is(err, cause) {
		t.Error("network error must wrap its cause")
	}
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Kind != KindNetwork || !apiErr.Retryable {
		t.Errorf("unexpected classification: %+v", apiErr)
	}
}

func TestErrorDetailsTruncated(t *testing.T) {
	big := make([]byte, maxDetailBytes*2)
	for i := range big {
		big[i] = 'x'
	}
	err := classifyStatus(500, nil, big)
	apiErr, _ := AsAPIError(err)
	if len(apiErr.Details) > maxDetailBytes+len("...") {
		t.Errorf("details length = %d, want <= %d", len(apiErr.Details), maxDetailBytes)
	}
}
