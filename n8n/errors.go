package n8n

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies an engine API failure into a closed taxonomy. Callers
// branch on the kind, never on raw HTTP status codes.
type ErrorKind string

const (
	KindUnauthenticated  ErrorKind = "Unauthenticated"
	KindNotFound         ErrorKind = "NotFound"
	KindValidationBadReq ErrorKind = "ValidationBadRequest"
	KindRateLimited      ErrorKind = "RateLimited"
	KindServerError      ErrorKind = "ServerError"
	KindNetwork          ErrorKind = "Network"
	KindSessionAuth      ErrorKind = "SessionAuth"
	KindUnknown          ErrorKind = "Unknown"
)

// APIError is the typed failure returned by every engine call. Status is zero
// when no HTTP response was received. RetryAfter is non-zero only when the
// engine answered 429 with a Retry-After header.
type APIError struct {
	Kind          ErrorKind
	Status        int
	Message       string
	Retryable     bool
	RetryAfter    time.Duration
	RecoverySteps []string
	Details       string // raw response body, truncated

	cause error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("n8n: %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("n8n: %s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.cause }

// AsAPIError extracts the typed engine error from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is an engine NotFound failure.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == KindNotFound
}

const maxDetailBytes = 2048

// classifyStatus maps an HTTP failure response to the closed taxonomy.
// 429, 5xx and transport failures are retryable; everything else is not.
func classifyStatus(status int, header func(string) string, body []byte) *APIError {
	e := &APIError{
		Status:  status,
		Message: engineMessage(body),
		Details: truncate(string(body), maxDetailBytes),
	}
	switch {
	case status == 401 || status == 403:
		e.Kind = KindUnauthenticated
	case status == 404:
		e.Kind = KindNotFound
	case status == 429:
		e.Kind = KindRateLimited
		e.Retryable = true
		if header != nil {
			e.RetryAfter = parseRetryAfter(header("Retry-After"))
		}
	case status >= 500:
		e.Kind = KindServerError
		e.Retryable = true
	case status >= 400:
		e.Kind = KindValidationBadReq
	default:
		e.Kind = KindUnknown
	}
	e.RecoverySteps = recoverySteps(e.Kind)
	return e
}

// networkError wraps a transport-level failure (no HTTP response).
func networkError(err error) *APIError {
	return &APIError{
		Kind:          KindNetwork,
		Message:       err.Error(),
		Retryable:     true,
		RecoverySteps: recoverySteps(KindNetwork),
		cause:         err,
	}
}

// sessionAuthError marks a failed or expired introspection session login.
func sessionAuthError(status int, body []byte) *APIError {
	return &APIError{
		Kind:          KindSessionAuth,
		Status:        status,
		Message:       engineMessage(body),
		Details:       truncate(string(body), maxDetailBytes),
		RecoverySteps: recoverySteps(KindSessionAuth),
	}
}

// engineMessage pulls the engine's own error text out of a response body.
// The engine answers {"message": ...} on API errors; some proxies hand back
// {"error": ...} or plain text.
func engineMessage(body []byte) string {
	if len(body) == 0 {
		return "empty response body"
	}
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return truncate(strings.TrimSpace(string(body)), 300)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func recoverySteps(kind ErrorKind) []string {
	switch kind {
	case KindUnauthenticated:
		return []string{
			"verify the API key is set and has not been revoked",
			"confirm the key belongs to this engine instance",
		}
	case KindNotFound:
		return []string{
			"check the resource ID; it may have been deleted on the engine",
		}
	case KindValidationBadReq:
		return []string{
			"inspect the engine message for the rejected field",
			"re-run validation before resubmitting",
		}
	case KindRateLimited:
		return []string{
			"wait for the Retry-After interval before retrying",
			"lower the configured request rate for this endpoint",
		}
	case KindServerError:
		return []string{
			"retry with backoff; the engine may be restarting",
			"check engine logs if the failure persists",
		}
	case KindNetwork:
		return []string{
			"verify the engine base URL is reachable from this host",
			"check for DNS, TLS or proxy problems on the route",
		}
	case KindSessionAuth:
		return []string{
			"verify the session username and password",
			"session introspection is optional; unset the credentials to fall back to API-key sources",
		}
	default:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
