package youtube

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kestreldata/channelharvest/internal/harvest"
)

// apiError is the error envelope the Data API returns on non-200 responses.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// Reasons the API uses for spent quota. rateLimitExceeded is the per-minute
// variant; treating it as exhaustion errs on the side of rotating early.
var quotaReasons = map[string]bool{
	"quotaexceeded":      true,
	"dailylimitexceeded": true,
	"ratelimitexceeded":  true,
}

var authReasons = map[string]bool{
	"keyinvalid":          true,
	"keyexpired":          true,
	"accessnotconfigured": true,
}

// classifyAPIError maps an HTTP status plus error body onto the harvest
// taxonomy so every caller reacts identically.
func classifyAPIError(status int, body []byte) error {
	var envelope apiError
	reason := ""
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error.Errors) > 0 {
		reason = strings.ToLower(envelope.Error.Errors[0].Reason)
	}

	switch {
	case quotaReasons[reason]:
		return &harvest.QuotaError{Reason: reason}
	case authReasons[reason]:
		return &harvest.AuthError{Reason: reason}
	case status == http.StatusNotFound:
		return harvest.ErrNotFound
	case status == http.StatusUnauthorized:
		return &harvest.AuthError{Reason: fmt.Sprintf("http %d", status)}
	case status == http.StatusForbidden:
		// 403 without a quota/auth reason is usually a quota edge; rotate.
		return &harvest.QuotaError{Reason: fmt.Sprintf("http %d: %s", status, envelope.Error.Message)}
	default:
		return transientf("http %d: %s", status, envelope.Error.Message)
	}
}

func transientf(format string, args ...any) error {
	return &harvest.TransientError{Err: fmt.Errorf(format, args...)}
}
