package matchtrade

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gudax/autobot"
)

type apiError struct {
	Message string `json:"message"`
}

// statusError maps a non-2xx platform response to the gateway error
// taxonomy.
func statusError(response *resty.Response) error {
	reason := errorReason(response)

	switch response.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &autobot.AuthError{Reason: reason}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &autobot.ValidationError{Reason: reason}
	case http.StatusTooManyRequests:
		return &autobot.RateLimitError{RetryAfter: retryAfter(response)}
	case http.StatusGone:
		return &autobot.ResourceGoneError{
			Resource: response.Request.URL,
		}
	default:
		return &autobot.RejectionError{
			Code:   response.StatusCode(),
			Reason: reason,
		}
	}
}

func errorReason(response *resty.Response) string {
	var payload apiError
	err := json.Unmarshal(response.Body(), &payload)
	if err == nil && payload.Message != "" {
		return payload.Message
	}

	return response.Status()
}

func retryAfter(response *resty.Response) time.Duration {
	header := response.Header().Get("Retry-After")

	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}
