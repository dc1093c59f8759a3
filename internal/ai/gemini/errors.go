package gemini

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/spigell/leads/internal/ai"
)

// statusOverloaded is returned by some upstream proxies when the model is saturated.
const statusOverloaded = 529

var transientMessages = []string{"overloaded", "rate limit", "resource_exhausted", "unavailable", "try again"}

// classifyError marks err as transient or permanent for the retry policy.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout, statusOverloaded:
			return ai.Transient(err)
		}
		if hasTransientMessage(apiErr.Status + " " + apiErr.Message) {
			return ai.Transient(err)
		}
		return ai.Permanent(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return ai.Transient(err)
	}

	if hasTransientMessage(err.Error()) {
		return ai.Transient(err)
	}

	return ai.Permanent(err)
}

func hasTransientMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, needle := range transientMessages {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
