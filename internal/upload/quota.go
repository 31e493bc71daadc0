package upload

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

var quotaKeywords = []string{
	"quota exceeded",
	"user rate limit exceeded",
	"rate limit exceeded",
	"storage quota",
}

var quotaCodes = map[string]bool{
	"SlowDown":             true,
	"Throttling":           true,
	"ThrottlingException":  true,
	"RequestLimitExceeded": true,
	"RequestThrottled":     true,
	"TooManyRequests":      true,
	"QuotaExceeded":        true,
}

var transientCodes = map[string]bool{
	"InternalError":      true,
	"ServiceUnavailable": true,
	"RequestTimeout":     true,
	"Unavailable":        true,
}

// IsQuotaError reports whether err means the destination is rate limiting us.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, models.ErrQuotaExceeded) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && quotaCodes[apiErr.ErrorCode()] {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range quotaKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// classify tags err with the models error kinds so retry and cache can act on it.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrTransient) || errors.Is(err, models.ErrConfiguration) {
		return err
	}
	if IsQuotaError(err) {
		return models.QuotaExceeded(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.Transient(err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && transientCodes[apiErr.ErrorCode()] {
		return models.Transient(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.Transient(err)
	}
	return err
}
