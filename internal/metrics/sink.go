package metrics

import (
	"errors"
	"net"
	"strings"
	"time"
)

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations must not block or propagate errors.
type Sink interface {
	// Worker pool metrics
	JobStarted(queue string)
	JobFinished(queue, outcome string, duration time.Duration)
	JobsInFlight(queue string, delta int)

	// Transaction executor metrics
	TransactionSubmitted(strategy, outcome string, duration time.Duration)

	// Trading and distribution metrics
	TradeCompleted(side string, success bool)
	DistributionCompleted(funded, failed int)

	// Webhook metrics
	WebhookAttempt(statusClass string, duration time.Duration)
	WebhookOutcome(outcome string)

	// Status aggregator metrics
	AggregationCompleted(runs int, duration time.Duration, err error)
	EventBroadcast(eventType string)
}

// Job outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetried   = "retried"
	OutcomeDead      = "dead"
	OutcomeSkipped   = "skipped"
)

// Webhook outcomes.
const (
	WebhookSuccess  = "success"
	WebhookRetrying = "retrying"
	WebhookFailed   = "failed"
)

// Status classes for WebhookAttempt.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)

// ClassifyStatus maps a status code and error to a status class.
func ClassifyStatus(statusCode int, err error) string {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return StatusClassTimeout
		}
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
			return StatusClassTimeout
		case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
			strings.Contains(msg, "network is unreachable"), strings.Contains(msg, "dial"):
			return StatusClassConnectionError
		default:
			return StatusClassOtherError
		}
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOtherError
	}
}
