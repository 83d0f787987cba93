package metrics

import "time"

// Noop is a Sink that discards everything.
type Noop struct{}

var _ Sink = Noop{}

func (Noop) JobStarted(string) {}
func (Noop) JobFinished(string, string, time.Duration) {}
func (Noop) JobsInFlight(string, int) {}
func (Noop) TransactionSubmitted(string, string, time.Duration) {}
func (Noop) TradeCompleted(string, bool) {}
func (Noop) DistributionCompleted(int, int) {}
func (Noop) WebhookAttempt(string, time.Duration) {}
func (Noop) WebhookOutcome(string) {}
func (Noop) AggregationCompleted(int, time.Duration, error) {}
func (Noop) EventBroadcast(string) {}
