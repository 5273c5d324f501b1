package core

import "context"

const (
	MetricActivationIssued       = "activation.issued"
	MetricUnrecognizedAmount     = "activation.unrecognized_amount"
	MetricMissingCustomerEmail   = "activation.missing_customer_email"
	MetricEmailFailure           = "activation.email_failure"
	MetricBackfillEnqueueFailure = "activation.backfill_enqueue_failure"
	MetricDispatchPrefix         = "webhooks.dispatch"
	MetricIssueDurationMS        = "activation.issue_activation.duration_ms"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
