package types

// Telemetry metric names for CloudWatch.
const (
	MetricAPILatency      = "APILatency"
	MetricAPIRequestCount = "APIRequestCount"
	MetricForwardAttempt  = "ForwardAttempt"

	DimEndpoint    = "Endpoint"
	DimMethod      = "Method"
	DimStatus      = "Status"
	DimPayloadType = "PayloadType"
	DimResult      = "Result"

	// MetricNamespace is the default namespace when METRIC_NAMESPACE is unset.
	MetricNamespace = "BookingRelay"
)

// ForwardResult is the outcome dimension of a ForwardAttempt metric.
type ForwardResult string

const (
	ForwardResultDelivered ForwardResult = "delivered"
	ForwardResultFailed    ForwardResult = "failed"
	ForwardResultSkipped   ForwardResult = "skipped"
)
