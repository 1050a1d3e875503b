package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"bookingrelay/internal/types"
)

// metricsPutTimeout bounds each PutMetricData call so a slow CloudWatch
// endpoint cannot hold a request open.
const metricsPutTimeout = 2 * time.Second

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics publishes request and forward metrics to CloudWatch.
//
// Metrics emitted:
//   - APILatency / APIRequestCount: Dims {Endpoint, Method, Status}
//   - ForwardAttempt: Dims {PayloadType, Result}
//
// Publishing failures are logged and never fail the request.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ MetricsCollector = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a collector for the given namespace. An empty
// namespace falls back to types.MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest emits latency (milliseconds) and a count of one.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(types.DimMethod), Value: aws.String(method)},
		{Name: aws.String(types.DimStatus), Value: aws.String(status)},
	}

	m.put([]cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
		{
			MetricName: aws.String(types.MetricAPIRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
	})
}

// RecordForward emits a ForwardAttempt count for one downstream delivery.
func (m *CloudWatchMetrics) RecordForward(payloadType string, result types.ForwardResult) {
	m.put([]cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricForwardAttempt),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(types.DimPayloadType), Value: aws.String(payloadType)},
				{Name: aws.String(types.DimResult), Value: aws.String(string(result))},
			},
		},
	})
}

func (m *CloudWatchMetrics) put(data []cwtypes.MetricDatum) {
	// Detached from the request context: the datum should still be published
	// when the client has already gone away.
	ctx, cancel := context.WithTimeout(context.Background(), metricsPutTimeout)
	defer cancel()

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.Error("failed to publish metrics",
			"error", err.Error(),
			"namespace", m.namespace,
			"metric", aws.ToString(data[0].MetricName),
		)
	}
}
