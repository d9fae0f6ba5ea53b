// Package metrics publishes operational counters to CloudWatch. Publishing is
// best effort: failures are logged and never reach the caller.
package metrics

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/aws"
)

// Metric names.
const (
	HoneypotTriggered   = "HoneypotTriggered"
	DuplicateOrders     = "DuplicateOrders"
	RateLimiterFailOpen = "RateLimiterFailOpen"
	OrdersCreated       = "OrdersCreated"
	OrderRevenue        = "OrderRevenue"
)

// Recorder records a single metric value with optional dimensions.
type Recorder interface {
	Record(ctx context.Context, name string, value float64, dims map[string]string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(context.Context, string, float64, map[string]string) {}

// CloudWatch sends each datum with PutMetricData on its own goroutine.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	timeout   time.Duration
	log       *zap.Logger
	nowFunc   func() time.Time
	// async is false in tests so calls complete before Record returns.
	async bool
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace string, log *zap.Logger) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		timeout:   3 * time.Second,
		log:       log,
		nowFunc:   time.Now,
		async:     true,
	}
}

func (c *CloudWatch) Record(ctx context.Context, name string, value float64, dims map[string]string) {
	input := c.input(name, value, dims)
	if !c.async {
		c.put(input)
		return
	}
	go c.put(input)
}

func (c *CloudWatch) input(name string, value float64, dims map[string]string) *cloudwatch.PutMetricDataInput {
	unit := cwtypes.StandardUnitCount
	if name == OrderRevenue {
		unit = cwtypes.StandardUnitNone
	}
	datum := cwtypes.MetricDatum{
		MetricName: sdkaws.String(name),
		Value:      sdkaws.Float64(value),
		Unit:       unit,
		Timestamp:  sdkaws.Time(c.nowFunc().UTC()),
	}
	for k, v := range dims {
		if v == "" {
			continue
		}
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{Name: sdkaws.String(k), Value: sdkaws.String(v)})
	}
	return &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
}

func (c *CloudWatch) put(input *cloudwatch.PutMetricDataInput) {
	// detached from the request so a finished request does not cancel it
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		c.log.Warn("failed to publish metric",
			zap.String("metric", sdkaws.ToString(input.MetricData[0].MetricName)), zap.Error(err))
	}
}
