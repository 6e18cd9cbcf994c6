// Package metrics publishes operational counters to CloudWatch.
package metrics

import (
	"context"
	"sort"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/virology-token-service/internal/aws"
	"github.com/imrishuroy/virology-token-service/internal/clock"
)

// Metric names.
const (
	OrderCreated        = "OrderCreated"
	TokenCollision      = "TokenCollision"
	TokenSpaceExhausted = "TokenSpaceExhausted"
	LookupOutcome       = "LookupOutcome"
	ExchangeOutcome     = "ExchangeOutcome"
	ResultPosted        = "ResultPosted"
)

// Recorder counts events. Implementations must not fail the caller.
type Recorder interface {
	Count(ctx context.Context, name string, dimensions map[string]string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Count(context.Context, string, map[string]string) {}

// CloudWatch sends one PutMetricData call per event.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	clock     clock.Clock
	log       *zap.Logger
}

// NewCloudWatch returns a Recorder publishing into namespace.
func NewCloudWatch(client aws.CloudWatchAPI, namespace string, c clock.Clock, log *zap.Logger) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		clock:     c,
		log:       log,
	}
}

func (cw *CloudWatch) Count(ctx context.Context, name string, dimensions map[string]string) {
	keys := make([]string, 0, len(dimensions))
	for k := range dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	dims := make([]cwtypes.Dimension, 0, len(keys))
	for _, k := range keys {
		dims = append(dims, cwtypes.Dimension{
			Name:  sdkaws.String(k),
			Value: sdkaws.String(dimensions[k]),
		})
	}

	_, err := cw.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(cw.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: sdkaws.String(name),
				Dimensions: dims,
				Timestamp:  sdkaws.Time(cw.clock.Now().UTC()),
				Unit:       cwtypes.StandardUnitCount,
				Value:      sdkaws.Float64(1),
			},
		},
	})
	if err != nil {
		cw.log.Warn("put metric data failed", zap.String("metric", name), zap.Error(err))
	}
}

var (
	_ Recorder = Nop{}
	_ Recorder = (*CloudWatch)(nil)
)
