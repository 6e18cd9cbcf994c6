package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/virology-token-service/internal/clock"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func TestCloudWatch_Count(t *testing.T) {
	mock := &mockCloudWatch{}
	now := time.Date(2020, 9, 10, 0, 0, 0, 0, time.UTC)
	cw := NewCloudWatch(mock, "Virology", clock.NewFake(now), zap.NewNop())

	cw.Count(context.Background(), ExchangeOutcome, map[string]string{"outcome": "consumed", "kind": "ORDER"})

	if len(mock.inputs) != 1 {
		t.Fatalf("expected 1 call, got %d", len(mock.inputs))
	}
	in := mock.inputs[0]
	if *in.Namespace != "Virology" {
		t.Fatalf("namespace mismatch: %s", *in.Namespace)
	}
	d := in.MetricData[0]
	if *d.MetricName != ExchangeOutcome || *d.Value != 1 || d.Unit != cwtypes.StandardUnitCount {
		t.Fatalf("unexpected datum: %+v", d)
	}
	if !d.Timestamp.Equal(now) {
		t.Fatalf("timestamp mismatch: %s", d.Timestamp)
	}
	if len(d.Dimensions) != 2 || *d.Dimensions[0].Name != "kind" || *d.Dimensions[1].Name != "outcome" {
		t.Fatalf("expected sorted dimensions, got %+v", d.Dimensions)
	}
}

func TestCloudWatch_ErrorIsSwallowed(t *testing.T) {
	mock := &mockCloudWatch{err: errors.New("throttled")}
	cw := NewCloudWatch(mock, "Virology", clock.System{}, zap.NewNop())

	// must not panic or block
	cw.Count(context.Background(), OrderCreated, nil)

	if len(mock.inputs) != 1 {
		t.Fatalf("expected 1 call, got %d", len(mock.inputs))
	}
}
