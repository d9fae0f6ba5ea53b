package metrics

import (
	"context"
	"errors"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

type captureCW struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (c *captureCW) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.inputs = append(c.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, c.err
}

func TestCloudWatch_RecordBuildsDatum(t *testing.T) {
	cw := &captureCW{}
	r := NewCloudWatch(cw, "MeatShop/Orders", zap.NewNop())
	r.async = false

	r.Record(context.Background(), OrderRevenue, 150000, map[string]string{"PaymentMethod": "efectivo", "Empty": ""})

	if len(cw.inputs) != 1 {
		t.Fatalf("expected one PutMetricData call, got %d", len(cw.inputs))
	}
	in := cw.inputs[0]
	if sdkaws.ToString(in.Namespace) != "MeatShop/Orders" {
		t.Fatalf("unexpected namespace %q", sdkaws.ToString(in.Namespace))
	}
	d := in.MetricData[0]
	if sdkaws.ToString(d.MetricName) != OrderRevenue || sdkaws.ToFloat64(d.Value) != 150000 {
		t.Fatalf("unexpected datum %+v", d)
	}
	if d.Unit != cwtypes.StandardUnitNone {
		t.Fatalf("revenue should not be a count, got %s", d.Unit)
	}
	if len(d.Dimensions) != 1 || sdkaws.ToString(d.Dimensions[0].Name) != "PaymentMethod" {
		t.Fatalf("expected only non-empty dimensions, got %+v", d.Dimensions)
	}
}

func TestCloudWatch_FailuresAreSwallowed(t *testing.T) {
	cw := &captureCW{err: errors.New("throttled")}
	r := NewCloudWatch(cw, "ns", zap.NewNop())
	r.async = false
	r.Record(context.Background(), HoneypotTriggered, 1, nil)
	if len(cw.inputs) != 1 {
		t.Fatalf("expected attempt despite failure")
	}
	if cw.inputs[0].MetricData[0].Unit != cwtypes.StandardUnitCount {
		t.Fatalf("counters use the Count unit")
	}
}
