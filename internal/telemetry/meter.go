package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/types"
)

// MeterSink 将加载结果导出为 OTel 指标，其余事件忽略
type MeterSink struct {
	artifact.NopSink

	loads     metric.Int64Counter
	duration  metric.Float64Histogram
	fetched   metric.Int64Counter
	fallbacks metric.Int64Counter
}

// NewMeterSink 在 meter 上注册加载器指标
func NewMeterSink(meter metric.Meter) (*MeterSink, error) {
	loads, err := meter.Int64Counter("patloader.loads",
		metric.WithDescription("Artifact loads by size, source and outcome"))
	if err != nil {
		return nil, fmt.Errorf("create loads counter: %w", err)
	}
	duration, err := meter.Float64Histogram("patloader.load.duration",
		metric.WithDescription("Artifact load duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	fetched, err := meter.Int64Counter("patloader.fetch.bytes",
		metric.WithDescription("Bytes downloaded from the remote store"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("create fetch counter: %w", err)
	}
	fallbacks, err := meter.Int64Counter("patloader.fallbacks",
		metric.WithDescription("Fallback attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create fallback counter: %w", err)
	}
	return &MeterSink{loads: loads, duration: duration, fetched: fetched, fallbacks: fallbacks}, nil
}

func (s *MeterSink) RecordLoad(size artifact.Size, source artifact.Source, success bool, d time.Duration, code types.ErrorCode) {
	attrs := metric.WithAttributes(
		attribute.String("size", string(size)),
		attribute.String("source", string(source)),
		attribute.Bool("success", success),
		attribute.String("code", string(code)),
	)
	s.loads.Add(context.Background(), 1, attrs)
	s.duration.Record(context.Background(), d.Seconds(), attrs)
}

func (s *MeterSink) RecordFetch(size artifact.Size, success bool, _ time.Duration, bytes int64) {
	if bytes <= 0 {
		return
	}
	s.fetched.Add(context.Background(), bytes, metric.WithAttributes(attribute.String("size", string(size))))
}

func (s *MeterSink) RecordFallback(size artifact.Size, _, _ string, success bool) {
	s.fallbacks.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("size", string(size)),
		attribute.Bool("success", success),
	))
}
