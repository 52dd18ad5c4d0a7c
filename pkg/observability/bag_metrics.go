package observability

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricOpsTotal   = "indexbag.ops.total"
	metricOpDuration = "indexbag.op.duration.seconds"
	metricPoolSize   = "indexbag.pool.size"
	metricUnused     = "indexbag.unused"

	attrOp     = "op"
	attrStatus = "status"

	// StatusHit marks an operation whose handle resolved.
	StatusHit = "hit"
	// StatusMiss marks an operation whose handle did not resolve.
	StatusMiss = "miss"
)

// opBucketBoundaries covers 50ns to 1ms; bag operations are O(log n) walks.
var opBucketBoundaries = []float64{5e-8, 1e-7, 2.5e-7, 5e-7, 1e-6, 2.5e-6, 5e-6, 1e-5, 1e-4, 1e-3}

// BagMetrics holds the OTel instruments describing bag activity.
type BagMetrics struct {
	opsTotal   metric.Int64Counter
	opDuration metric.Float64Histogram
	poolSize   metric.Int64Gauge
	unused     metric.Int64Gauge
}

// NewBagMetrics creates bag instruments from the given meter.
func NewBagMetrics(mt metric.Meter) (*BagMetrics, error) {
	opsTotal, err := mt.Int64Counter(metricOpsTotal,
		metric.WithDescription("Total number of bag operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOpsTotal, err)
	}

	opDuration, err := mt.Float64Histogram(metricOpDuration,
		metric.WithDescription("Bag operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(opBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOpDuration, err)
	}

	poolSize, err := mt.Int64Gauge(metricPoolSize,
		metric.WithDescription("Highest slot position ever allocated"),
		metric.WithUnit("{slot}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricPoolSize, err)
	}

	unused, err := mt.Int64Gauge(metricUnused,
		metric.WithDescription("Allocated slots awaiting reuse"),
		metric.WithUnit("{slot}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricUnused, err)
	}

	return &BagMetrics{
		opsTotal:   opsTotal,
		opDuration: opDuration,
		poolSize:   poolSize,
		unused:     unused,
	}, nil
}

// RecordOp records one completed operation.
func (bm *BagMetrics) RecordOp(ctx context.Context, op string, hit bool, duration time.Duration) {
	status := StatusMiss
	if hit {
		status = StatusHit
	}

	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	bm.opsTotal.Add(ctx, 1, attrs)
	bm.opDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordOccupancy records the pool size and the number of unused slots.
func (bm *BagMetrics) RecordOccupancy(ctx context.Context, poolSize, unused uint64) {
	bm.poolSize.Record(ctx, clampInt64(poolSize))
	bm.unused.Record(ctx, clampInt64(unused))
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(v)
}
