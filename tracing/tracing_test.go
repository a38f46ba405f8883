package tracing

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/plugindex/util"
	"github.com/bsv-blockchain/plugindex/util/test/mocklogger"
	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	values []float64
}

func (o *recordingObserver) Observe(v float64) {
	o.values = append(o.values, v)
}

func TestTracing(t *testing.T) {
	logger := mocklogger.NewTestLogger()

	_, _, deferFn := StartTracing(
		context.Background(),
		"TestTracing",
		WithLogMessage(
			logger,
			"%s %s",
			"hello",
			"world",
		),
	)

	require.Equal(t, []string{"hello world"}, logger.Messages("Infof"))

	deferFn()

	messages := logger.Messages("Infof")
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1], "hello world DONE in")
}

func TestTracingMetrics(t *testing.T) {
	parent := gocore.NewStat("tracing_test")
	histogram := &recordingObserver{}
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracing_test_total"})

	ctx, stat, deferFn := StartTracing(context.Background(), "op",
		WithParentStat(parent),
		WithHistogram(histogram),
		WithCounter(counter),
	)

	assert.Same(t, parent.NewStat("op"), stat)

	ctxStat, ok := util.StatFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, stat, ctxStat)

	assert.Empty(t, histogram.values)

	deferFn()

	require.Len(t, histogram.values, 1)
	assert.GreaterOrEqual(t, histogram.values[0], float64(0))
	assert.InDelta(t, float64(1), testutil.ToFloat64(counter), 0)
}

func TestTracingNestsUnderContextStat(t *testing.T) {
	parent := gocore.NewStat("tracing_nested_test")

	ctx, outer, finishOuter := StartTracing(context.Background(), "outer", WithParentStat(parent))
	defer finishOuter()

	// the stat carried by ctx wins over the default root
	_, inner, finishInner := StartTracing(ctx, "inner")
	defer finishInner()

	assert.Same(t, outer.NewStat("inner"), inner)
}
