package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestGiftCardMetricsCountOperations(t *testing.T) {
	m := GiftCards()
	before := testutil.ToFloat64(m.operations.WithLabelValues("redeem", "rejected"))
	m.RecordOperation("redeem", "rejected", time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.operations.WithLabelValues("redeem", "rejected")))

	m.RecordOperation("create", "", time.Millisecond)
	require.GreaterOrEqual(t, testutil.ToFloat64(m.operations.WithLabelValues("create", "success")), 1.0)

	moved := testutil.ToFloat64(m.moved.WithLabelValues("create", "USDC"))
	m.RecordValue("create", "USDC", 250)
	m.RecordValue("create", "USDC", 0)
	require.Equal(t, moved+250, testutil.ToFloat64(m.moved.WithLabelValues("create", "USDC")))

	var nilMetrics *GiftCardMetrics
	nilMetrics.RecordOperation("create", "success", time.Second)
	nilMetrics.RecordFaucet("USDC", "success")
}

func TestModuleMetricsSplitErrors(t *testing.T) {
	m := ModuleMetrics()
	errs := testutil.ToFloat64(m.errors.WithLabelValues("giftcard", "giftcard_redeem", "-32062"))
	m.Observe("giftcard", "giftcard_redeem", -32062, time.Millisecond)
	m.Observe("giftcard", "giftcard_redeem", 0, time.Millisecond)
	require.Equal(t, errs+1, testutil.ToFloat64(m.errors.WithLabelValues("giftcard", "giftcard_redeem", "-32062")))

	throttled := testutil.ToFloat64(m.throttles.WithLabelValues("unspecified"))
	m.RecordThrottle("")
	require.Equal(t, throttled+1, testutil.ToFloat64(m.throttles.WithLabelValues("unspecified")))
}

func TestEventMetricsTrackStreams(t *testing.T) {
	m := Events()
	open := testutil.ToFloat64(m.streams)
	m.StreamOpened()
	m.StreamOpened()
	m.StreamClosed()
	require.Equal(t, open+1, testutil.ToFloat64(m.streams))
	m.StreamClosed()

	failed := testutil.ToFloat64(m.persistErrs)
	m.RecordPersisted(errors.New("disk full"))
	require.Equal(t, failed+1, testutil.ToFloat64(m.persistErrs))

	emitted := testutil.ToFloat64(m.emitted.WithLabelValues("unknown"))
	m.RecordEmitted("  ")
	require.Equal(t, emitted+1, testutil.ToFloat64(m.emitted.WithLabelValues("unknown")))
}
