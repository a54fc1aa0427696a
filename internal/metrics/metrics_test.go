package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterQueueDepthGaugeReflectsLenFn(t *testing.T) {
	depth := 0
	c := RegisterQueueDepthGauge("alpha", "main", func() int { return depth })
	require.NotNil(t, c)
	defer Unregister(c)

	metricFamilies, err := Registry.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "pluginrt_queue_depth" {
			found = true
			require.Len(t, mf.Metric, 1)
			require.Equal(t, float64(0), mf.Metric[0].GetGauge().GetValue())
		}
	}
	require.True(t, found)
}

func TestDuplicateQueueDepthGaugeRegistrationIsRejectedNotPanic(t *testing.T) {
	c1 := RegisterQueueDepthGauge("beta", "main", func() int { return 1 })
	defer Unregister(c1)

	c2 := RegisterQueueDepthGauge("beta", "main", func() int { return 2 })
	require.Nil(t, c2)
}

func TestUnregisterThenReregisterSucceeds(t *testing.T) {
	c1 := RegisterQueueDepthGauge("gamma", "main", func() int { return 1 })
	require.NotNil(t, c1)
	Unregister(c1)

	c2 := RegisterQueueDepthGauge("gamma", "main", func() int { return 2 })
	require.NotNil(t, c2)
	defer Unregister(c2)
}
