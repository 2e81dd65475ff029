package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	before, err := Snapshot()
	require.NoError(t, err)

	CallsResolved.WithLabelValues("static").Inc()
	CallsResolved.WithLabelValues("static").Inc()
	SummaryCache.WithLabelValues("hit").Inc()
	FixpointIterations.Observe(3)

	after, err := Snapshot()
	require.NoError(t, err)

	assert.Equal(t, before["gfq_calls_total{kind=static}"]+2, after["gfq_calls_total{kind=static}"])
	assert.Equal(t, before["gfq_summary_cache_total{result=hit}"]+1, after["gfq_summary_cache_total{result=hit}"])
	assert.Equal(t, before["gfq_fixpoint_block_visits"]+1, after["gfq_fixpoint_block_visits"])

	for key := range after {
		assert.Regexp(t, `^gfq_`, key)
	}
}
