package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jgivc/fetchbridge/internal/entity"
	"github.com/jgivc/fetchbridge/internal/service/classify"
)

func TestConnectionState(t *testing.T) {
	m := New()

	m.Connected()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionState))

	m.Disconnected()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connectionState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnectsTotal))
}

func TestQueueStats(t *testing.T) {
	m := New()

	m.QueueStats(entity.QueueStats{Active: 2, Waiting: 3, Completed: 5})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.queueDownloads.WithLabelValues("active")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDownloads.WithLabelValues("waiting")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.queueDownloads.WithLabelValues("completed")))
}

func TestIntercepts(t *testing.T) {
	m := New()

	m.Intercepted(classify.ReasonExplicitDownload)
	m.Intercepted(classify.ReasonExplicitDownload)
	m.Intercepted(classify.ReasonMediaStream)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.interceptsTotal.WithLabelValues("download")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.interceptsTotal.WithLabelValues("media")))
}

func TestStreams(t *testing.T) {
	m := New()

	m.StreamDetected(entity.StreamRecord{URL: "https://cdn/a.mp4", Kind: entity.KindVideo})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamsTotal.WithLabelValues("video")))
}
