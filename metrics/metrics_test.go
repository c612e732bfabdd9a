package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMediaSent(t *testing.T) {
	mediaSentTotal.Reset()

	RecordMediaSent("audio", "ok")
	RecordMediaSent("audio", "ok")
	RecordMediaSent("video", "dropped")

	assert.Equal(t, 2.0, testutil.ToFloat64(mediaSentTotal.WithLabelValues("audio", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mediaSentTotal.WithLabelValues("video", "dropped")))
}

func TestRecordMarksDroppedIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(marksDroppedTotal)
	RecordMarksDropped(0)
	RecordMarksDropped(-1)
	assert.Equal(t, before, testutil.ToFloat64(marksDroppedTotal))

	RecordMarksDropped(3)
	assert.Equal(t, before+3, testutil.ToFloat64(marksDroppedTotal))
}

func TestSessionGauge(t *testing.T) {
	sessionsActive.Set(0)
	SessionStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(sessionsActive))
	SessionEnded()
	assert.Equal(t, 0.0, testutil.ToFloat64(sessionsActive))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordToolCall("mark_screen", "ok")

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "glance_tool_calls_total"))
}
