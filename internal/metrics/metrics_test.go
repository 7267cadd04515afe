package metrics

import (
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleSucceeded(t *testing.T) {
	m := New()
	m.CycleSucceeded("feed", 2, 1, 3, 4, 10, true, 50*time.Millisecond)
	m.CycleSucceeded("feed", 1, 0, 0, 0, 11, false, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("feed", OutcomeSuccess)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChangesTotal.WithLabelValues("feed", "added")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChangesTotal.WithLabelValues("feed", "changed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SkippedLinesTotal.WithLabelValues("feed")))
	assert.Equal(t, 11.0, testutil.ToFloat64(m.RecordsCurrent.WithLabelValues("feed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotWritesTotal.WithLabelValues("feed", OutcomeFailure)))
}

func TestCycleFailedAndNotified(t *testing.T) {
	m := New()
	m.CycleFailed("feed", time.Second)
	m.Notified("error", false)
	m.RunFinished(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("feed", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("error", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(OutcomeFailure)))
}

func TestWriteTextfileAndHandler(t *testing.T) {
	m := New()
	m.RunFinished(true)

	path := filepath.Join(t.TempDir(), "changewatch.prom")
	require.NoError(t, m.WriteTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `changewatch_monitor_runs_total{outcome="success"} 1`)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "changewatch_monitor_runs_total")
}
