package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordWrite(t *testing.T) {
	m := New()

	m.RecordWrite("EVENT", "save", nil)
	m.RecordWrite("EVENT", "save", nil)
	m.RecordWrite("VENUE", "save", errors.New("invalid coordinate"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.writes.WithLabelValues("EVENT", "save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("VENUE", "save", "error")))
}

func TestRecordQueryAndSteps(t *testing.T) {
	m := New()

	m.RecordQuery("DATE", 3*time.Millisecond, nil)
	m.RecordStep("date", 12)
	m.RecordStep("geo", 3)
	m.RecordCache(true)
	m.RecordCache(false)
	m.SetGeneration(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("DATE", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.queryDuration))
	assert.Equal(t, 2, testutil.CollectAndCount(m.stepSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cache.WithLabelValues("hit")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.generation))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordWrite("EVENT", "save", nil)
		m.RecordDerivation("text", "EVENT")
		m.RecordQuery("DATE", time.Millisecond, nil)
		m.RecordStep("date", 1)
		m.RecordCache(true)
		m.SetGeneration(1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordDerivation("geo", "VENUE")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `whenr_derivations_total{index="geo",kind="VENUE"} 1`))
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordWrite("EVENT", "delete", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.writes.WithLabelValues("EVENT", "delete", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.writes.WithLabelValues("EVENT", "delete", "ok")))
}
