package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/eligibility"
	"github.com/ignite/adserving/internal/serving"
)

func TestObserveCycle(t *testing.T) {
	m := New(false)

	ad := domain.CreativeAd{CreativeInstanceID: "c1"}
	m.ObserveCycle(serving.Result{Outcome: serving.OutcomeDelivered, Ad: &ad, Tier: serving.TierParent, Duration: 20 * time.Millisecond})
	m.ObserveCycle(serving.Result{Outcome: serving.OutcomeNotServed})
	m.ObserveCycle(serving.Result{Outcome: serving.OutcomeNotServed})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues("delivered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Cycles.WithLabelValues("not_served")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Cycles.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Served.WithLabelValues("parent")))
}

func TestOnExcludeAndEvents(t *testing.T) {
	m := New(false)

	m.OnExclude(domain.CreativeAd{}, eligibility.ReasonDailyCap)
	m.OnExclude(domain.CreativeAd{}, eligibility.ReasonDailyCap)
	m.EventRecorded(domain.AdClicked)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Exclusions.WithLabelValues(string(eligibility.ReasonDailyCap))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues(string(domain.AdClicked))))
}

func TestHandler(t *testing.T) {
	m := New(true)
	m.ObserveCycle(serving.Result{Outcome: serving.OutcomeFailed})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `adserving_cycles_total{outcome="failed"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
