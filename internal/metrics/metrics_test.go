package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsUpdates(t *testing.T) {
	m := New()

	m.ObserveCycle("irrigation", 2*time.Second, nil)
	m.ObserveCycle("irrigation", time.Second, errors.New("boom"))
	m.IncCycleSkipped("irrigation")
	m.IncPotOutcome(3, "FULL")
	m.IncPotOutcome(3, "FULL")
	m.IncTankRefill("TIMED_OUT")
	m.SetMoisture([]bool{true, false}, []int{2, 0})
	m.IncSensorError("moisture")
	m.IncSafetyTrip()
	m.SetSafetyActive(true)
	temp, hum := 31.5, 40.0
	m.SetClimate(true, &temp, &hum)
	m.IncPersistError()
	m.SetLastIrrigation(time.Unix(100, 0))

	if got := testutil.ToFloat64(m.cycleSkippedTotal.WithLabelValues("irrigation")); got != 1 {
		t.Fatalf("expected skipped 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.cycleErrorsTotal.WithLabelValues("irrigation")); got != 1 {
		t.Fatalf("expected errors 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.potOutcomesTotal.WithLabelValues("3", "FULL")); got != 2 {
		t.Fatalf("expected pot 3 FULL 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.tankRefillsTotal.WithLabelValues("TIMED_OUT")); got != 1 {
		t.Fatalf("expected refill timeouts 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.potDry.WithLabelValues("0")); got != 1 {
		t.Fatalf("expected pot 0 dry, got %v", got)
	}
	if got := testutil.ToFloat64(m.dailyWaterings.WithLabelValues("0")); got != 2 {
		t.Fatalf("expected pot 0 daily count 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.safetyActive); got != 1 {
		t.Fatalf("expected safety active, got %v", got)
	}
	if got := testutil.ToFloat64(m.temperatureCelsius); got != 31.5 {
		t.Fatalf("expected temperature 31.5, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastIrrigationGauge); got != 100 {
		t.Fatalf("expected last irrigation 100, got %v", got)
	}
	if count := testutil.CollectAndCount(m.cycleDurationSeconds); count != 1 {
		t.Fatalf("expected one cycle duration series, got %d", count)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCycle("thermal", time.Second, nil)
	m.IncCycleSkipped("thermal")
	m.IncPotOutcome(0, "FULL")
	m.SetMoisture([]bool{true}, []int{1})
	m.SetClimate(false, nil, nil)
	m.SetSafetyActive(true)
	if m.Handler() == nil {
		t.Fatal("expected default handler")
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.IncSafetyTrip()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "drip_safety_trips_total 1") {
		t.Fatalf("metrics output missing trip counter:\n%s", rec.Body.String())
	}
}
