// Package metrics exposes controller state as Prometheus collectors.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for drip-controller.
type Metrics struct {
	registry             *prometheus.Registry
	cycleDurationSeconds *prometheus.HistogramVec
	cycleSkippedTotal    *prometheus.CounterVec
	cycleErrorsTotal     *prometheus.CounterVec
	potOutcomesTotal     *prometheus.CounterVec
	tankRefillsTotal     *prometheus.CounterVec
	potDry               *prometheus.GaugeVec
	dailyWaterings       *prometheus.GaugeVec
	sensorErrorsTotal    *prometheus.CounterVec
	safetyTripsTotal     prometheus.Counter
	safetyActive         prometheus.Gauge
	coolingActive        prometheus.Gauge
	temperatureCelsius   prometheus.Gauge
	humidityPercent      prometheus.Gauge
	persistErrorsTotal   prometheus.Counter
	lastIrrigationGauge  prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		cycleDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drip_cycle_duration_seconds",
			Help:    "Duration of scheduler cycles in seconds.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 180, 600, 1200},
		}, []string{"cycle"}),
		cycleSkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drip_cycle_skipped_total",
			Help: "Ticks dropped because the same cycle was still running.",
		}, []string{"cycle"}),
		cycleErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drip_cycle_errors_total",
			Help: "Cycles that finished with an error.",
		}, []string{"cycle"}),
		potOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drip_pot_outcomes_total",
			Help: "Per-pot irrigation outcomes, including skips.",
		}, []string{"pot", "outcome"}),
		tankRefillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drip_tank_refills_total",
			Help: "Small tank refills by outcome.",
		}, []string{"outcome"}),
		potDry: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drip_pot_dry",
			Help: "1 if the pot read dry on the last sample.",
		}, []string{"pot"}),
		dailyWaterings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drip_pot_daily_dry_count",
			Help: "Snapshots today showing the pot dry, as used for the daily limit.",
		}, []string{"pot"}),
		sensorErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drip_sensor_read_errors_total",
			Help: "Failed sensor reads by sensor kind.",
		}, []string{"sensor"}),
		safetyTripsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drip_safety_trips_total",
			Help: "Unsafe safety checks.",
		}),
		safetyActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drip_safety_interlock_active",
			Help: "1 while watering is vetoed by the safety interlock.",
		}),
		coolingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drip_cooling_active",
			Help: "1 while the cooling fan is on.",
		}),
		temperatureCelsius: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drip_temperature_celsius",
			Help: "Last air temperature sample.",
		}),
		humidityPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drip_humidity_percent",
			Help: "Last relative humidity sample.",
		}),
		persistErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drip_persistence_errors_total",
			Help: "Failed history flushes.",
		}),
		lastIrrigationGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drip_last_irrigation_timestamp",
			Help: "Unix timestamp of the last completed irrigation cycle.",
		}),
	}

	registry.MustRegister(
		m.cycleDurationSeconds,
		m.cycleSkippedTotal,
		m.cycleErrorsTotal,
		m.potOutcomesTotal,
		m.tankRefillsTotal,
		m.potDry,
		m.dailyWaterings,
		m.sensorErrorsTotal,
		m.safetyTripsTotal,
		m.safetyActive,
		m.coolingActive,
		m.temperatureCelsius,
		m.humidityPercent,
		m.persistErrorsTotal,
		m.lastIrrigationGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(cycle string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.cycleDurationSeconds.WithLabelValues(cycle).Observe(duration.Seconds())
	if err != nil {
		m.cycleErrorsTotal.WithLabelValues(cycle).Inc()
	}
}

func (m *Metrics) IncCycleSkipped(cycle string) {
	if m == nil {
		return
	}
	m.cycleSkippedTotal.WithLabelValues(cycle).Inc()
}

func (m *Metrics) IncPotOutcome(pot int, outcome string) {
	if m == nil {
		return
	}
	m.potOutcomesTotal.WithLabelValues(strconv.Itoa(pot), outcome).Inc()
}

func (m *Metrics) IncTankRefill(outcome string) {
	if m == nil {
		return
	}
	m.tankRefillsTotal.WithLabelValues(outcome).Inc()
}

// SetMoisture publishes the last snapshot and the daily counts.
func (m *Metrics) SetMoisture(dry []bool, daily []int) {
	if m == nil {
		return
	}
	for pot, d := range dry {
		m.potDry.WithLabelValues(strconv.Itoa(pot)).Set(boolFloat(d))
	}
	for pot, n := range daily {
		m.dailyWaterings.WithLabelValues(strconv.Itoa(pot)).Set(float64(n))
	}
}

func (m *Metrics) IncSensorError(sensor string) {
	if m == nil {
		return
	}
	m.sensorErrorsTotal.WithLabelValues(sensor).Inc()
}

func (m *Metrics) IncSafetyTrip() {
	if m == nil {
		return
	}
	m.safetyTripsTotal.Inc()
}

func (m *Metrics) SetSafetyActive(active bool) {
	if m == nil {
		return
	}
	m.safetyActive.Set(boolFloat(active))
}

// SetClimate records the thermal controller's view.
func (m *Metrics) SetClimate(cooling bool, tempC, humidityPct *float64) {
	if m == nil {
		return
	}
	m.coolingActive.Set(boolFloat(cooling))
	if tempC != nil {
		m.temperatureCelsius.Set(*tempC)
	}
	if humidityPct != nil {
		m.humidityPercent.Set(*humidityPct)
	}
}

func (m *Metrics) IncPersistError() {
	if m == nil {
		return
	}
	m.persistErrorsTotal.Inc()
}

func (m *Metrics) SetLastIrrigation(t time.Time) {
	if m == nil {
		return
	}
	m.lastIrrigationGauge.Set(float64(t.Unix()))
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
