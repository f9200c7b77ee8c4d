// Package metrics exports controller activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/itohio/plantcare/pkg/plant"
	"github.com/itohio/plantcare/pkg/sample"
	"github.com/itohio/plantcare/pkg/telemetry"
	"github.com/itohio/plantcare/pkg/water"
)

const namespace = "plantcare"

// Metrics is a plant.Observer backed by Prometheus collectors.
type Metrics struct {
	cycles        prometheus.Counter
	cyclesDropped prometheus.Counter
	packets       *prometheus.CounterVec
	watered       prometheus.Counter
	faults        *prometheus.CounterVec
	temperature   *prometheus.GaugeVec
	voltage       *prometheus.GaugeVec
	uvLevel       prometheus.Gauge
	timesWatered  prometheus.Gauge
}

var _ plant.Observer = (*Metrics)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed sampling windows.",
		}),
		cyclesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_dropped_total",
			Help:      "Completed windows dropped because the worker was busy.",
		}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Telemetry packets by result (sent, dropped).",
		}, []string{"result"}),
		watered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waterings_total",
			Help:      "Completed watering actuations.",
		}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Faults by stage.",
		}, []string{"stage"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature",
			Help:      "Last converted temperature in sensor units.",
		}, []string{"channel"}),
		voltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_voltage_volts",
			Help:      "Average voltage of the last window.",
		}, []string{"channel"}),
		uvLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uv_level",
			Help:      "Last UV intensity level.",
		}),
		timesWatered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "times_watered",
			Help:      "Watering counter as sent in telemetry (wraps at 256).",
		}),
	}

	reg.MustRegister(
		m.cycles,
		m.cyclesDropped,
		m.packets,
		m.watered,
		m.faults,
		m.temperature,
		m.voltage,
		m.uvLevel,
		m.timesWatered,
	)

	return m
}

func (m *Metrics) CycleCompleted(r sample.Readings) {
	m.cycles.Inc()
	m.temperature.WithLabelValues(sample.Ambient.String()).Set(decimal(r.Ambient))
	m.temperature.WithLabelValues(sample.Plant.String()).Set(decimal(r.Plant))
	m.voltage.WithLabelValues(sample.Ambient.String()).Set(float64(r.AmbientVolts))
	m.voltage.WithLabelValues(sample.Plant.String()).Set(float64(r.PlantVolts))
	m.voltage.WithLabelValues(sample.UV.String()).Set(float64(r.UVVolts))
	m.uvLevel.Set(float64(r.UV))
}

func (m *Metrics) CycleDropped() {
	m.cyclesDropped.Inc()
}

func (m *Metrics) PacketSent(telemetry.Packet) {
	m.packets.WithLabelValues("sent").Inc()
}

func (m *Metrics) PacketDropped(telemetry.Packet) {
	m.packets.WithLabelValues("dropped").Inc()
}

func (m *Metrics) Watered(s water.State) {
	m.watered.Inc()
	m.timesWatered.Set(float64(s.TimesWatered))
}

func (m *Metrics) Fault(stage string, _ error) {
	m.faults.WithLabelValues(stage).Inc()
}

func decimal(t sample.Temperature) float64 {
	return float64(t.Int) + float64(t.Dec)/10
}
