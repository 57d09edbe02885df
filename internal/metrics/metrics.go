// Package metrics exports monitor samples as Prometheus gauges.
package metrics

import (
	"net/http"
	"strconv"

	"codeberg.org/mutker/asusfanctl/internal/control"
	"codeberg.org/mutker/asusfanctl/internal/monitor"
	"codeberg.org/mutker/asusfanctl/internal/sensors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "asusfanctl"

// Collector is a monitor.Subscriber backed by its own registry.
type Collector struct {
	registry *prometheus.Registry

	temperature *prometheus.GaugeVec
	available   *prometheus.GaugeVec
	fanRPM      *prometheus.GaugeVec
	fanCount    prometheus.Gauge
	speed       prometheus.Gauge
	targetDuty  prometheus.Gauge
	ticks       prometheus.Counter
	tickErrors  prometheus.Counter
	spikes      prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last temperature reading by source.",
		}, []string{"source"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_available",
			Help:      "1 when the source produced a reading on the last tick.",
		}, []string{"source"}),
		fanRPM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_rpm",
			Help:      "Fan speed in revolutions per minute.",
		}, []string{"fan"}),
		fanCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fans",
			Help:      "Number of fans reported by the board.",
		}),
		speed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_speed_percent",
			Help:      "Mean fan speed relative to the rated maximum.",
		}),
		targetDuty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_duty_percent",
			Help:      "Duty last applied by the automatic controller.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Successful monitor ticks.",
		}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_errors_total",
			Help:      "Monitor ticks that reported an error.",
		}),
		spikes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temperature_spikes_total",
			Help:      "Controller adjustments that hit the rate limit.",
		}),
	}

	c.registry.MustRegister(
		c.temperature, c.available, c.fanRPM, c.fanCount, c.speed,
		c.targetDuty, c.ticks, c.tickErrors, c.spikes,
	)

	return c
}

func (c *Collector) OnTick(ev monitor.Event) {
	c.observeTemperature(ev.CPU)
	c.observeTemperature(ev.GPU)

	c.fanRPM.WithLabelValues(fanLabel(0)).Set(float64(ev.Fan1RPM))
	if ev.FanCount > 1 {
		c.fanRPM.WithLabelValues(fanLabel(1)).Set(float64(ev.Fan2RPM))
	}
	c.fanCount.Set(float64(ev.FanCount))
	c.speed.Set(ev.SpeedPercent)
	c.ticks.Inc()
}

func (c *Collector) OnError(monitor.ErrorEvent) {
	c.tickErrors.Inc()
}

// ObserveAdjustment records one controller step.
func (c *Collector) ObserveAdjustment(res control.Result) {
	c.targetDuty.Set(float64(res.TargetDuty))
	if res.Settled {
		c.spikes.Inc()
	}
}

func (c *Collector) observeTemperature(t sensors.Temperature) {
	src := string(t.Source)
	if !t.Available {
		c.available.WithLabelValues(src).Set(0)
		c.temperature.DeleteLabelValues(src)
		return
	}
	c.available.WithLabelValues(src).Set(1)
	c.temperature.WithLabelValues(src).Set(float64(t.Celsius))
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func fanLabel(index int) string {
	return strconv.Itoa(index + 1)
}

var _ monitor.Subscriber = (*Collector)(nil)
