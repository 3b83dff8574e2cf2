package metrics

import (
	"net/http"

	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/nfvri/lora-simulator/pkg/utils"
	"github.com/onosproject/onos-lib-go/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OutOfRangeLabel is the sf label of the devices no gateway can hear
const OutOfRangeLabel = "out_of_range"

// Collector bundles the Prometheus metrics of a simulation run and observes
// every finalized uplink of the reception engine.
type Collector struct {
	gatherer prometheus.Gatherer

	Uplinks    *prometheus.CounterVec
	Receptions *prometheus.CounterVec
	RxPower    *prometheus.HistogramVec
	Devices    *prometheus.GaugeVec
}

// NewCollector registers the simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	uplinks, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lora_uplinks_total",
		Help: "Total number of finalized uplinks, labeled by whether any gateway captured them.",
	}, []string{"captured"}), "lora_uplinks_total")
	if err != nil {
		return nil, err
	}
	receptions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lora_receptions_total",
		Help: "Total number of uplink receptions, labeled by gateway and outcome.",
	}, []string{"gateway", "outcome"}), "lora_receptions_total")
	if err != nil {
		return nil, err
	}
	rxPower, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lora_rx_power_dbm",
		Help:    "Received power of captured uplinks in dBm.",
		Buckets: prometheus.LinearBuckets(-145, 5, 14),
	}, []string{"gateway"}), "lora_rx_power_dbm")
	if err != nil {
		return nil, err
	}
	devices, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lora_devices",
		Help: "Number of devices per assigned spreading factor.",
	}, []string{"sf"}), "lora_devices")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:   gatherer,
		Uplinks:    uplinks,
		Receptions: receptions,
		RxPower:    rxPower,
		Devices:    devices,
	}, nil
}

// ObserveUplink records the outcome of an uplink at every gateway
func (c *Collector) ObserveUplink(_ model.UplinkEvent, records []model.ReceptionRecord) {
	if c == nil {
		return
	}
	captured := false
	for _, r := range records {
		c.Receptions.WithLabelValues(r.GatewayID, r.Outcome.String()).Inc()
		if r.Captured {
			captured = true
			c.RxPower.WithLabelValues(r.GatewayID).Observe(r.RxPowerDbm)
		}
	}
	c.Uplinks.WithLabelValues(utils.If(captured, "true", "false")).Inc()
}

// SetAllocation publishes the spreading factor histogram
func (c *Collector) SetAllocation(counts map[model.SpreadingFactor]int, outOfRange int) {
	if c == nil {
		return
	}
	for _, sf := range model.SpreadingFactors() {
		c.Devices.WithLabelValues(sf.String()).Set(float64(counts[sf]))
	}
	c.Devices.WithLabelValues(OutOfRangeLabel).Set(float64(outOfRange))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// register returns the collector already registered under name when there is one of the same type
func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return collector, errors.NewConflict("collector %s already registered with incompatible type", name)
		}
		return collector, err
	}
	return collector, nil
}
