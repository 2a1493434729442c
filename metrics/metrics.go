// Package metrics counts bus and dispatch activity with Prometheus
// collectors.
//
// A [Collector] implements both [bus.Observer] and [dispatch.Observer] and
// registers its metrics on a private registry, so several emulators can
// run in one process:
//
//	m := metrics.New()
//	transport.SetObserver(m)
//	dispatcher.SetObserver(m)
//	http.Handle("/metrics", m.Handler())
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ardnew/softgpib/bus"
	"github.com/ardnew/softgpib/dispatch"
	"github.com/ardnew/softgpib/pkg"
)

const namespace = "gpib"

// Collector holds the emulator counters.
type Collector struct {
	registry *prometheus.Registry

	bytes        *prometheus.CounterVec
	commands     prometheus.Counter
	errors       *prometheus.CounterVec
	polls        prometheus.Counter
	pollResponse prometheus.Gauge
	routed       *prometheus.CounterVec
	clears       prometheus.Counter
}

var (
	_ bus.Observer      = (*Collector)(nil)
	_ dispatch.Observer = (*Collector)(nil)
)

// errorFlags are the transport error flags counted separately.
var errorFlags = []struct {
	flag  bus.Status
	label string
}{
	{bus.IFC, "ifc"},
	{bus.Timeout, "timeout"},
	{bus.BusError, "bus_error"},
}

// New creates a collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes moved by the transport, by direction.",
		}, []string{"direction"}),
		commands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_received_total",
			Help:      "Bytes received with ATN asserted.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Aborted byte transfers, by error flag.",
		}, []string{"flag"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parallel_polls_total",
			Help:      "Parallel polls answered.",
		}),
		pollResponse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "parallel_poll_response",
			Help:      "Response byte driven on the last parallel poll.",
		}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secondaries_routed_total",
			Help:      "Secondary addresses routed to a device.",
		}, []string{"device", "secondary"}),
		clears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interface_clears_total",
			Help:      "Interface clears seen.",
		}),
	}
	c.registry.MustRegister(c.bytes, c.commands, c.errors, c.polls,
		c.pollResponse, c.routed, c.clears)
	for _, f := range errorFlags {
		c.errors.WithLabelValues(f.label)
	}
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ByteReceived counts a received byte.
func (c *Collector) ByteReceived(b bus.Byte) {
	if c.countErrors(b.Status) {
		return
	}
	c.bytes.WithLabelValues("received").Inc()
	if b.IsCommand() {
		c.commands.Inc()
	}
}

// ByteSent counts a sent byte.
func (c *Collector) ByteSent(b bus.Byte) {
	if c.countErrors(b.Status) {
		return
	}
	c.bytes.WithLabelValues("sent").Inc()
}

// ParallelPoll counts an answered parallel poll.
func (c *Collector) ParallelPoll(response uint8) {
	c.polls.Inc()
	c.pollResponse.Set(float64(response))
}

// Routed counts a secondary address handed to device.
func (c *Collector) Routed(device string, secondary uint8) {
	c.routed.WithLabelValues(device, fmt.Sprintf("%02X", secondary)).Inc()
}

// InterfaceClear counts an interface clear.
func (c *Collector) InterfaceClear() {
	c.clears.Inc()
}

func (c *Collector) countErrors(st bus.Status) bool {
	if !st.IsError() {
		return false
	}
	for _, f := range errorFlags {
		if st&f.flag != 0 {
			c.errors.WithLabelValues(f.label).Inc()
		}
	}
	return true
}

// WriteSummary writes one line per nonzero sample, sorted by name.
func (c *Collector) WriteSummary(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			}
			if v == 0 {
				continue
			}
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			lines = append(lines, fmt.Sprintf("%s %g", name, v))
		}
	}
	sort.Strings(lines)
	if len(lines) == 0 {
		lines = []string{"no activity"}
	}
	_, err = io.WriteString(w, strings.Join(lines, "\n")+"\n")
	if err != nil {
		pkg.LogDebug(pkg.ComponentMetrics, "write summary", "error", err)
	}
	return err
}
