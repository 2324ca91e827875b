package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReminderMetrics exposes counters/histograms for the reminder scheduler.
type ReminderMetrics struct {
	scheduleTotal *prometheus.CounterVec
	deliveryTotal *prometheus.CounterVec
	cancelTotal   prometheus.Counter
	recoverTotal  *prometheus.CounterVec
	sendLatency   *prometheus.HistogramVec
	armedTimers   prometheus.Gauge
}

func NewReminderMetrics(reg prometheus.Registerer) *ReminderMetrics {
	m := &ReminderMetrics{
		scheduleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylebook",
			Subsystem: "reminders",
			Name:      "schedule_total",
			Help:      "Schedule requests by result",
		}, []string{"result"}),
		deliveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylebook",
			Subsystem: "reminders",
			Name:      "delivery_total",
			Help:      "Delivery attempts by outcome (sent, retry, failed, skipped)",
		}, []string{"outcome"}),
		cancelTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stylebook",
			Subsystem: "reminders",
			Name:      "cancelled_total",
			Help:      "Jobs moved to cancelled",
		}),
		recoverTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylebook",
			Subsystem: "reminders",
			Name:      "recovered_total",
			Help:      "Jobs picked up by the startup recovery sweep",
		}, []string{"mode"}),
		sendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stylebook",
			Subsystem: "reminders",
			Name:      "send_latency_seconds",
			Help:      "Latency of notifier calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		armedTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stylebook",
			Subsystem: "reminders",
			Name:      "armed_timers",
			Help:      "Timers currently armed in this process",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.scheduleTotal, m.deliveryTotal, m.cancelTotal, m.recoverTotal, m.sendLatency, m.armedTimers)
	return m
}

func (m *ReminderMetrics) ObserveSchedule(result string) {
	if m == nil {
		return
	}
	m.scheduleTotal.WithLabelValues(result).Inc()
}

func (m *ReminderMetrics) ObserveDelivery(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.deliveryTotal.WithLabelValues(outcome).Inc()
	if seconds >= 0 {
		m.sendLatency.WithLabelValues(outcome).Observe(seconds)
	}
}

func (m *ReminderMetrics) ObserveSkipped() {
	if m == nil {
		return
	}
	m.deliveryTotal.WithLabelValues("skipped").Inc()
}

func (m *ReminderMetrics) ObserveCancelled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cancelTotal.Add(float64(n))
}

func (m *ReminderMetrics) ObserveRecovered(mode string) {
	if m == nil {
		return
	}
	m.recoverTotal.WithLabelValues(mode).Inc()
}

func (m *ReminderMetrics) SetArmedTimers(n int) {
	if m == nil {
		return
	}
	m.armedTimers.Set(float64(n))
}

// NotifierMetrics counts outbound provider sends.
type NotifierMetrics struct {
	outboundTotal  *prometheus.CounterVec
	deliveryStatus *prometheus.CounterVec
}

func NewNotifierMetrics(reg prometheus.Registerer) *NotifierMetrics {
	m := &NotifierMetrics{
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylebook",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound SMS sends by provider and status",
		}, []string{"provider", "status"}),
		deliveryStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylebook",
			Subsystem: "messaging",
			Name:      "delivery_status_total",
			Help:      "Provider delivery status callbacks by provider and reported status",
		}, []string{"provider", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outboundTotal, m.deliveryStatus)
	return m
}

func (m *NotifierMetrics) ObserveOutbound(provider string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.outboundTotal.WithLabelValues(provider, status).Inc()
}

// ObserveDeliveryStatus records a status callback from a provider webhook.
func (m *NotifierMetrics) ObserveDeliveryStatus(provider, status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.deliveryStatus.WithLabelValues(provider, status).Inc()
}
