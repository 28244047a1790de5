package network

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics Prometheus-метрики сетевого уровня. Все методы допускают nil-получатель,
// так что транспорт работает и без метрик.
type Metrics struct {
	packetsSent     *prometheus.CounterVec
	packetsReceived *prometheus.CounterVec
	bytesSent       prometheus.Counter
	bytesReceived   prometheus.Counter
	retransmits     prometheus.Counter
	expired         prometheus.Counter
	dropped         *prometheus.CounterVec
	connections     prometheus.Gauge
	pending         prometheus.Gauge
}

// NewMetrics создаёт и регистрирует метрики в reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sandbox",
			Subsystem: "net",
			Name:      "packets_sent_total",
			Help:      "Отправленные датаграммы по надёжности.",
		}, []string{"reliable"}),
		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sandbox",
			Subsystem: "net",
			Name:      "packets_received_total",
			Help:      "Принятые датаграммы по надёжности.",
		}, []string{"reliable"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sandbox",
			Subsystem: "net",
			Name:      "bytes_sent_total",
			Help:      "Отправлено байт.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sandbox",
			Subsystem: "net",
			Name:      "bytes_received_total",
			Help:      "Принято байт.",
		}),
		retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sandbox",
			Subsystem: "net",
			Name:      "retransmits_total",
			Help:      "Повторные отправки надёжных сообщений.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sandbox",
			Subsystem: "net",
			Name:      "expired_total",
			Help:      "Надёжные сообщения, исчерпавшие попытки.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sandbox",
			Subsystem: "net",
			Name:      "dropped_total",
			Help:      "Отброшенные входящие датаграммы по причине.",
		}, []string{"reason"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sandbox",
			Subsystem: "net",
			Name:      "connections",
			Help:      "Активные подключения.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sandbox",
			Subsystem: "net",
			Name:      "pending_reliable",
			Help:      "Неподтверждённые надёжные сообщения.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.packetsSent, m.packetsReceived, m.bytesSent, m.bytesReceived,
			m.retransmits, m.expired, m.dropped, m.connections, m.pending)
	}
	return m
}

func reliableLabel(reliable bool) string {
	if reliable {
		return "true"
	}
	return "false"
}

func (m *Metrics) packetSent(reliable bool, size int) {
	if m == nil {
		return
	}
	m.packetsSent.WithLabelValues(reliableLabel(reliable)).Inc()
	m.bytesSent.Add(float64(size))
}

func (m *Metrics) packetReceived(reliable bool, size int) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(reliableLabel(reliable)).Inc()
	m.bytesReceived.Add(float64(size))
}

func (m *Metrics) retransmit() {
	if m != nil {
		m.retransmits.Inc()
	}
}

func (m *Metrics) expiredMessage() {
	if m != nil {
		m.expired.Inc()
	}
}

// Dropped учитывает отброшенную датаграмму
func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

// SetConnections обновляет число подключений
func (m *Metrics) SetConnections(n int) {
	if m != nil {
		m.connections.Set(float64(n))
	}
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.pending.Set(float64(n))
	}
}
