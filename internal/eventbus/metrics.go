package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector отдаёт Stats шины в Prometheus при каждом сборе метрик.
// HTTP-эндпоинт /metrics поднимает пакет observability.
type Collector struct {
	bus       EventBus
	published *prometheus.Desc
	consumed  *prometheus.Desc
	dropped   *prometheus.Desc
	inflight  *prometheus.Desc
}

// NewCollector регистрирует метрики шины в reg
func NewCollector(bus EventBus, reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		bus: bus,
		published: prometheus.NewDesc("eventbus_messages_published_total",
			"Опубликовано событий.", nil, nil),
		consumed: prometheus.NewDesc("eventbus_messages_consumed_total",
			"Событий доставлено подписчикам.", nil, nil),
		dropped: prometheus.NewDesc("eventbus_messages_dropped_total",
			"Событий отброшено при переполнении или ошибке.", nil, nil),
		inflight: prometheus.NewDesc("eventbus_messages_inflight",
			"Событий в очередях подписчиков.", nil, nil),
	}
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.published
	ch <- c.consumed
	ch <- c.dropped
	ch <- c.inflight
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.bus.Metrics()
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(s.Published))
	ch <- prometheus.MustNewConstMetric(c.consumed, prometheus.CounterValue, float64(s.Consumed))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.inflight, prometheus.GaugeValue, float64(s.InFlight))
}
