package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/annel0/sandbox-game/internal/logging"
)

// ProcessCollector метрики процесса сервера через gopsutil:
// CPU, RSS, число горутин и время работы
type ProcessCollector struct {
	startTime time.Time
	proc      *process.Process

	cpu        *prometheus.Desc
	rss        *prometheus.Desc
	goroutines *prometheus.Desc
	uptime     *prometheus.Desc
}

// NewProcessCollector создаёт коллектор для текущего процесса
func NewProcessCollector() (*ProcessCollector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &ProcessCollector{
		startTime:  time.Now(),
		proc:       proc,
		cpu:        prometheus.NewDesc("sandbox_process_cpu_percent", "Загрузка CPU процессом, %.", nil, nil),
		rss:        prometheus.NewDesc("sandbox_process_rss_bytes", "Резидентная память процесса.", nil, nil),
		goroutines: prometheus.NewDesc("sandbox_goroutines", "Число горутин.", nil, nil),
		uptime:     prometheus.NewDesc("sandbox_uptime_seconds", "Время работы сервера.", nil, nil),
	}, nil
}

func (c *ProcessCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpu
	ch <- c.rss
	ch <- c.goroutines
	ch <- c.uptime
}

func (c *ProcessCollector) Collect(ch chan<- prometheus.Metric) {
	if cpu, err := c.proc.CPUPercent(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.cpu, prometheus.GaugeValue, cpu)
	}
	if mem, err := c.proc.MemoryInfo(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.rss, prometheus.GaugeValue, float64(mem.RSS))
	}
	ch <- prometheus.MustNewConstMetric(c.goroutines, prometheus.GaugeValue, float64(runtime.NumGoroutine()))
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, time.Since(c.startTime).Seconds())
}

// MetricsServer HTTP-сервер с /metrics
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
}

// StartMetricsServer поднимает /metrics для registry на addr. Метод неблокирующий.
func StartMetricsServer(addr string, registry *prometheus.Registry) (*MetricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	ms := &MetricsServer{
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
	}
	go func() {
		logging.Info("📈 Prometheus /metrics доступен по адресу %s", ln.Addr())
		if err := ms.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()
	return ms, nil
}

// Addr фактический адрес слушателя
func (ms *MetricsServer) Addr() string { return ms.listener.Addr().String() }

func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
