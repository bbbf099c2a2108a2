package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/idpserver/internal/cache"
	"github.com/dropDatabas3/idpserver/internal/metrics"
)

// MetricsConfig agrupa dependencias necesarias para exponer /metrics.
type MetricsConfig struct {
	// Registry propio; nil usa el default de prometheus.
	Registry *prometheus.Registry
	// Pools opcionales (store pg); nil omite las métricas de pool.
	Writer *pgxpool.Pool
	Reader *pgxpool.Pool
	// Cache de sesiones y configuración; nil omite idp_cache_*.
	Cache cache.Client
}

// RegisterMetrics registra los collectors del servidor y, si hay pools, un
// collector de conexiones. Devuelve el handler para /metrics.
func RegisterMetrics(cfg MetricsConfig) (http.Handler, error) {
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if cfg.Registry != nil {
		reg, gatherer = cfg.Registry, cfg.Registry
		if err := registerCollector(reg, collectors.NewGoCollector()); err != nil {
			return nil, err
		}
		if err := registerCollector(reg, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, err
		}
	}
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}
	if cfg.Writer != nil {
		if err := registerCollector(reg, newDBPoolCollector(cfg.Writer, cfg.Reader)); err != nil {
			return nil, err
		}
	}
	if cfg.Cache != nil {
		if err := registerCollector(reg, newCacheCollector(cfg.Cache)); err != nil {
			return nil, err
		}
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}), nil
}

// registerCollector registra el collector en el registry indicado, ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// dbPoolCollector expone gauges de los pools writer y reader.
type dbPoolCollector struct {
	pools map[string]*pgxpool.Pool

	acquiredDesc *prometheus.Desc
	idleDesc     *prometheus.Desc
	totalDesc    *prometheus.Desc
}

func newDBPoolCollector(writer, reader *pgxpool.Pool) *dbPoolCollector {
	pools := map[string]*pgxpool.Pool{"writer": writer}
	if reader != nil && reader != writer {
		pools["reader"] = reader
	}
	return &dbPoolCollector{
		pools:        pools,
		acquiredDesc: prometheus.NewDesc("pgxpool_acquired_conns", "Conexiones adquiridas por pool", []string{"pool"}, nil),
		idleDesc:     prometheus.NewDesc("pgxpool_idle_conns", "Conexiones inactivas por pool", []string{"pool"}, nil),
		totalDesc:    prometheus.NewDesc("pgxpool_total_conns", "Conexiones totales por pool", []string{"pool"}, nil),
	}
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredDesc
	ch <- c.idleDesc
	ch <- c.totalDesc
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	for name, pool := range c.pools {
		stat := pool.Stat()
		ch <- prometheus.MustNewConstMetric(c.acquiredDesc, prometheus.GaugeValue, float64(stat.AcquiredConns()), name)
		ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(stat.IdleConns()), name)
		ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(stat.TotalConns()), name)
	}
}

// cacheCollector lee cache.Stats en cada scrape.
type cacheCollector struct {
	c cache.Client

	keysDesc   *prometheus.Desc
	hitsDesc   *prometheus.Desc
	missesDesc *prometheus.Desc
}

func newCacheCollector(c cache.Client) *cacheCollector {
	labels := []string{"driver"}
	return &cacheCollector{
		c:          c,
		keysDesc:   prometheus.NewDesc("idp_cache_keys", "Keys presentes en el cache", labels, nil),
		hitsDesc:   prometheus.NewDesc("idp_cache_hits", "Lecturas con hit", labels, nil),
		missesDesc: prometheus.NewDesc("idp_cache_misses", "Lecturas sin hit", labels, nil),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keysDesc
	ch <- c.hitsDesc
	ch <- c.missesDesc
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := c.c.Stats(ctx)
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.keysDesc, prometheus.GaugeValue, float64(st.Keys), st.Driver)
	ch <- prometheus.MustNewConstMetric(c.hitsDesc, prometheus.CounterValue, float64(st.Hits), st.Driver)
	ch <- prometheus.MustNewConstMetric(c.missesDesc, prometheus.CounterValue, float64(st.Misses), st.Driver)
}
