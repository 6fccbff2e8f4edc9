package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var directoryMetrics = struct {
	Hits          prometheus.Counter
	Misses        prometheus.Counter
	Evictions     prometheus.Counter
	BackendErrors *prometheus.CounterVec
}{
	Hits: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memberdir", Subsystem: "directory", Name: "hits_total",
		Help: "Member reads served from the cache",
	}),
	Misses: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memberdir", Subsystem: "directory", Name: "misses_total",
		Help: "Member reads that went to the store",
	}),
	Evictions: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memberdir", Subsystem: "directory", Name: "evictions_total",
		Help: "Cache entries removed after a delete or an uncertain write",
	}),
	BackendErrors: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memberdir", Subsystem: "directory", Name: "backend_errors_total",
		Help: "Cache backend failures by operation",
	}, []string{"op"}),
}
