package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokenCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wmsexport_token_cache_hits_total",
		Help: "Total number of token requests served from the cache.",
	})

	TokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmsexport_token_refreshes_total",
		Help: "Total number of calls to the WMS token endpoint.",
	},
		[]string{"result"},
	)

	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmsexport_upstream_requests_total",
		Help: "Total number of order lookups sent to the WMS API.",
	},
		[]string{"mode", "code"},
	)

	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmsexport_exports_total",
		Help: "Total number of order exports by outcome.",
	},
		[]string{"result"},
	)

	ExportRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wmsexport_export_rows_total",
		Help: "Total number of CSV data rows produced.",
	})

	AuditEntriesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wmsexport_audit_entries_dropped_total",
		Help: "Total number of audit entries that could not be published.",
	})
)
