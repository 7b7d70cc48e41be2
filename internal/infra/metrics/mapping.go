package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(mappingRowsTotal) }

var mappingRowsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "control_mapping_rows_total",
		Help: "Control mapping rows produced, labeled by coverage classification.",
	},
	[]string{"coverage"},
)

func IncMappingRow(coverage string) {
	mappingRowsTotal.WithLabelValues(norm(coverage)).Inc()
}
