package tree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opRebase        = "rebase"
	opReparent      = "reparent_children"
	opSplice        = "splice_paths"
	opDeleteSubtree = "delete_subtree"
)

var (
	cascadeUpdatesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpath",
		Name:      "cascade_updates_total",
		Help:      "The total number of descendant records rewritten or removed by cascading tree mutations.",
	}, []string{"operation"})

	cascadeDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mpath",
		Name:      "cascade_duration_ms",
		Help:      "Time (in ms) spent applying a cascading tree mutation.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 500, 1000, 5000, 30000},
	}, []string{"operation"})
)
